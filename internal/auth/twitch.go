package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rmrecorder/recentmessages/internal/config"
)

// TwitchUserAccessToken is the subset of Twitch's OAuth token response
// this service cares about.
type TwitchUserAccessToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// HelixUser is the subset of a Helix /users entry this service cares
// about.
type HelixUser struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

type helixGetUsersResponse struct {
	Data []HelixUser `json:"data"`
}

// Client talks to id.twitch.tv and api.twitch.tv. These are two
// narrow, one-shot call shapes (no streaming, no connection pooling
// concerns), so the standard net/http.Client is used directly rather
// than reaching for a third-party HTTP client (see DESIGN.md).
type Client struct {
	httpClient  *http.Client
	credentials config.TwitchAPICredentials
	idBaseURL   string
	apiBaseURL  string
}

// NewClient constructs a Twitch identity client.
func NewClient(credentials config.TwitchAPICredentials) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		credentials: credentials,
		idBaseURL:   "https://id.twitch.tv",
		apiBaseURL:  "https://api.twitch.tv",
	}
}

// ExchangeCode trades an OAuth authorization code for a user access
// token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (TwitchUserAccessToken, error) {
	form := url.Values{
		"client_id":     {c.credentials.ClientID},
		"client_secret": {c.credentials.ClientSecret},
		"redirect_uri":  {c.credentials.RedirectURI},
		"code":          {code},
		"grant_type":    {"authorization_code"},
	}
	return c.postToken(ctx, form, CodeInvalidAuthorizationCode)
}

// RefreshToken exchanges a refresh token for a new access/refresh
// token pair. A 400 from Twitch means the user revoked the
// authorization and maps to CodeUnauthorized.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (TwitchUserAccessToken, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.credentials.ClientID},
		"client_secret": {c.credentials.ClientSecret},
	}
	return c.postToken(ctx, form, CodeUnauthorized)
}

func (c *Client) postToken(ctx context.Context, form url.Values, badRequestCode Code) (TwitchUserAccessToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.idBaseURL+"/oauth2/token?"+form.Encode(), nil)
	if err != nil {
		return TwitchUserAccessToken{}, newError(CodeUpstreamFailure, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TwitchUserAccessToken{}, newError(CodeUpstreamFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		return TwitchUserAccessToken{}, newError(badRequestCode, fmt.Errorf("twitch returned 400"))
	}
	if resp.StatusCode != http.StatusOK {
		return TwitchUserAccessToken{}, newError(CodeUpstreamFailure, fmt.Errorf("twitch returned status %d", resp.StatusCode))
	}

	var tok TwitchUserAccessToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return TwitchUserAccessToken{}, newError(CodeUpstreamFailure, err)
	}
	return tok, nil
}

// GetUser probes Helix for the identity behind accessToken. A 401
// means the token is expired or revoked and maps to CodeUnauthorized;
// callers use this to decide whether to refresh and retry once.
func (c *Client) GetUser(ctx context.Context, accessToken string) (HelixUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/helix/users", nil)
	if err != nil {
		return HelixUser{}, newError(CodeUpstreamFailure, err)
	}
	req.Header.Set("Client-ID", c.credentials.ClientID)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HelixUser{}, newError(CodeUpstreamFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return HelixUser{}, newError(CodeUnauthorized, fmt.Errorf("twitch returned 401"))
	}
	if resp.StatusCode != http.StatusOK {
		return HelixUser{}, newError(CodeUpstreamFailure, fmt.Errorf("twitch returned status %d", resp.StatusCode))
	}

	var parsed helixGetUsersResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return HelixUser{}, newError(CodeUpstreamFailure, err)
	}
	if len(parsed.Data) != 1 {
		return HelixUser{}, newError(CodeUpstreamFailure, fmt.Errorf("expected exactly one user, got %d", len(parsed.Data)))
	}
	return parsed.Data[0], nil
}

// GetUserWithRefresh probes Helix for the identity behind accessToken,
// and if the probe reports unauthorized, refreshes the token pair once
// and retries exactly once more.
func (c *Client) GetUserWithRefresh(ctx context.Context, accessToken, refreshToken string) (HelixUser, TwitchUserAccessToken, error) {
	user, err := c.GetUser(ctx, accessToken)
	if err == nil {
		return user, TwitchUserAccessToken{AccessToken: accessToken, RefreshToken: refreshToken}, nil
	}

	if !isCode(err, CodeUnauthorized) {
		return HelixUser{}, TwitchUserAccessToken{}, err
	}

	refreshed, err := c.RefreshToken(ctx, refreshToken)
	if err != nil {
		return HelixUser{}, TwitchUserAccessToken{}, err
	}

	user, err = c.GetUser(ctx, refreshed.AccessToken)
	if err != nil {
		return HelixUser{}, TwitchUserAccessToken{}, err
	}
	return user, refreshed, nil
}

func isCode(err error, code Code) bool {
	apiErr, ok := err.(*Error)
	return ok && apiErr.Code == code
}

// GenerateAccessToken produces a cryptographically random 512-bit
// token, hex-encoded (128 characters), identifying a dashboard
// session. crypto/rand is used directly: no dependency in the example
// pack wraps secure random token generation, so the stdlib primitive is
// the right tool here (see DESIGN.md).
func GenerateAccessToken() (string, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
