package auth

import (
	"context"
	"time"

	"github.com/rmrecorder/recentmessages/internal/storage"
)

// Store is the slice of storage.Storage session management depends on.
type Store interface {
	InsertUserAuthorization(ctx context.Context, ua storage.UserAuthorization) error
	GetUserAuthorization(ctx context.Context, accessToken string) (*storage.UserAuthorization, error)
	UpdateUserAuthorizationTwitchTokens(ctx context.Context, accessToken, twitchAccessToken, twitchRefreshToken string, validUntil time.Time) error
	TouchUserAuthorizationValidated(ctx context.Context, accessToken string) error
	ExtendUserAuthorization(ctx context.Context, accessToken string, validUntil time.Time) error
	RevokeUserAuthorization(ctx context.Context, accessToken string) error
}

// Sessions mints and validates dashboard sessions against Twitch.
type Sessions struct {
	client                 *Client
	store                  Store
	sessionsExpireAfter    time.Duration
	recheckTwitchAuthAfter time.Duration
}

// NewSessions constructs a Sessions manager.
func NewSessions(client *Client, store Store, sessionsExpireAfter, recheckTwitchAuthAfter time.Duration) *Sessions {
	return &Sessions{
		client:                 client,
		store:                  store,
		sessionsExpireAfter:    sessionsExpireAfter,
		recheckTwitchAuthAfter: recheckTwitchAuthAfter,
	}
}

// Create exchanges an OAuth code for a new session.
func (s *Sessions) Create(ctx context.Context, code string) (*storage.UserAuthorization, error) {
	twitchToken, err := s.client.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	user, err := s.client.GetUser(ctx, twitchToken.AccessToken)
	if err != nil {
		return nil, err
	}

	accessToken, err := GenerateAccessToken()
	if err != nil {
		return nil, newError(CodeUpstreamFailure, err)
	}

	now := time.Now()
	ua := storage.UserAuthorization{
		AccessToken:                       accessToken,
		TwitchUserID:                      user.ID,
		TwitchLogin:                       user.Login,
		DisplayName:                       user.DisplayName,
		ProfileImageURL:                   user.ProfileImageURL,
		TwitchOAuthAccessToken:            twitchToken.AccessToken,
		TwitchOAuthRefreshToken:           twitchToken.RefreshToken,
		TwitchOAuthValidUntil:             now.Add(s.recheckTwitchAuthAfter),
		TwitchAuthorizationLastValidated:  now,
		ValidUntil:                        now.Add(s.sessionsExpireAfter),
	}

	if err := s.store.InsertUserAuthorization(ctx, ua); err != nil {
		return nil, newError(CodeUpstreamFailure, err)
	}
	return &ua, nil
}

// Validate looks up a session by bearer token and, if it hasn't been
// re-checked with Twitch recently, re-validates it (refreshing the
// Twitch token exactly once if the probe reports unauthorized).
func (s *Sessions) Validate(ctx context.Context, accessToken string) (*storage.UserAuthorization, error) {
	ua, err := s.store.GetUserAuthorization(ctx, accessToken)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, newError(CodeNotFound, err)
		}
		return nil, newError(CodeUpstreamFailure, err)
	}

	if time.Since(ua.TwitchAuthorizationLastValidated) <= s.recheckTwitchAuthAfter {
		return ua, nil
	}

	_, refreshed, err := s.client.GetUserWithRefresh(ctx, ua.TwitchOAuthAccessToken, ua.TwitchOAuthRefreshToken)
	if err != nil {
		return nil, err
	}

	if refreshed.AccessToken != ua.TwitchOAuthAccessToken {
		validUntil := time.Now().Add(s.recheckTwitchAuthAfter)
		if err := s.store.UpdateUserAuthorizationTwitchTokens(ctx, accessToken, refreshed.AccessToken, refreshed.RefreshToken, validUntil); err != nil {
			return nil, newError(CodeUpstreamFailure, err)
		}
	} else if err := s.store.TouchUserAuthorizationValidated(ctx, accessToken); err != nil {
		return nil, newError(CodeUpstreamFailure, err)
	}

	return ua, nil
}

// Extend pushes a session's expiry further out, mutating ua.ValidUntil in
// place so a caller that already holds it (e.g. from Validate) can build
// a response without a second round trip.
func (s *Sessions) Extend(ctx context.Context, ua *storage.UserAuthorization) error {
	validUntil := time.Now().Add(s.sessionsExpireAfter)
	if err := s.store.ExtendUserAuthorization(ctx, ua.AccessToken, validUntil); err != nil {
		return err
	}
	ua.ValidUntil = validUntil
	return nil
}

// UserAuthorizationResponse is the public view of a session returned by
// the auth/create and auth/extend endpoints.
type UserAuthorizationResponse struct {
	AccessToken           string    `json:"access_token"`
	ValidUntil            time.Time `json:"valid_until"`
	UserID                string    `json:"user_id"`
	UserLogin             string    `json:"user_login"`
	UserName              string    `json:"user_name"`
	UserProfileImageURL   string    `json:"user_profile_image_url"`
	UserDetailsValidUntil time.Time `json:"user_details_valid_until"`
}

// Response builds the response body for ua. UserDetailsValidUntil is
// when the cached Twitch profile will next be re-checked, mirroring the
// original's from_auth(auth, recheck_twitch_auth_after).
func (s *Sessions) Response(ua *storage.UserAuthorization) UserAuthorizationResponse {
	return UserAuthorizationResponse{
		AccessToken:           ua.AccessToken,
		ValidUntil:            ua.ValidUntil,
		UserID:                ua.TwitchUserID,
		UserLogin:             ua.TwitchLogin,
		UserName:              ua.DisplayName,
		UserProfileImageURL:   ua.ProfileImageURL,
		UserDetailsValidUntil: ua.TwitchAuthorizationLastValidated.Add(s.recheckTwitchAuthAfter),
	}
}

// Revoke deletes a session outright.
func (s *Sessions) Revoke(ctx context.Context, accessToken string) error {
	return s.store.RevokeUserAuthorization(ctx, accessToken)
}
