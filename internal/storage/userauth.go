package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that found no matching row.
var ErrNotFound = errors.New("storage: not found")

// UserAuthorization is an access token minted for a dashboard session,
// tied to the Twitch user identity it was validated against.
type UserAuthorization struct {
	AccessToken                    string
	TwitchUserID                   string
	TwitchLogin                    string
	DisplayName                    string
	ProfileImageURL                string
	TwitchOAuthAccessToken          string
	TwitchOAuthRefreshToken         string
	TwitchOAuthValidUntil           time.Time
	TwitchAuthorizationLastValidated time.Time
	ValidUntil                     time.Time
}

// InsertUserAuthorization stores a freshly minted session.
func (s *Storage) InsertUserAuthorization(ctx context.Context, ua UserAuthorization) error {
	conn, err := s.main.conn(ctx)
	if err != nil {
		return wrapErr(s.main.name, "insert_user_authorization", err)
	}
	defer s.main.release(conn)

	_, err = conn.ExecContext(ctx, `
		INSERT INTO user_authorization (
			access_token, twitch_user_id, twitch_login, user_name, user_profile_image_url,
			twitch_oauth_access_token, twitch_oauth_refresh_token, twitch_oauth_valid_until,
			twitch_authorization_last_validated, valid_until
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ua.AccessToken, ua.TwitchUserID, ua.TwitchLogin, ua.DisplayName, ua.ProfileImageURL,
		ua.TwitchOAuthAccessToken, ua.TwitchOAuthRefreshToken, ua.TwitchOAuthValidUntil,
		ua.TwitchAuthorizationLastValidated, ua.ValidUntil)
	return wrapErr(s.main.name, "insert_user_authorization", err)
}

// GetUserAuthorization looks up a session by its bearer access token.
func (s *Storage) GetUserAuthorization(ctx context.Context, accessToken string) (*UserAuthorization, error) {
	conn, err := s.main.conn(ctx)
	if err != nil {
		return nil, wrapErr(s.main.name, "get_user_authorization", err)
	}
	defer s.main.release(conn)

	var ua UserAuthorization
	ua.AccessToken = accessToken
	err = conn.QueryRowContext(ctx, `
		SELECT twitch_user_id, twitch_login, user_name, user_profile_image_url,
			twitch_oauth_access_token, twitch_oauth_refresh_token, twitch_oauth_valid_until,
			twitch_authorization_last_validated, valid_until
		FROM user_authorization
		WHERE access_token = $1`,
		accessToken).Scan(
		&ua.TwitchUserID, &ua.TwitchLogin, &ua.DisplayName, &ua.ProfileImageURL,
		&ua.TwitchOAuthAccessToken, &ua.TwitchOAuthRefreshToken, &ua.TwitchOAuthValidUntil,
		&ua.TwitchAuthorizationLastValidated, &ua.ValidUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapErr(s.main.name, "get_user_authorization", err)
	}
	return &ua, nil
}

// UpdateUserAuthorizationTwitchTokens persists a refreshed Twitch OAuth
// token pair and bumps the last-validated timestamp.
func (s *Storage) UpdateUserAuthorizationTwitchTokens(ctx context.Context, accessToken, twitchAccessToken, twitchRefreshToken string, validUntil time.Time) error {
	conn, err := s.main.conn(ctx)
	if err != nil {
		return wrapErr(s.main.name, "update_user_authorization_twitch_tokens", err)
	}
	defer s.main.release(conn)

	_, err = conn.ExecContext(ctx, `
		UPDATE user_authorization
		SET twitch_oauth_access_token = $2,
		    twitch_oauth_refresh_token = $3,
		    twitch_oauth_valid_until = $4,
		    twitch_authorization_last_validated = now()
		WHERE access_token = $1`,
		accessToken, twitchAccessToken, twitchRefreshToken, validUntil)
	return wrapErr(s.main.name, "update_user_authorization_twitch_tokens", err)
}

// TouchUserAuthorizationValidated bumps the last-validated timestamp
// without changing the Twitch token pair, used when a probe succeeds
// without needing a refresh.
func (s *Storage) TouchUserAuthorizationValidated(ctx context.Context, accessToken string) error {
	conn, err := s.main.conn(ctx)
	if err != nil {
		return wrapErr(s.main.name, "touch_user_authorization_validated", err)
	}
	defer s.main.release(conn)

	_, err = conn.ExecContext(ctx,
		`UPDATE user_authorization SET twitch_authorization_last_validated = now() WHERE access_token = $1`,
		accessToken)
	return wrapErr(s.main.name, "touch_user_authorization_validated", err)
}

// ExtendUserAuthorization pushes a session's expiry further out.
func (s *Storage) ExtendUserAuthorization(ctx context.Context, accessToken string, validUntil time.Time) error {
	conn, err := s.main.conn(ctx)
	if err != nil {
		return wrapErr(s.main.name, "extend_user_authorization", err)
	}
	defer s.main.release(conn)

	res, err := conn.ExecContext(ctx,
		`UPDATE user_authorization SET valid_until = $2 WHERE access_token = $1`,
		accessToken, validUntil)
	if err != nil {
		return wrapErr(s.main.name, "extend_user_authorization", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(s.main.name, "extend_user_authorization", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeUserAuthorization deletes a session outright (logout).
func (s *Storage) RevokeUserAuthorization(ctx context.Context, accessToken string) error {
	conn, err := s.main.conn(ctx)
	if err != nil {
		return wrapErr(s.main.name, "revoke_user_authorization", err)
	}
	defer s.main.release(conn)

	_, err = conn.ExecContext(ctx,
		`DELETE FROM user_authorization WHERE access_token = $1`, accessToken)
	return wrapErr(s.main.name, "revoke_user_authorization", err)
}

// DeleteExpiredUserAuthorizations removes every session past its
// valid_until, called from the same vacuum loop that trims messages.
func (s *Storage) DeleteExpiredUserAuthorizations(ctx context.Context) (int64, error) {
	conn, err := s.main.conn(ctx)
	if err != nil {
		return 0, wrapErr(s.main.name, "delete_expired_user_authorizations", err)
	}
	defer s.main.release(conn)

	res, err := conn.ExecContext(ctx, `DELETE FROM user_authorization WHERE valid_until < now()`)
	if err != nil {
		return 0, wrapErr(s.main.name, "delete_expired_user_authorizations", err)
	}
	return res.RowsAffected()
}
