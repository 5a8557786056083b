package web

import (
	"context"
	"time"

	"github.com/rmrecorder/recentmessages/internal/storage"
)

// fakeStorage implements the web.Storage interface against an in-memory
// map, letting handler tests run without a live Postgres instance.
type fakeStorage struct {
	messages map[string][]storage.Message
	ignored  map[string]bool
	touched  map[string]int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		messages: make(map[string][]storage.Message),
		ignored:  make(map[string]bool),
		touched:  make(map[string]int),
	}
}

func (f *fakeStorage) GetMessages(ctx context.Context, channelLogin string, window storage.MessageWindow, limit int) ([]storage.Message, error) {
	msgs := f.messages[channelLogin]
	if limit < len(msgs) {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeStorage) PurgeMessages(ctx context.Context, channelLogin string) (int64, error) {
	n := int64(len(f.messages[channelLogin]))
	delete(f.messages, channelLogin)
	return n, nil
}

func (f *fakeStorage) IsChannelIgnored(ctx context.Context, channelLogin string) (bool, error) {
	return f.ignored[channelLogin], nil
}

func (f *fakeStorage) SetChannelIgnored(ctx context.Context, channelLogin string, ignored bool) error {
	f.ignored[channelLogin] = ignored
	return nil
}

func (f *fakeStorage) TouchOrAddChannel(ctx context.Context, channelLogin string) error {
	f.touched[channelLogin]++
	return nil
}

// fakeAuthStore implements auth.Store for handler tests that need a
// Sessions manager without ever calling out to Twitch.
type fakeAuthStore struct {
	byToken map[string]*storage.UserAuthorization
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{byToken: make(map[string]*storage.UserAuthorization)}
}

func (f *fakeAuthStore) InsertUserAuthorization(ctx context.Context, ua storage.UserAuthorization) error {
	cp := ua
	f.byToken[ua.AccessToken] = &cp
	return nil
}

func (f *fakeAuthStore) GetUserAuthorization(ctx context.Context, accessToken string) (*storage.UserAuthorization, error) {
	ua, ok := f.byToken[accessToken]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *ua
	return &cp, nil
}

func (f *fakeAuthStore) UpdateUserAuthorizationTwitchTokens(ctx context.Context, accessToken, twitchAccessToken, twitchRefreshToken string, validUntil time.Time) error {
	f.byToken[accessToken].TwitchOAuthAccessToken = twitchAccessToken
	return nil
}

func (f *fakeAuthStore) TouchUserAuthorizationValidated(ctx context.Context, accessToken string) error {
	f.byToken[accessToken].TwitchAuthorizationLastValidated = time.Now()
	return nil
}

func (f *fakeAuthStore) ExtendUserAuthorization(ctx context.Context, accessToken string, validUntil time.Time) error {
	ua, ok := f.byToken[accessToken]
	if !ok {
		return storage.ErrNotFound
	}
	ua.ValidUntil = validUntil
	return nil
}

func (f *fakeAuthStore) RevokeUserAuthorization(ctx context.Context, accessToken string) error {
	delete(f.byToken, accessToken)
	return nil
}
