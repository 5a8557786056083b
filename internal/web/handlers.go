package web

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rmrecorder/recentmessages/internal/replay"
	"github.com/rmrecorder/recentmessages/internal/storage"
	"github.com/rmrecorder/recentmessages/internal/web/apierror"
)

type recentMessagesResponse struct {
	Messages  []string      `json:"messages"`
	Error     string        `json:"error,omitempty"`
	ErrorCode apierror.Code `json:"error_code,omitempty"`
}

func parseMillis(c *gin.Context, param string) (time.Time, bool) {
	raw := c.Query(param)
	if raw == "" {
		return time.Time{}, true
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(c, apierror.New(apierror.CodeInvalidQuery, "query parameter "+param+" must be a millisecond timestamp"))
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func parseBool(c *gin.Context, param string) (bool, bool) {
	raw := c.Query(param)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(c, apierror.New(apierror.CodeInvalidQuery, "query parameter "+param+" must be a boolean"))
		return false, false
	}
	return v, true
}

// handleRecentMessages implements the recent-messages read path: syntax
// check, ignored check, fetch, replay transform, and a best-effort
// join-confirmation probe that updates last_access and can set the
// non-fatal channel_not_joined code.
func (s *Server) handleRecentMessages(c *gin.Context) {
	channelLogin := c.Param("channel_login")
	if !validChannelLogin(channelLogin) {
		writeError(c, apierror.New(apierror.CodeInvalidChannelLogin, "channel_login must match ^[a-z0-9_]{1,25}$"))
		return
	}

	ctx := c.Request.Context()

	ignored, err := s.storage.IsChannelIgnored(ctx, channelLogin)
	if err != nil {
		s.log.WithError(err).WithField("channel_login", channelLogin).Error("recent-messages: is_channel_ignored failed")
		writeError(c, apierror.New(apierror.CodeInternalServerError, "internal server error"))
		return
	}
	if ignored {
		writeError(c, apierror.New(apierror.CodeChannelIgnored, "channel has opted out of message recording"))
		return
	}

	limit := s.maxBufferSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(c, apierror.New(apierror.CodeInvalidQuery, "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	if limit > s.maxBufferSize {
		limit = s.maxBufferSize
	}

	before, ok := parseMillis(c, "before")
	if !ok {
		return
	}
	after, ok := parseMillis(c, "after")
	if !ok {
		return
	}
	hideModerated, ok := parseBool(c, "hide_moderated_messages")
	if !ok {
		return
	}
	hideModeration, ok := parseBool(c, "hide_moderation_messages")
	if !ok {
		return
	}
	clearchatToNotice, ok := parseBool(c, "clearchat_to_notice")
	if !ok {
		return
	}

	window := storage.MessageWindow{Before: before, After: after}

	load := func(ctx context.Context) ([]storage.Message, error) {
		return s.storage.GetMessages(ctx, channelLogin, window, limit)
	}

	var stored []storage.Message
	if s.cache != nil {
		stored, err = s.cache.GetOrLoad(ctx, channelLogin, window, limit, load)
	} else {
		stored, err = load(ctx)
	}
	if err != nil {
		s.log.WithError(err).WithField("channel_login", channelLogin).Error("recent-messages: get_messages failed")
		writeError(c, apierror.New(apierror.CodeInternalServerError, "internal server error"))
		return
	}

	lines := replay.Export(stored, replay.Options{
		HideModeratedMessages:  hideModerated,
		HideModerationMessages: hideModeration,
		ClearchatToNotice:      clearchatToNotice,
	})

	resp := recentMessagesResponse{Messages: lines}
	if !s.confirmJoin(channelLogin) {
		resp.ErrorCode = "channel_not_joined"
		resp.Error = "listener has not yet confirmed joining this channel"
	}

	c.JSON(200, resp)
}

// confirmJoin is the read path's best-effort join-confirmation probe: if
// the listener hasn't confirmed the join yet, request one, wait, and
// re-check. On confirmation last_access is touched so the join/part
// loop's next reconciliation keeps the channel subscribed.
func (s *Server) confirmJoin(channelLogin string) bool {
	if s.irc == nil {
		return true
	}
	if status := s.irc.GetChannelStatus(channelLogin); !status.Joined {
		s.irc.Join(channelLogin)
		time.Sleep(s.joinConfirmWait)

		if !s.irc.GetChannelStatus(channelLogin).Joined {
			return false
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.storage.TouchOrAddChannel(ctx, channelLogin); err != nil {
		s.log.WithError(err).WithField("channel_login", channelLogin).Warn("recent-messages: touch_or_add_channel failed after join confirmation")
	}
	return true
}

func (s *Server) handleGetIgnored(c *gin.Context) {
	accessToken, ok := bearerToken(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	ua, err := s.sessions.Validate(ctx, accessToken)
	if err != nil {
		writeError(c, classifyAuthError(err))
		return
	}

	ignored, err := s.storage.IsChannelIgnored(ctx, ua.TwitchLogin)
	if err != nil {
		s.log.WithError(err).WithField("channel_login", ua.TwitchLogin).Error("ignored: is_channel_ignored failed")
		writeError(c, apierror.New(apierror.CodeInternalServerError, "internal server error"))
		return
	}

	c.JSON(200, gin.H{"ignored": ignored})
}

type setIgnoredPayload struct {
	Ignored *bool `json:"ignored"`
}

func (s *Server) handleSetIgnored(c *gin.Context) {
	accessToken, ok := bearerToken(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	ua, err := s.sessions.Validate(ctx, accessToken)
	if err != nil {
		writeError(c, classifyAuthError(err))
		return
	}

	var payload setIgnoredPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Ignored == nil {
		writeError(c, apierror.New(apierror.CodeInvalidPayload, "body must be {\"ignored\": bool}"))
		return
	}

	channelLogin := ua.TwitchLogin
	if err := s.storage.SetChannelIgnored(ctx, channelLogin, *payload.Ignored); err != nil {
		s.log.WithError(err).WithField("channel_login", channelLogin).Error("ignored: set_channel_ignored failed")
		writeError(c, apierror.New(apierror.CodeInternalServerError, "internal server error"))
		return
	}

	if *payload.Ignored {
		if s.irc != nil {
			s.irc.Part(channelLogin)
		}
		s.purgeAndPublish(ctx, channelLogin)
		// Messages that arrived between the PART request and the
		// listener's acknowledgment can land after the first purge;
		// a second purge three seconds later catches them.
		go func() {
			time.Sleep(s.secondPurgeDelay)
			bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.purgeAndPublish(bgCtx, channelLogin)
		}()
		if s.events != nil {
			s.events.ChannelIgnored(ctx, channelLogin)
		}
	} else {
		if s.irc != nil {
			s.irc.Join(channelLogin)
		}
		if s.events != nil {
			s.events.ChannelUnignored(ctx, channelLogin)
		}
	}

	c.Status(204)
}

func (s *Server) purgeAndPublish(ctx context.Context, channelLogin string) {
	n, err := s.storage.PurgeMessages(ctx, channelLogin)
	if err != nil {
		s.log.WithError(err).WithField("channel_login", channelLogin).Error("purge failed")
		return
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, channelLogin)
	}
	if n > 0 && s.events != nil {
		s.events.MessagesPurged(ctx, channelLogin, n)
	}
}

func (s *Server) handlePurge(c *gin.Context) {
	accessToken, ok := bearerToken(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	ua, err := s.sessions.Validate(ctx, accessToken)
	if err != nil {
		writeError(c, classifyAuthError(err))
		return
	}

	n, err := s.storage.PurgeMessages(ctx, ua.TwitchLogin)
	if err != nil {
		s.log.WithError(err).WithField("channel_login", ua.TwitchLogin).Error("purge: purge_messages failed")
		writeError(c, apierror.New(apierror.CodeInternalServerError, "internal server error"))
		return
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, ua.TwitchLogin)
	}
	if n > 0 && s.events != nil {
		s.events.MessagesPurged(ctx, ua.TwitchLogin, n)
	}

	c.Status(204)
}

func (s *Server) handleAuthCreate(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		writeError(c, apierror.New(apierror.CodeInvalidAuthorizationCode, "missing code query parameter"))
		return
	}

	ua, err := s.sessions.Create(c.Request.Context(), code)
	if err != nil {
		writeError(c, classifyAuthError(err))
		return
	}

	c.JSON(200, s.sessions.Response(ua))
}

func (s *Server) handleAuthExtend(c *gin.Context) {
	accessToken, ok := bearerToken(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	ua, err := s.sessions.Validate(ctx, accessToken)
	if err != nil {
		writeError(c, classifyAuthError(err))
		return
	}
	if err := s.sessions.Extend(ctx, ua); err != nil {
		s.log.WithError(err).Error("auth/extend failed")
		writeError(c, apierror.New(apierror.CodeInternalServerError, "internal server error"))
		return
	}
	c.JSON(200, s.sessions.Response(ua))
}

func (s *Server) handleAuthRevoke(c *gin.Context) {
	accessToken, ok := bearerToken(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := s.sessions.Revoke(ctx, accessToken); err != nil {
		s.log.WithError(err).Error("auth/revoke failed")
		writeError(c, apierror.New(apierror.CodeInternalServerError, "internal server error"))
		return
	}
	c.Status(204)
}
