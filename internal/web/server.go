// Package web is the HTTP read/control surface: recent-messages
// retrieval, the ignored-channel toggle, purge, and the OAuth-backed
// dashboard session endpoints. Routing and middleware follow the
// gin-gonic conventions used across the example fleet (router groups,
// gin.WrapH for /metrics, a prometheus timing middleware).
package web

import (
	"context"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/rmrecorder/recentmessages/internal/auth"
	"github.com/rmrecorder/recentmessages/internal/cache"
	"github.com/rmrecorder/recentmessages/internal/events"
	"github.com/rmrecorder/recentmessages/internal/ircclient"
	"github.com/rmrecorder/recentmessages/internal/storage"
)

var channelLoginPattern = regexp.MustCompile(`^[a-z0-9_]{1,25}$`)

// Storage is the slice of storage.Storage the HTTP layer depends on.
type Storage interface {
	GetMessages(ctx context.Context, channelLogin string, window storage.MessageWindow, limit int) ([]storage.Message, error)
	PurgeMessages(ctx context.Context, channelLogin string) (int64, error)
	IsChannelIgnored(ctx context.Context, channelLogin string) (bool, error)
	SetChannelIgnored(ctx context.Context, channelLogin string, ignored bool) error
	TouchOrAddChannel(ctx context.Context, channelLogin string) error
}

// Server holds every dependency the HTTP handlers need and exposes the
// wired gin engine.
type Server struct {
	storage       Storage
	cache         *cache.Manager
	events        *events.Publisher
	sessions      *auth.Sessions
	irc           ircclient.Client
	log           *logrus.Logger
	maxBufferSize int
	requestTimeout time.Duration

	secondPurgeDelay time.Duration
	joinConfirmWait  time.Duration
}

// Config controls request handling knobs that aren't tied to any one
// dependency.
type Config struct {
	MaxBufferSize  int
	RequestTimeout time.Duration
}

// New constructs a Server.
func New(store Storage, cacheManager *cache.Manager, publisher *events.Publisher, sessions *auth.Sessions, irc ircclient.Client, log *logrus.Logger, cfg Config) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		storage:          store,
		cache:            cacheManager,
		events:           publisher,
		sessions:         sessions,
		irc:              irc,
		log:              log,
		maxBufferSize:    cfg.MaxBufferSize,
		requestTimeout:   cfg.RequestTimeout,
		secondPurgeDelay: 3 * time.Second,
		joinConfirmWait:  5 * time.Second,
	}
}

// Handler builds the gin engine with every route and middleware wired.
func (s *Server) Handler() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(corsMiddleware())
	router.Use(metricsMiddleware())
	if s.requestTimeout > 0 {
		router.Use(timeoutMiddleware(s.requestTimeout))
	}

	api := router.Group("/api/v2")
	api.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api.GET("/recent-messages/:channel_login", s.handleRecentMessages)
	api.GET("/ignored", s.handleGetIgnored)
	api.POST("/ignored", s.handleSetIgnored)
	api.POST("/purge", s.handlePurge)
	api.POST("/auth/create", s.handleAuthCreate)
	api.POST("/auth/extend", s.handleAuthExtend)
	api.POST("/auth/revoke", s.handleAuthRevoke)

	return router
}

func validChannelLogin(login string) bool {
	return channelLoginPattern.MatchString(login)
}
