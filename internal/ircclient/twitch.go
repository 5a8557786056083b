package ircclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 4 * time.Minute
	pingPeriod     = pongWait / 2
	inboundBuffer  = 4096
)

// TwitchClient is a long-lived IRCv3-over-WebSocket connection to the
// Twitch chat edge, reconnecting with paced backoff and reconciling its
// joined-channel set against whatever SetWantedChannels last asked for.
type TwitchClient struct {
	addr     string
	nick     string
	pass     string
	dialer   *websocket.Dialer
	limiter  *rate.Limiter
	log      *logrus.Logger

	mu      sync.Mutex
	wanted  map[string]struct{}
	joined  map[string]bool
	conn    *websocket.Conn

	messages chan Message
	joinReq  chan string
	partReq  chan string
}

// Config controls dial pacing and credentials for a TwitchClient.
type Config struct {
	Addr               string
	Nick               string
	Pass               string
	NewConnectionEvery time.Duration
	Logger             *logrus.Logger
}

// New constructs a TwitchClient that has not yet dialed. Call Run to
// start the connection lifecycle.
func New(cfg Config) *TwitchClient {
	every := cfg.NewConnectionEvery
	if every <= 0 {
		every = 550 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = "wss://irc-ws.chat.twitch.tv:443"
	}

	return &TwitchClient{
		addr:    addr,
		nick:    cfg.Nick,
		pass:    cfg.Pass,
		dialer:  &websocket.Dialer{TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12}, HandshakeTimeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Every(every), 1),
		log:     log,
		wanted:  make(map[string]struct{}),
		joined:  make(map[string]bool),
		messages: make(chan Message, inboundBuffer),
		joinReq:  make(chan string, 256),
		partReq:  make(chan string, 256),
	}
}

func (c *TwitchClient) Messages() <-chan Message { return c.messages }

func (c *TwitchClient) Join(channelLogin string) {
	c.mu.Lock()
	_, already := c.wanted[channelLogin]
	c.wanted[channelLogin] = struct{}{}
	c.mu.Unlock()
	if !already {
		select {
		case c.joinReq <- channelLogin:
		default:
		}
	}
}

func (c *TwitchClient) Part(channelLogin string) {
	c.mu.Lock()
	delete(c.wanted, channelLogin)
	c.mu.Unlock()
	select {
	case c.partReq <- channelLogin:
	default:
	}
}

// SetWantedChannels reconciles the entire wanted set in one call: joins
// whatever is missing, parts whatever is no longer present. No
// per-channel actions are issued beyond this.
func (c *TwitchClient) SetWantedChannels(channelLogins map[string]struct{}) {
	c.mu.Lock()
	var toJoin, toPart []string
	for ch := range channelLogins {
		if _, ok := c.wanted[ch]; !ok {
			toJoin = append(toJoin, ch)
		}
	}
	for ch := range c.wanted {
		if _, ok := channelLogins[ch]; !ok {
			toPart = append(toPart, ch)
		}
	}
	c.wanted = make(map[string]struct{}, len(channelLogins))
	for ch := range channelLogins {
		c.wanted[ch] = struct{}{}
	}
	c.mu.Unlock()

	for _, ch := range toJoin {
		select {
		case c.joinReq <- ch:
		default:
		}
	}
	for _, ch := range toPart {
		select {
		case c.partReq <- ch:
		default:
		}
	}
}

func (c *TwitchClient) GetChannelStatus(channelLogin string) ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, wanted := c.wanted[channelLogin]
	return ChannelStatus{Wanted: wanted, Joined: c.joined[channelLogin]}
}

// Run dials, authenticates, and services the connection until ctx is
// cancelled, reconnecting with the configured pacing on any read/write
// failure.
func (c *TwitchClient) Run(ctx context.Context) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			close(c.messages)
			return ctx.Err()
		}

		if err := c.runOnce(ctx); err != nil {
			c.log.WithError(err).Warn("ircclient: connection lost, reconnecting")
		}

		select {
		case <-ctx.Done():
			close(c.messages)
			return ctx.Err()
		default:
		}
	}
}

func (c *TwitchClient) runOnce(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.joined = make(map[string]bool)
	wanted := make([]string, 0, len(c.wanted))
	for ch := range c.wanted {
		wanted = append(wanted, ch)
	}
	c.mu.Unlock()

	if err := c.authenticate(conn); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	for _, ch := range wanted {
		if err := sendLine(conn, "JOIN #"+ch); err != nil {
			return err
		}
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(connCtx, conn)
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	return c.readPump(conn)
}

func (c *TwitchClient) authenticate(conn *websocket.Conn) error {
	if err := sendLine(conn, "CAP REQ :twitch.tv/tags twitch.tv/commands twitch.tv/membership"); err != nil {
		return err
	}
	if c.pass != "" {
		if err := sendLine(conn, "PASS "+c.pass); err != nil {
			return err
		}
	}
	return sendLine(conn, "NICK "+c.nick)
}

func (c *TwitchClient) writePump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-c.joinReq:
			if !ok {
				return
			}
			_ = sendLine(conn, "JOIN #"+ch)
		case ch, ok := <-c.partReq:
			if !ok {
				return
			}
			_ = sendLine(conn, "PART #"+ch)
			c.mu.Lock()
			delete(c.joined, ch)
			c.mu.Unlock()
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *TwitchClient) readPump(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		for _, line := range splitLines(string(data)) {
			c.handleLine(conn, line)
		}
	}
}

func (c *TwitchClient) handleLine(conn *websocket.Conn, line string) {
	msg, ok := ParseMessage(line)
	if !ok {
		return
	}

	switch msg.Command {
	case "PING":
		_ = sendLine(conn, "PONG :tmi.twitch.tv")
		return
	case "JOIN":
		if ch, ok := msg.ChannelLogin(); ok {
			c.mu.Lock()
			c.joined[ch] = true
			c.mu.Unlock()
		}
	case "PART":
		if ch, ok := msg.ChannelLogin(); ok {
			c.mu.Lock()
			c.joined[ch] = false
			c.mu.Unlock()
		}
	}

	if !msg.HasChannelContext() {
		return
	}

	select {
	case c.messages <- msg:
	default:
		c.log.Warn("ircclient: inbound buffer full, dropping message")
	}
}

func sendLine(conn *websocket.Conn, line string) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func splitLines(data string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			line := data[start:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			if line != "" {
				lines = append(lines, line)
			}
			start = i + 1
		}
	}
	if start < len(data) {
		rest := data[start:]
		if rest != "" {
			lines = append(lines, rest)
		}
	}
	return lines
}
