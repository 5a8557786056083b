package ircclient

import "context"

// channeledCommands is the set of IRC commands that carry a channel
// context and are therefore candidates for ingestion and replay.
var channeledCommands = map[string]bool{
	"CLEARCHAT": true,
	"CLEARMSG":  true,
	"JOIN":      true,
	"NOTICE":    true,
	"PART":      true,
	"PRIVMSG":   true,
	"ROOMSTATE": true,
	"USERNOTICE": true,
	"USERSTATE": true,
}

// HasChannelContext reports whether msg is one of the commands the
// ingestion pipeline and replay export care about.
func (m Message) HasChannelContext() bool {
	if !channeledCommands[m.Command] {
		return false
	}
	_, ok := m.ChannelLogin()
	return ok
}

// ChannelStatus reports whether a channel is wanted by the join/part
// control loop and whether the upstream connection has confirmed the
// join.
type ChannelStatus struct {
	Wanted bool
	Joined bool
}

// Client is the narrow contract the ingestion and join/part subsystems
// depend on. internal/ingest and internal/joinpart only ever see this
// interface, never the concrete WebSocket transport, so they stay
// testable against a fake.
type Client interface {
	// Join requests a JOIN if the channel isn't already wanted.
	Join(channelLogin string)
	// Part requests a PART for a channel that's no longer wanted.
	Part(channelLogin string)
	// SetWantedChannels reconciles the full wanted set in one call:
	// channels missing from the current wanted set are joined,
	// channels no longer in it are parted. No per-channel actions are
	// issued by callers using this entry point.
	SetWantedChannels(channelLogins map[string]struct{})
	// GetChannelStatus reports whether a channel is currently wanted
	// and whether the join has been confirmed by the upstream.
	GetChannelStatus(channelLogin string) ChannelStatus
	// Messages returns the channel of inbound parsed messages. It is
	// closed when the client is stopped.
	Messages() <-chan Message
	// Run drives the connection lifecycle (dial, read loop, reconnect
	// with pacing) until ctx is cancelled.
	Run(ctx context.Context) error
}
