// Package replay turns stored raw IRC lines into the export format the
// recent-messages read path returns: only a subset of commands survive,
// moderation actions mark earlier frames deleted instead of removing
// them outright, and every exported line gains bookkeeping tags.
package replay

import (
	"fmt"
	"time"

	"github.com/rmrecorder/recentmessages/internal/ircclient"
	"github.com/rmrecorder/recentmessages/internal/storage"
)

// exportableCommands is the set of commands the read path ever returns.
// Everything else recorded alongside them (JOIN, PART, USERSTATE, PING,
// ...) is dropped during export.
var exportableCommands = map[string]bool{
	"PRIVMSG":    true,
	"CLEARCHAT":  true,
	"CLEARMSG":   true,
	"USERNOTICE": true,
	"NOTICE":     true,
	"ROOMSTATE":  true,
}

// ignoredNoticeIDs are NOTICE msg-id values that never reach a client;
// they're operational chatter (hosting, permission errors) rather than
// chat history.
var ignoredNoticeIDs = map[string]bool{
	"no_permission":             true,
	"host_on":                   true,
	"host_off":                  true,
	"host_target_went_offline":  true,
	"msg_channel_suspended":     true,
}

// Options controls which post-processing steps export applies, mirrored
// one-to-one from the recent-messages query parameters.
type Options struct {
	HideModeratedMessages bool
	HideModerationMessages bool
	ClearchatToNotice      bool
}

type frame struct {
	msg                 ircclient.Message
	timeReceived        time.Time
	deletedByModeration bool
}

// Container accumulates stored messages into frames and renders the
// final exported raw IRC lines on Export.
type Container struct {
	options Options
	frames  []*frame
}

// NewContainer builds an empty Container for the given export options.
func NewContainer(options Options) *Container {
	return &Container{options: options}
}

// Append parses one stored message and folds it into the container,
// applying any moderation action it represents to earlier frames.
func (c *Container) Append(stored storage.Message) {
	msg, ok := ircclient.ParseMessage(stored.RawLine)
	if !ok {
		return
	}
	if !exportableCommands[msg.Command] {
		return
	}

	switch msg.Command {
	case "CLEARCHAT":
		c.applyClearChat(msg)
	case "CLEARMSG":
		c.applyClearMsg(msg)
	case "NOTICE":
		if msgID, ok := msg.Tag("msg-id"); ok && ignoredNoticeIDs[msgID] {
			return
		}
	}

	c.frames = append(c.frames, &frame{msg: msg, timeReceived: stored.TimeReceived})
}

// applyClearChat marks frames deleted: a targetless CLEARCHAT clears
// every prior frame in the channel, one with a target only clears that
// user's PRIVMSG/USERNOTICE frames.
func (c *Container) applyClearChat(msg ircclient.Message) {
	targetUserID, hasTarget := msg.Tag("target-user-id")
	if !hasTarget || targetUserID == "" {
		for _, f := range c.frames {
			f.deletedByModeration = true
		}
		return
	}

	for _, f := range c.frames {
		if senderID, ok := senderUserID(f.msg); ok && senderID == targetUserID {
			f.deletedByModeration = true
		}
	}
}

func (c *Container) applyClearMsg(msg ircclient.Message) {
	targetMsgID, ok := msg.Tag("target-msg-id")
	if !ok {
		return
	}
	for _, f := range c.frames {
		if id, ok := f.msg.Tag("id"); ok && id == targetMsgID {
			f.deletedByModeration = true
		}
	}
}

func senderUserID(msg ircclient.Message) (string, bool) {
	if msg.Command != "PRIVMSG" && msg.Command != "USERNOTICE" {
		return "", false
	}
	return msg.Tag("user-id")
}

// Export renders the accumulated frames into exported raw IRC lines,
// applying hide/rewrite options and always stamping the bookkeeping
// tags (historical, rm-received-ts, rm-deleted).
func (c *Container) Export() []string {
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		if line, ok := c.exportFrame(f); ok {
			out = append(out, line)
		}
	}
	return out
}

func (c *Container) exportFrame(f *frame) (string, bool) {
	if c.options.HideModeratedMessages && f.deletedByModeration {
		return "", false
	}
	if c.options.HideModerationMessages && (f.msg.Command == "CLEARCHAT" || f.msg.Command == "CLEARMSG") {
		return "", false
	}

	out := f.msg
	if c.options.ClearchatToNotice && out.Command == "CLEARCHAT" {
		out = clearchatToNotice(out)
	}

	tags := make(map[string]string, len(out.Tags)+3)
	for k, v := range out.Tags {
		tags[k] = v
	}
	tags["historical"] = "1"
	tags["rm-received-ts"] = fmt.Sprintf("%d", f.timeReceived.UnixMilli())
	if f.deletedByModeration {
		tags["rm-deleted"] = "1"
	}
	out.Tags = tags
	out.Raw = ""

	return out.AsRawIRC(), true
}

// clearchatToNotice rewrites a CLEARCHAT into a synthetic NOTICE with a
// human-readable body and an rm-prefixed msg-id, since most clients
// have no special handling for CLEARCHAT but do for NOTICE.
func clearchatToNotice(msg ircclient.Message) ircclient.Message {
	channel, _ := msg.ChannelLogin()

	var body, msgID string
	switch {
	case len(msg.Params) < 2 || msg.Params[1] == "":
		body = "Chat has been cleared by a moderator."
		msgID = "rm-clearchat"
	case isBanned(msg):
		body = fmt.Sprintf("%s has been permanently banned.", msg.Params[1])
		msgID = "rm-permaban"
	default:
		body = fmt.Sprintf("%s has been timed out for %s.", msg.Params[1], timeoutDuration(msg))
		msgID = "rm-timeout"
	}

	return ircclient.Message{
		Tags:    map[string]string{"msg-id": msgID},
		Command: "NOTICE",
		Params:  []string{"#" + channel, body},
	}
}

func isBanned(msg ircclient.Message) bool {
	_, hasBanDuration := msg.Tag("ban-duration")
	return !hasBanDuration
}

func timeoutDuration(msg ircclient.Message) string {
	secsStr, ok := msg.Tag("ban-duration")
	if !ok {
		return "an unknown duration"
	}
	var secs int64
	if _, err := fmt.Sscanf(secsStr, "%d", &secs); err != nil {
		return "an unknown duration"
	}
	return (time.Duration(secs) * time.Second).String()
}

// Export is a convenience wrapper for the common case: build a
// container, append every stored message, and export in one call.
func Export(stored []storage.Message, options Options) []string {
	c := NewContainer(options)
	for _, m := range stored {
		c.Append(m)
	}
	return c.Export()
}
