package ircclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessagePrivmsg(t *testing.T) {
	line := "@badges=broadcaster/1;display-name=Ronni;room-id=1337 :ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #ronni :Kappa Keepo Kappa"
	msg, ok := ParseMessage(line)
	require.True(t, ok)

	assert.Equal(t, "PRIVMSG", msg.Command)
	assert.Equal(t, []string{"#ronni", "Kappa Keepo Kappa"}, msg.Params)
	assert.Equal(t, "ronni!ronni@ronni.tmi.twitch.tv", msg.Prefix)

	dn, ok := msg.Tag("display-name")
	require.True(t, ok)
	assert.Equal(t, "Ronni", dn)

	channel, ok := msg.ChannelLogin()
	require.True(t, ok)
	assert.Equal(t, "ronni", channel)
}

func TestParseMessageNoTagsOrPrefix(t *testing.T) {
	msg, ok := ParseMessage("PING :tmi.twitch.tv")
	require.True(t, ok)
	assert.Equal(t, "PING", msg.Command)
	assert.Equal(t, []string{"tmi.twitch.tv"}, msg.Params)
}

func TestParseMessageClearchatNoTarget(t *testing.T) {
	msg, ok := ParseMessage("@room-id=1337;tmi-sent-ts=1642715756806 :tmi.twitch.tv CLEARCHAT #dallas")
	require.True(t, ok)
	assert.Equal(t, "CLEARCHAT", msg.Command)
	channel, ok := msg.ChannelLogin()
	require.True(t, ok)
	assert.Equal(t, "dallas", channel)
}

func TestParseMessageEmptyLine(t *testing.T) {
	_, ok := ParseMessage("")
	assert.False(t, ok)
}

func TestAsRawIRCRoundTripsRawLine(t *testing.T) {
	line := "@badge-info=;badges= :tmi.twitch.tv NOTICE #dallas :Login unsuccessful"
	msg, ok := ParseMessage(line)
	require.True(t, ok)
	assert.Equal(t, line, msg.AsRawIRC())
}

func TestAsRawIRCSortsTagsDeterministically(t *testing.T) {
	msg := Message{
		Tags: map[string]string{
			"room-id":       "1337",
			"tmi-sent-ts":   "1642715756806",
			"id":            "abc-123",
			"badge-info":    "",
			"display-name":  "Ronni",
		},
		Command: "PRIVMSG",
		Params:  []string{"#ronni", "Kappa"},
	}
	first := msg.AsRawIRC()
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, msg.AsRawIRC(), "tag order must be stable across repeated serializations")
	}
	assert.Equal(t, "@badge-info=;display-name=Ronni;id=abc-123;room-id=1337;tmi-sent-ts=1642715756806 PRIVMSG #ronni Kappa", first)
}

func TestAsRawIRCSerializesSyntheticMessage(t *testing.T) {
	msg := Message{
		Tags:    map[string]string{"msg-id": "rm-timeout"},
		Command: "NOTICE",
		Params:  []string{"#dallas", "A user has been timed out."},
	}
	raw := msg.AsRawIRC()
	reparsed, ok := ParseMessage(raw)
	require.True(t, ok)
	assert.Equal(t, "NOTICE", reparsed.Command)
	assert.Equal(t, []string{"#dallas", "A user has been timed out."}, reparsed.Params)
	msgID, ok := reparsed.Tag("msg-id")
	require.True(t, ok)
	assert.Equal(t, "rm-timeout", msgID)
}
