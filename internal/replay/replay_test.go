package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmrecorder/recentmessages/internal/ircclient"
	"github.com/rmrecorder/recentmessages/internal/storage"
)

func msg(t time.Time, raw string) storage.Message {
	return storage.Message{TimeReceived: t, RawLine: raw}
}

func TestExportPassesThroughPrivmsgWithBookkeepingTags(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lines := Export([]storage.Message{
		msg(ts, "@id=abc;user-id=1 :a!a@a.tmi.twitch.tv PRIVMSG #dallas :hello"),
	}, Options{})

	require.Len(t, lines, 1)
	parsed, ok := ircclient.ParseMessage(lines[0])
	require.True(t, ok)
	assert.Equal(t, "PRIVMSG", parsed.Command)
	hist, _ := parsed.Tag("historical")
	assert.Equal(t, "1", hist)
	recv, ok := parsed.Tag("rm-received-ts")
	require.True(t, ok)
	assert.Equal(t, "1704067200000", recv)
	_, hasDeleted := parsed.Tag("rm-deleted")
	assert.False(t, hasDeleted)
}

func TestClearChatWithoutTargetMarksAllPriorDeleted(t *testing.T) {
	ts := time.Now()
	lines := Export([]storage.Message{
		msg(ts, "@id=1;user-id=1 :a!a@a PRIVMSG #dallas :hi"),
		msg(ts, "@id=2;user-id=2 :b!b@b PRIVMSG #dallas :hey"),
		msg(ts, ":tmi.twitch.tv CLEARCHAT #dallas"),
	}, Options{})

	require.Len(t, lines, 3)
	for _, l := range lines[:2] {
		parsed, _ := ircclient.ParseMessage(l)
		deleted, _ := parsed.Tag("rm-deleted")
		assert.Equal(t, "1", deleted)
	}
	clearchat, _ := ircclient.ParseMessage(lines[2])
	assert.Equal(t, "CLEARCHAT", clearchat.Command)
}

func TestClearChatWithTargetMarksOnlyThatUser(t *testing.T) {
	ts := time.Now()
	lines := Export([]storage.Message{
		msg(ts, "@id=1;user-id=1 :a!a@a PRIVMSG #dallas :hi"),
		msg(ts, "@id=2;user-id=2 :b!b@b PRIVMSG #dallas :hey"),
		msg(ts, "@target-user-id=1;ban-duration=600 :tmi.twitch.tv CLEARCHAT #dallas :a"),
	}, Options{})

	require.Len(t, lines, 3)
	parsedA, _ := ircclient.ParseMessage(lines[0])
	deletedA, _ := parsedA.Tag("rm-deleted")
	assert.Equal(t, "1", deletedA)

	parsedB, _ := ircclient.ParseMessage(lines[1])
	_, deletedB := parsedB.Tag("rm-deleted")
	assert.False(t, deletedB)
}

func TestClearMsgMarksMatchingMessageID(t *testing.T) {
	ts := time.Now()
	lines := Export([]storage.Message{
		msg(ts, "@id=abc;user-id=1 :a!a@a PRIVMSG #dallas :bad word"),
		msg(ts, "@target-msg-id=abc :tmi.twitch.tv CLEARMSG #dallas :bad word"),
	}, Options{HideModerationMessages: true})

	require.Len(t, lines, 1)
	parsed, _ := ircclient.ParseMessage(lines[0])
	deleted, _ := parsed.Tag("rm-deleted")
	assert.Equal(t, "1", deleted)
}

func TestIgnoredNoticeIsDropped(t *testing.T) {
	ts := time.Now()
	lines := Export([]storage.Message{
		msg(ts, "@msg-id=host_on :tmi.twitch.tv NOTICE #dallas :Now hosting."),
	}, Options{})
	assert.Empty(t, lines)
}

func TestHideModeratedMessagesElidesDeletedFrames(t *testing.T) {
	ts := time.Now()
	lines := Export([]storage.Message{
		msg(ts, "@id=1;user-id=1 :a!a@a PRIVMSG #dallas :hi"),
		msg(ts, ":tmi.twitch.tv CLEARCHAT #dallas"),
	}, Options{HideModeratedMessages: true})
	require.Len(t, lines, 1)
	parsed, _ := ircclient.ParseMessage(lines[0])
	assert.Equal(t, "CLEARCHAT", parsed.Command)
}

func TestHideModerationMessagesElidesClearchatClearmsg(t *testing.T) {
	ts := time.Now()
	lines := Export([]storage.Message{
		msg(ts, "@id=1;user-id=1 :a!a@a PRIVMSG #dallas :hi"),
		msg(ts, ":tmi.twitch.tv CLEARCHAT #dallas"),
	}, Options{HideModerationMessages: true})
	require.Len(t, lines, 1)
	parsed, _ := ircclient.ParseMessage(lines[0])
	assert.Equal(t, "PRIVMSG", parsed.Command)
}

func TestClearchatToNoticeRewritesTimeout(t *testing.T) {
	ts := time.Now()
	lines := Export([]storage.Message{
		msg(ts, "@target-user-id=1;ban-duration=120 :tmi.twitch.tv CLEARCHAT #dallas :baduser"),
	}, Options{ClearchatToNotice: true})

	require.Len(t, lines, 1)
	parsed, ok := ircclient.ParseMessage(lines[0])
	require.True(t, ok)
	assert.Equal(t, "NOTICE", parsed.Command)
	msgID, _ := parsed.Tag("msg-id")
	assert.Equal(t, "rm-timeout", msgID)
	assert.Contains(t, parsed.Params[1], "baduser")
}

func TestClearchatToNoticeRewritesPermaban(t *testing.T) {
	ts := time.Now()
	lines := Export([]storage.Message{
		msg(ts, "@target-user-id=1 :tmi.twitch.tv CLEARCHAT #dallas :baduser"),
	}, Options{ClearchatToNotice: true})

	require.Len(t, lines, 1)
	parsed, _ := ircclient.ParseMessage(lines[0])
	msgID, _ := parsed.Tag("msg-id")
	assert.Equal(t, "rm-permaban", msgID)
}

func TestExportIsIdempotentAcrossMultipleCalls(t *testing.T) {
	stored := []storage.Message{
		msg(time.Now(), "@id=1;user-id=1 :a!a@a PRIVMSG #dallas :hi"),
	}
	first := Export(stored, Options{})
	second := Export(stored, Options{})
	assert.Equal(t, first, second)
}

func TestRoomstateAndNonChannelCommandsFiltered(t *testing.T) {
	ts := time.Now()
	lines := Export([]storage.Message{
		msg(ts, ":tmi.twitch.tv ROOMSTATE #dallas"),
		msg(ts, ":a!a@a JOIN #dallas"),
		msg(ts, "PING :tmi.twitch.tv"),
	}, Options{})
	require.Len(t, lines, 1)
	parsed, _ := ircclient.ParseMessage(lines[0])
	assert.Equal(t, "ROOMSTATE", parsed.Command)
}
