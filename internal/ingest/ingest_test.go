package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmrecorder/recentmessages/internal/ircclient"
	"github.com/rmrecorder/recentmessages/internal/storage"
)

type fakeAppender struct {
	mu    sync.Mutex
	calls [][]storage.Message
}

func (f *fakeAppender) AppendMessages(ctx context.Context, msgs []storage.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]storage.Message, len(msgs))
	copy(batch, msgs)
	f.calls = append(f.calls, batch)
}

func (f *fakeAppender) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.calls {
		n += len(b)
	}
	return n
}

func TestPipelineFiltersAndBatches(t *testing.T) {
	client := ircclient.NewFake()
	appender := &fakeAppender{}
	p := New(client, appender, 10*time.Millisecond, 100, 1024, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	client.Emit(ircclient.Message{Command: "PRIVMSG", Params: []string{"#dallas", "hi"}, Raw: "PRIVMSG #dallas :hi"})
	client.Emit(ircclient.Message{Command: "PING", Params: []string{"tmi.twitch.tv"}, Raw: "PING :tmi.twitch.tv"})
	client.Emit(ircclient.Message{Command: "PRIVMSG", Params: []string{"#dallas", "again"}, Raw: "PRIVMSG #dallas :again"})

	require.Eventually(t, func() bool {
		return appender.total() == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
}

func TestDrainOnceRespectsMaxChunkSize(t *testing.T) {
	client := ircclient.NewFake()
	appender := &fakeAppender{}
	p := New(client, appender, time.Hour, 2, 1024, nil)

	p.queue <- storage.Message{ChannelLogin: "a"}
	p.queue <- storage.Message{ChannelLogin: "b"}
	p.queue <- storage.Message{ChannelLogin: "c"}

	ctx := context.Background()
	n := p.drainOnce(ctx)
	assert.Equal(t, 2, n)

	n = p.drainOnce(ctx)
	assert.Equal(t, 1, n)

	n = p.drainOnce(ctx)
	assert.Equal(t, 0, n)
}

func TestQueueDropsOnOverflow(t *testing.T) {
	client := ircclient.NewFake()
	appender := &fakeAppender{}
	p := New(client, appender, time.Hour, 100, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.filter(ctx)

	client.Emit(ircclient.Message{Command: "PRIVMSG", Params: []string{"#a", "m1"}, Raw: "x"})
	client.Emit(ircclient.Message{Command: "PRIVMSG", Params: []string{"#a", "m2"}, Raw: "x"})
	client.Emit(ircclient.Message{Command: "PRIVMSG", Params: []string{"#a", "m3"}, Raw: "x"})

	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, len(p.queue), 1)
}
