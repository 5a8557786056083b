// Package ingest turns the IRC client's inbound message stream into
// batched writes against storage: a filter stage extracts channel
// context and truncates timestamps to millisecond precision, then a
// batch worker drains the resulting queue on a fixed interval.
package ingest

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rmrecorder/recentmessages/internal/ircclient"
	"github.com/rmrecorder/recentmessages/internal/storage"
)

// Appender is the slice of storage.Storage the batch worker depends
// on, narrowed so tests can substitute a fake instead of a live DB.
type Appender interface {
	AppendMessages(ctx context.Context, msgs []storage.Message)
}

// Pipeline wires the filter stage to the batch worker via an internal
// bounded queue.
type Pipeline struct {
	client  ircclient.Client
	storage Appender
	log     *logrus.Logger

	queue         chan storage.Message
	runEvery      time.Duration
	maxChunkSize  int
}

// New constructs a Pipeline. queueSize bounds the internal channel
// between the filter and the batch worker; once full, newly arriving
// messages are dropped rather than blocking the IRC read loop.
func New(client ircclient.Client, store Appender, runEvery time.Duration, maxChunkSize, queueSize int, log *logrus.Logger) *Pipeline {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{
		client:       client,
		storage:      store,
		log:          log,
		queue:        make(chan storage.Message, queueSize),
		runEvery:     runEvery,
		maxChunkSize: maxChunkSize,
	}
}

// Run starts the filter stage and the batch worker, blocking until ctx
// is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		p.filter(ctx)
		close(done)
	}()
	p.batchWorker(ctx)
	<-done
}

// filter consumes the IRC client's inbound stream. Messages without
// channel context are ignored. ts is truncated to millisecond precision
// because it is also the external timestamp exposed via the
// rm-received-ts tag at read time, and before/after filtering must
// agree bit-exact with it.
func (p *Pipeline) filter(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.client.Messages():
			if !ok {
				return
			}
			channel, ok := msg.ChannelLogin()
			if !ok {
				continue
			}
			ts := time.Now().Truncate(time.Millisecond)
			entry := storage.Message{
				ChannelLogin: channel,
				TimeReceived: ts,
				RawLine:      msg.AsRawIRC(),
			}
			select {
			case p.queue <- entry:
			default:
				queueDropped.Inc()
			}
		}
	}
}

// batchWorker drains the queue on a fixed interval and dispatches each
// batch to storage. When a drain fills an entire chunk, it immediately
// tries again instead of waiting out the rest of the tick, so the
// worker catches up quickly under load instead of falling permanently
// behind.
func (p *Pipeline) batchWorker(ctx context.Context) {
	ticker := time.NewTicker(p.runEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.drainOnce(finalCtx)
			cancel()
			return
		case <-ticker.C:
			for p.drainOnce(ctx) == p.maxChunkSize {
			}
		}
	}
}

func (p *Pipeline) drainOnce(ctx context.Context) int {
	batch := make([]storage.Message, 0, p.maxChunkSize)
loop:
	for len(batch) < p.maxChunkSize {
		select {
		case m := <-p.queue:
			batch = append(batch, m)
		default:
			break loop
		}
	}
	if len(batch) == 0 {
		return 0
	}

	start := time.Now()
	p.storage.AppendMessages(ctx, batch)
	chunkDuration.Observe(time.Since(start).Seconds())
	chunkSize.Observe(float64(len(batch)))

	return len(batch)
}
