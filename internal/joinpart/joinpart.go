// Package joinpart reconciles the IRC client's joined-channel set
// against the channel table on a fixed interval.
package joinpart

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rmrecorder/recentmessages/internal/ircclient"
)

// ChannelSource is the slice of storage.Storage this loop depends on.
type ChannelSource interface {
	GetChannelsToJoin(ctx context.Context, expiry time.Duration) (map[string]struct{}, error)
}

// Loop ticks at every, queries ChannelSource, and reconciles the IRC
// client's wanted set against the result. A query failure is logged
// and the tick is skipped rather than parting every channel.
func Loop(ctx context.Context, client ircclient.Client, source ChannelSource, every, expiry time.Duration, log *logrus.Logger) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	reconcileOnce(ctx, client, source, expiry, log)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reconcileOnce(ctx, client, source, expiry, log)
		}
	}
}

func reconcileOnce(ctx context.Context, client ircclient.Client, source ChannelSource, expiry time.Duration, log *logrus.Logger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	wanted, err := source.GetChannelsToJoin(ctx, expiry)
	if err != nil {
		log.WithError(err).Warn("joinpart: failed to query channels to join, skipping this iteration")
		return
	}
	client.SetWantedChannels(wanted)
}
