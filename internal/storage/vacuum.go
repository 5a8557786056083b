package storage

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RunVacuumLoop periodically trims every known channel's message buffer
// and drops expired sessions. Per-channel deletes are paced across the
// vacuumEvery interval (vacuumEvery / number-of-channels between each
// one) so a channel list of any size produces roughly even load instead
// of a thundering herd of deletes every tick.
func (s *Storage) RunVacuumLoop(ctx context.Context, vacuumEvery, channelsExpireAfter, messagesExpireAfter time.Duration, maxBufferSize int, log *logrus.Logger) {
	ticker := time.NewTicker(vacuumEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runVacuumPass(ctx, vacuumEvery, channelsExpireAfter, messagesExpireAfter, maxBufferSize, log)
		}
	}
}

func (s *Storage) runVacuumPass(ctx context.Context, vacuumEvery, channelsExpireAfter, messagesExpireAfter time.Duration, maxBufferSize int, log *logrus.Logger) {
	if n, err := s.DeleteExpiredUserAuthorizations(ctx); err != nil {
		log.WithError(err).Warn("vacuum: failed to delete expired sessions")
	} else if n > 0 {
		log.WithField("count", n).Debug("vacuum: deleted expired sessions")
	}

	channels := s.channelsWithStoredMessages(ctx, log)
	if len(channels) == 0 {
		if err := s.DeleteStaleChannels(ctx, channelsExpireAfter); err != nil {
			log.WithError(err).Warn("vacuum: failed to delete stale channel rows")
		}
		return
	}

	pace := vacuumEvery / time.Duration(len(channels))
	if pace < time.Millisecond {
		pace = time.Millisecond
	}
	paceTicker := time.NewTicker(pace)
	defer paceTicker.Stop()

	for _, channel := range channels {
		select {
		case <-ctx.Done():
			return
		case <-paceTicker.C:
		}

		n, err := s.VacuumChannel(ctx, channel, maxBufferSize, messagesExpireAfter)
		if err != nil {
			log.WithError(err).WithField("channel", channel).Warn("vacuum: channel pass failed")
			continue
		}
		if n > 0 {
			log.WithFields(logrus.Fields{"channel": channel, "removed": n}).Debug("vacuum: trimmed channel")
		}
	}

	if err := s.DeleteStaleChannels(ctx, channelsExpireAfter); err != nil {
		log.WithError(err).Warn("vacuum: failed to delete stale channel rows")
	}
}

// channelsWithStoredMessages unions the distinct channel_logins that
// currently have any stored message across every partition. Driving the
// vacuum worklist this way, rather than from the channel table, ensures
// a channel whose messages arrived before any read ever touched it (so
// it has no channel row at all) still gets trimmed.
func (s *Storage) channelsWithStoredMessages(ctx context.Context, log *logrus.Logger) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range s.partitions() {
		logins, err := p.distinctChannelLoginsWithMessages(ctx)
		if err != nil {
			log.WithError(err).WithField("partition", p.name).Warn("vacuum: failed to list channels with messages, skipping partition")
			continue
		}
		for _, login := range logins {
			if _, ok := seen[login]; ok {
				continue
			}
			seen[login] = struct{}{}
			out = append(out, login)
		}
	}
	return out
}

// distinctChannelLoginsWithMessages returns the distinct channel_logins
// with at least one row in this partition's message table.
func (p *partition) distinctChannelLoginsWithMessages(ctx context.Context) ([]string, error) {
	conn, err := p.conn(ctx)
	if err != nil {
		return nil, wrapErr(p.name, "distinct_channel_logins_with_messages", err)
	}
	defer p.release(conn)

	rows, err := conn.QueryContext(ctx, `SELECT DISTINCT channel_login FROM message`)
	if err != nil {
		return nil, wrapErr(p.name, "distinct_channel_logins_with_messages", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var login string
		if err := rows.Scan(&login); err != nil {
			return nil, wrapErr(p.name, "distinct_channel_logins_with_messages", err)
		}
		out = append(out, login)
	}
	return out, rows.Err()
}

// DeleteStaleChannels drops channel rows that haven't been touched
// within expiry and aren't ignored (an ignored channel is a deliberate,
// sticky setting and must survive inactivity).
func (s *Storage) DeleteStaleChannels(ctx context.Context, expiry time.Duration) error {
	conn, err := s.main.conn(ctx)
	if err != nil {
		return wrapErr(s.main.name, "delete_stale_channels", err)
	}
	defer s.main.release(conn)

	_, err = conn.ExecContext(ctx, `
		DELETE FROM channel
		WHERE ignored_at IS NULL
		  AND last_access < now() - make_interval(secs => $1)`,
		expiry.Seconds())
	return wrapErr(s.main.name, "delete_stale_channels", err)
}
