package storage

import (
	"context"
	"sync"
	"time"
)

// nullableTime converts a zero time.Time into a nil driver value so the
// SQL-level IS NULL check treats an unset bound as unbounded.
func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// Message is one recorded IRC line.
type Message struct {
	ChannelLogin string
	TimeReceived time.Time
	RawLine      string
}

// MessageWindow bounds a GetMessages query: Before/After are exclusive
// bounds on time_received, zero-value meaning unbounded.
type MessageWindow struct {
	Before time.Time
	After  time.Time
}

// GetMessages returns up to limit messages for channelLogin within
// window, ordered oldest-first, most recent limit kept. The underlying
// query orders by time_received descending (cheapest use of the index
// covering a bounded retention buffer) and the result is reversed here.
func (s *Storage) GetMessages(ctx context.Context, channelLogin string, window MessageWindow, limit int) ([]Message, error) {
	idx := s.ShardFor(channelLogin)
	p := s.partitionFor(idx)

	conn, err := p.conn(ctx)
	if err != nil {
		return nil, wrapErr(p.name, "get_messages", err)
	}
	defer p.release(conn)

	rows, err := conn.QueryContext(ctx, `
		SELECT time_received, raw_line
		FROM message
		WHERE channel_login = $1
		  AND ($2::timestamptz IS NULL OR time_received < $2)
		  AND ($3::timestamptz IS NULL OR time_received > $3)
		ORDER BY time_received DESC
		LIMIT $4`,
		channelLogin, nullableTime(window.Before), nullableTime(window.After), limit)
	if err != nil {
		return nil, wrapErr(p.name, "get_messages", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		m.ChannelLogin = channelLogin
		if err := rows.Scan(&m.TimeReceived, &m.RawLine); err != nil {
			return nil, wrapErr(p.name, "get_messages", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(p.name, "get_messages", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// PurgeMessages deletes every stored message for channelLogin and
// returns the number of rows removed.
func (s *Storage) PurgeMessages(ctx context.Context, channelLogin string) (int64, error) {
	idx := s.ShardFor(channelLogin)
	p := s.partitionFor(idx)

	conn, err := p.conn(ctx)
	if err != nil {
		return 0, wrapErr(p.name, "purge_messages", err)
	}
	defer p.release(conn)

	res, err := conn.ExecContext(ctx,
		`DELETE FROM message WHERE channel_login = $1`, channelLogin)
	if err != nil {
		return 0, wrapErr(p.name, "purge_messages", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr(p.name, "purge_messages", err)
	}
	if n > 0 {
		messagesStored.WithLabelValues(p.name).Sub(float64(n))
	}
	return n, nil
}

// AppendMessages groups msgs by destination partition and inserts each
// group on its own goroutine, so a slow shard never holds up the inserts
// on the others. It returns only once every group's insert has finished.
// A failed insert drops that whole group; the failure is neither
// returned to the caller nor logged.
func (s *Storage) AppendMessages(ctx context.Context, msgs []Message) {
	if len(msgs) == 0 {
		return
	}

	byPartition := make(map[int][]Message)
	for _, m := range msgs {
		idx := s.ShardFor(m.ChannelLogin)
		byPartition[idx] = append(byPartition[idx], m)
	}

	var wg sync.WaitGroup
	for idx, group := range byPartition {
		wg.Add(1)
		go func(idx int, group []Message) {
			defer wg.Done()
			s.appendToPartition(ctx, s.partitionFor(idx), group)
		}(idx, group)
	}
	wg.Wait()
}

func (s *Storage) appendToPartition(ctx context.Context, p *partition, group []Message) {
	conn, err := p.conn(ctx)
	if err != nil {
		return
	}
	defer p.release(conn)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO message (channel_login, time_received, raw_line) VALUES ($1, $2, $3)`)
	if err != nil {
		_ = tx.Rollback()
		return
	}

	for _, m := range group {
		if _, err := stmt.ExecContext(ctx, m.ChannelLogin, m.TimeReceived, m.RawLine); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return
		}
	}
	_ = stmt.Close()

	if err := tx.Commit(); err != nil {
		return
	}

	messagesAppended.WithLabelValues(p.name).Add(float64(len(group)))
	messagesStored.WithLabelValues(p.name).Add(float64(len(group)))
}

// VacuumChannel trims channelLogin's messages down to maxBufferSize,
// combining the age cutoff and the size cutoff into a single DELETE: a
// message is removed if it's older than maxAge, OR if it falls beyond
// the maxBufferSize-th most recent row.
func (s *Storage) VacuumChannel(ctx context.Context, channelLogin string, maxBufferSize int, maxAge time.Duration) (int64, error) {
	idx := s.ShardFor(channelLogin)
	p := s.partitionFor(idx)

	vacuumRuns.WithLabelValues(p.name).Inc()

	conn, err := p.conn(ctx)
	if err != nil {
		return 0, wrapErr(p.name, "vacuum_channel", err)
	}
	defer p.release(conn)

	res, err := conn.ExecContext(ctx, `
		DELETE FROM message
		WHERE channel_login = $1
		  AND (
		    time_received < now() - make_interval(secs => $2)
		    OR time_received < COALESCE((
		      SELECT time_received FROM message
		      WHERE channel_login = $1
		      ORDER BY time_received DESC
		      OFFSET GREATEST($3 - 1, 0) LIMIT 1
		    ), '-infinity'::timestamptz)
		  )`,
		channelLogin, maxAge.Seconds(), maxBufferSize)
	if err != nil {
		return 0, wrapErr(p.name, "vacuum_channel", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr(p.name, "vacuum_channel", err)
	}
	if n > 0 {
		messagesVacuumed.WithLabelValues(p.name).Add(float64(n))
		messagesStored.WithLabelValues(p.name).Sub(float64(n))
	}
	return n, nil
}
