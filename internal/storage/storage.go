// Package storage is the DB access layer: one connection pool per
// database partition (one "main" partition plus N "shard" partitions),
// per-channel CRUD for message, channel, and user_authorization rows,
// and the stable hash that routes channel-keyed operations to a shard.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	_ "github.com/lib/pq"

	"github.com/rmrecorder/recentmessages/internal/config"
)

// StorageError wraps any pool or query failure from the DB layer.
type StorageError struct {
	Partition string
	Op        string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s on %s: %v", e.Op, e.Partition, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func wrapErr(partitionName, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Partition: partitionName, Op: op, Err: err}
}

// partition is a single connection pool plus its display name, matching
// the original's DatabaseAccess.
type partition struct {
	db   *sql.DB
	name string
}

func (p *partition) conn(ctx context.Context) (*sql.Conn, error) {
	timer := prometheusTimer(dbRetrievalTime.WithLabelValues(p.name))
	defer timer()

	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	dbConnectionsInUse.WithLabelValues(p.name).Inc()
	return c, nil
}

func (p *partition) release(c *sql.Conn) {
	dbConnectionsInUse.WithLabelValues(p.name).Dec()
	c.Close()
}

func prometheusTimer(o interface{ Observe(float64) }) func() {
	start := time.Now()
	return func() { o.Observe(time.Since(start).Seconds()) }
}

// Storage is the DB access layer used by every other subsystem.
type Storage struct {
	main   *partition
	shards []*partition
}

// Open dials the main partition and every configured shard partition.
func Open(cfg *config.DBConfig) (*Storage, error) {
	main, err := openPartition(cfg.MainDB, 0)
	if err != nil {
		return nil, fmt.Errorf("open main partition: %w", err)
	}

	shards := make([]*partition, 0, len(cfg.ShardDB))
	for i, shardCfg := range cfg.ShardDB {
		p, err := openPartition(shardCfg, i+1)
		if err != nil {
			return nil, fmt.Errorf("open shard partition %d: %w", i+1, err)
		}
		shards = append(shards, p)
	}

	return &Storage{main: main, shards: shards}, nil
}

func openPartition(cfg config.DatabaseConfig, partitionID int) (*partition, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}

	maxSize := cfg.Pool.MaxSize
	if maxSize <= 0 {
		maxSize = 10
	}
	db.SetMaxOpenConns(maxSize)
	db.SetMaxIdleConns(maxSize)
	if cfg.Pool.RecycleTimeout > 0 {
		db.SetConnMaxLifetime(cfg.Pool.RecycleTimeout)
	}

	kind := "main"
	if partitionID != 0 {
		kind = "shard"
	}
	name := fmt.Sprintf("db%d(%s)", partitionID, kind)
	if cfg.Name != "" {
		name = fmt.Sprintf("db%d(%s, %s)", partitionID, kind, cfg.Name)
	}

	dbConnectionsMax.WithLabelValues(name).Set(float64(maxSize))
	dbConnectionsInUse.WithLabelValues(name).Set(0)

	return &partition{db: db, name: name}, nil
}

// Close closes every partition's pool.
func (s *Storage) Close() error {
	var firstErr error
	if err := s.main.db.Close(); err != nil {
		firstErr = err
	}
	for _, shard := range s.shards {
		if err := shard.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// partitions returns every partition, main first, in partition-ID order.
// Used by the vacuum loop and startup metrics fanout.
func (s *Storage) partitions() []*partition {
	all := make([]*partition, 0, len(s.shards)+1)
	all = append(all, s.main)
	all = append(all, s.shards...)
	return all
}

// ShardFor deterministically routes a channel login to a partition
// index: 0 is main (used when there are no shards configured), 1..N
// are shard partitions. The mapping is stable across process restarts
// as long as the shard count doesn't change (spec.md Invariant 5).
func (s *Storage) ShardFor(channelLogin string) int {
	if len(s.shards) == 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(channelLogin))
	return 1 + int(h.Sum32()%uint32(len(s.shards)))
}

func (s *Storage) partitionFor(idx int) *partition {
	if idx == 0 {
		return s.main
	}
	return s.shards[idx-1]
}

// FetchInitialMetricsValues seeds the messages_stored gauge for every
// partition at startup so the counter isn't misleadingly zero.
func (s *Storage) FetchInitialMetricsValues(ctx context.Context) error {
	for _, p := range s.partitions() {
		conn, err := p.conn(ctx)
		if err != nil {
			return wrapErr(p.name, "fetch_initial_metrics", err)
		}

		var count int64
		err = conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM message").Scan(&count)
		p.release(conn)
		if err != nil {
			return wrapErr(p.name, "fetch_initial_metrics", err)
		}

		messagesStored.WithLabelValues(p.name).Set(float64(count))
	}
	return nil
}
