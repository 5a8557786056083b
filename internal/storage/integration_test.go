//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rmrecorder/recentmessages/internal/config"
)

// startPostgres brings up a disposable Postgres container for a single
// partition. Skips the test outright if Docker isn't reachable, rather
// than failing the whole suite in environments without a daemon.
func startPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "recentmessages",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("docker unavailable, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		DBName:   "recentmessages",
		User:     "postgres",
		Password: "test",
		SSLMode:  "disable",
	}
}

func TestVacuumTrimsToMaxBufferSize(t *testing.T) {
	dbCfg := startPostgres(t)
	full := &config.DBConfig{MainDB: dbCfg}

	require.NoError(t, RunMigrations(full))
	s, err := Open(full)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.TouchOrAddChannel(ctx, "somechannel"))

	var msgs []Message
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 20; i++ {
		msgs = append(msgs, Message{
			ChannelLogin: "somechannel",
			TimeReceived: base.Add(time.Duration(i) * time.Second),
			RawLine:      "PRIVMSG #somechannel :hi",
		})
	}
	s.AppendMessages(ctx, msgs)

	n, err := s.VacuumChannel(ctx, "somechannel", 5, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(15), n)

	got, err := s.GetMessages(ctx, "somechannel", MessageWindow{}, 100)
	require.NoError(t, err)
	require.Len(t, got, 5)
	// oldest-first ordering among the surviving (most recent) messages
	for i := 1; i < len(got); i++ {
		require.True(t, got[i].TimeReceived.After(got[i-1].TimeReceived))
	}
}

func TestVacuumTrimsByAge(t *testing.T) {
	dbCfg := startPostgres(t)
	full := &config.DBConfig{MainDB: dbCfg}

	require.NoError(t, RunMigrations(full))
	s, err := Open(full)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.TouchOrAddChannel(ctx, "oldchannel"))

	s.AppendMessages(ctx, []Message{
		{ChannelLogin: "oldchannel", TimeReceived: time.Now().Add(-48 * time.Hour), RawLine: "old"},
		{ChannelLogin: "oldchannel", TimeReceived: time.Now(), RawLine: "new"},
	})

	n, err := s.VacuumChannel(ctx, "oldchannel", 500, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := s.GetMessages(ctx, "oldchannel", MessageWindow{}, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "new", got[0].RawLine)
}
