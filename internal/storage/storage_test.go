package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardForIsDeterministic(t *testing.T) {
	s := &Storage{shards: make([]*partition, 3)}
	for i := range s.shards {
		s.shards[i] = &partition{name: fmt.Sprintf("shard%d", i)}
	}

	first := s.ShardFor("some_channel")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, s.ShardFor("some_channel"))
	}
	assert.GreaterOrEqual(t, first, 1)
	assert.LessOrEqual(t, first, 3)
}

func TestShardForNoShardsRoutesToMain(t *testing.T) {
	s := &Storage{}
	assert.Equal(t, 0, s.ShardFor("anything"))
}

func TestShardForDistributesAcrossShards(t *testing.T) {
	s := &Storage{shards: make([]*partition, 4)}
	for i := range s.shards {
		s.shards[i] = &partition{name: fmt.Sprintf("shard%d", i)}
	}

	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		idx := s.ShardFor(fmt.Sprintf("channel_%d", i))
		seen[idx] = true
	}
	assert.Greater(t, len(seen), 1, "expected channels to land on more than one shard")
}

func TestStorageErrorWrapsAndUnwraps(t *testing.T) {
	inner := assert.AnError
	err := wrapErr("db0(main)", "touch_or_add_channel", inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "touch_or_add_channel")
	assert.Contains(t, err.Error(), "db0(main)")

	assert.Nil(t, wrapErr("db0(main)", "noop", nil))
}
