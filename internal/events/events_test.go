package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoBrokersMakesPublisherANoOp(t *testing.T) {
	p := New(nil, "", nil)
	assert.NotPanics(t, func() {
		p.ChannelIgnored(context.Background(), "dallas")
		p.ChannelUnignored(context.Background(), "dallas")
		p.MessagesPurged(context.Background(), "dallas", 5)
	})
	assert.NoError(t, p.Close())
}
