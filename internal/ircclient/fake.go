package ircclient

import (
	"context"
	"sync"
)

// Fake is an in-memory Client used by tests in internal/ingest,
// internal/joinpart, and internal/web that depend only on the Client
// interface.
type Fake struct {
	mu       sync.Mutex
	wanted   map[string]struct{}
	joined   map[string]bool
	messages chan Message

	JoinCalls []string
	PartCalls []string
}

// NewFake builds an empty Fake with a buffered inbound channel.
func NewFake() *Fake {
	return &Fake{
		wanted:   make(map[string]struct{}),
		joined:   make(map[string]bool),
		messages: make(chan Message, 1024),
	}
}

func (f *Fake) Join(channelLogin string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wanted[channelLogin] = struct{}{}
	f.joined[channelLogin] = true
	f.JoinCalls = append(f.JoinCalls, channelLogin)
}

func (f *Fake) Part(channelLogin string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.wanted, channelLogin)
	delete(f.joined, channelLogin)
	f.PartCalls = append(f.PartCalls, channelLogin)
}

func (f *Fake) SetWantedChannels(channelLogins map[string]struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range channelLogins {
		if _, ok := f.wanted[ch]; !ok {
			f.JoinCalls = append(f.JoinCalls, ch)
			f.joined[ch] = true
		}
	}
	for ch := range f.wanted {
		if _, ok := channelLogins[ch]; !ok {
			f.PartCalls = append(f.PartCalls, ch)
			delete(f.joined, ch)
		}
	}
	f.wanted = make(map[string]struct{}, len(channelLogins))
	for ch := range channelLogins {
		f.wanted[ch] = struct{}{}
	}
}

func (f *Fake) GetChannelStatus(channelLogin string) ChannelStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, wanted := f.wanted[channelLogin]
	return ChannelStatus{Wanted: wanted, Joined: f.joined[channelLogin]}
}

func (f *Fake) Messages() <-chan Message { return f.messages }

func (f *Fake) Run(ctx context.Context) error {
	<-ctx.Done()
	close(f.messages)
	return ctx.Err()
}

// Emit pushes a message into the fake's inbound stream for tests.
func (f *Fake) Emit(msg Message) {
	f.messages <- msg
}
