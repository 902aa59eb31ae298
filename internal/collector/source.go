package collector

import (
	"sync"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

// ChannelSource delivers events read from a channel, one at a time, so that
// callbacks never run concurrently with each other.
type ChannelSource struct {
	name   string
	events <-chan domain.RawInteractionEvent
}

// NewChannelSource wraps events as a Source.
func NewChannelSource(name string, events <-chan domain.RawInteractionEvent) *ChannelSource {
	return &ChannelSource{name: name, events: events}
}

func (s *ChannelSource) Name() string { return s.name }

// Subscribe starts a delivery goroutine. release stops it and waits for the
// in-flight callback to return.
func (s *ChannelSource) Subscribe(sink func(domain.RawInteractionEvent)) (func(), error) {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-s.events:
				if !ok {
					return
				}
				sink(ev)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
		})
	}, nil
}
