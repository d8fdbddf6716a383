package evaluation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/kafka"
)

type memPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *memPublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func TestCollectorPublishesUntilClose(t *testing.T) {
	pub := &memPublisher{}
	c := NewCollector(pub, 16)
	c.Start(context.Background())

	c.Track(QueryEvent{Type: EventQuery, RunID: "r1", Topic: "401"})
	c.Track(RunCompletedEvent{Type: EventRunCompleted, RunID: "r1"})
	c.Close()

	assert.Len(t, pub.events, 2)
	assert.Equal(t, "r1", pub.events[0].Key)
	assert.Equal(t, "r1", pub.events[1].Key)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&memPublisher{}, 1)
	c.Track(QueryEvent{RunID: "a"})
	c.Track(QueryEvent{RunID: "b"})
	assert.Equal(t, int64(1), c.Dropped())
}

func TestCollectorDrainsOnCancel(t *testing.T) {
	pub := &memPublisher{}
	c := NewCollector(pub, 8)
	c.Track(QueryEvent{RunID: "a"})
	c.Track(QueryEvent{RunID: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Start(ctx)
	<-c.done

	assert.Len(t, pub.events, 2)
}
