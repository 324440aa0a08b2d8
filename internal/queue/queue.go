// internal/queue/queue.go
package queue

import (
	"fmt"
	"sync"
	"time"
)

// TopicCampaignSends is the work queue drained by the dispatch pool. Items
// are ledger row ids, never payloads; workers re-load the row on dequeue.
const TopicCampaignSends = "campaign_sends"

// Queue decouples enqueueing from delivery. PublishAfter defers visibility of
// an item, which is how retry backoff is honored without a worker sleeping.
type Queue interface {
	Publish(topic string, messageID int64) error
	PublishAfter(topic string, messageID int64, delay time.Duration) error

	// Subscribe starts a fixed pool of workers draining the topic. Handler
	// errors are the handler's problem; the queue never re-delivers on its
	// own.
	Subscribe(topic string, workers int, handler func(messageID int64) error) error

	Close() error
}

// InMemory is a process-local queue for single-binary deployments and tests.
// Deferred items become visible via timers, so a backed-off message never
// occupies a worker.
type InMemory struct {
	mu     sync.Mutex
	topics map[string]chan int64
	closed bool
	wg     sync.WaitGroup
}

const inMemoryBuffer = 4096

func NewInMemory() *InMemory {
	return &InMemory{
		topics: make(map[string]chan int64),
	}
}

func (q *InMemory) channel(topic string) (chan int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, fmt.Errorf("queue closed")
	}
	ch, ok := q.topics[topic]
	if !ok {
		ch = make(chan int64, inMemoryBuffer)
		q.topics[topic] = ch
	}
	return ch, nil
}

// Publish sends under the mutex so Close cannot close the channel between the
// lookup and the send. The send is non-blocking, so holding the lock is safe.
func (q *InMemory) Publish(topic string, messageID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue closed")
	}
	ch, ok := q.topics[topic]
	if !ok {
		ch = make(chan int64, inMemoryBuffer)
		q.topics[topic] = ch
	}
	select {
	case ch <- messageID:
		return nil
	default:
		return fmt.Errorf("queue full for topic %s", topic)
	}
}

func (q *InMemory) PublishAfter(topic string, messageID int64, delay time.Duration) error {
	if delay <= 0 {
		return q.Publish(topic, messageID)
	}
	time.AfterFunc(delay, func() {
		// The queue may have been closed while the timer ran; drop the item.
		_ = q.Publish(topic, messageID)
	})
	return nil
}

func (q *InMemory) Subscribe(topic string, workers int, handler func(messageID int64) error) error {
	ch, err := q.channel(topic)
	if err != nil {
		return err
	}
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for id := range ch {
				_ = handler(id)
			}
		}()
	}
	return nil
}

func (q *InMemory) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for _, ch := range q.topics {
		close(ch)
	}
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemory)(nil)
