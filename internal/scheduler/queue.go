package scheduler

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luciancaetano/showdown"
)

// State is the lifecycle state of a queued item. Pending moves to exactly one
// of Sent or Discarded.
type State int32

const (
	Pending State = iota
	Sent
	Discarded
)

func (s State) String() string {
	switch s {
	case Sent:
		return "sent"
	case Discarded:
		return "discarded"
	default:
		return "pending"
	}
}

// Item is one queued output.
type Item struct {
	payload   []string
	createdAt time.Time
	notBefore time.Time
	expireAt  time.Time // zero: never expires
	state     atomic.Int32
}

// Payload returns a copy of the lines to send.
func (i *Item) Payload() []string { return slices.Clone(i.payload) }

func (i *Item) State() State { return State(i.state.Load()) }

func (i *Item) NotBefore() time.Time { return i.notBefore }

// ExpireAt is the instant after which the item is dropped. Zero means never.
func (i *Item) ExpireAt() time.Time { return i.expireAt }

func (i *Item) ready(now time.Time) bool { return !now.Before(i.notBefore) }

func (i *Item) expired(now time.Time) bool {
	return !i.expireAt.IsZero() && now.After(i.expireAt)
}

// settle moves a pending item to its terminal state. It reports false when
// the item was already consumed.
func (i *Item) settle(to State) bool {
	return i.state.CompareAndSwap(int32(Pending), int32(to))
}

// Queue is a FIFO of pending outputs, safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	items  []*Item
	notify chan struct{}
	clock  Clock
}

// NewQueue returns an empty queue stamping items with clock.
func NewQueue(clock Clock) *Queue {
	if clock == nil {
		clock = RealClock()
	}
	return &Queue{
		notify: make(chan struct{}, 1),
		clock:  clock,
	}
}

// Add queues content to be sent no sooner than delay from now and no later
// than expireAfter from now. showdown.Forever disables expiry.
func (q *Queue) Add(content []string, delay, expireAfter time.Duration) (*Item, error) {
	if len(content) == 0 {
		return nil, showdown.InvalidArgument(showdown.ErrMsgEmptyPayload)
	}
	opts := showdown.SendOptions{Delay: delay, ExpireAfter: expireAfter}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	now := q.clock.Now()
	item := &Item{
		payload:   slices.Clone(content),
		createdAt: now,
		notBefore: now.Add(delay),
	}
	if expireAfter != showdown.Forever {
		item.expireAt = now.Add(expireAfter)
	}

	q.push(item)
	return item, nil
}

// Len returns the number of items waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards every waiting item and returns how many there were.
func (q *Queue) Clear() int {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, item := range items {
		item.settle(Discarded)
	}
	return len(items)
}

// Pop removes the oldest item, waiting until one is available or ctx ends.
func (q *Queue) Pop(ctx context.Context) (*Item, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *Queue) push(item *Item) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
