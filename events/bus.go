// Package events carries simulation output from the engine to the
// transport without either side knowing about the other.
package events

import "sync"

const DefaultBuffer = 1024

// Event is one of Snapshot or ScoreUpdate.
type Event interface {
	Room() string
	event()
}

// Snapshot is emitted once per simulation tick.
type Snapshot struct {
	RoomCode string
	Tick     int
	Matrix   [][]string
	Fruits   []FruitView
}

type FruitView struct {
	ID     string
	Name   string
	Symbol string
	X, Y   float64
	Speed  float64
	Score  int
	Radius float64
}

// ScoreUpdate is emitted when a player lands a slice.
type ScoreUpdate struct {
	RoomCode string
	PlayerID string
	Score    int
}

func (s Snapshot) Room() string    { return s.RoomCode }
func (s ScoreUpdate) Room() string { return s.RoomCode }
func (Snapshot) event()            {}
func (ScoreUpdate) event()         {}

// Subscription receives events on C until Close is called.
type Subscription struct {
	C   <-chan Event
	ch  chan Event
	bus *Bus
}

func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// Bus fans published events out to every subscriber. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	s := &Subscription{C: ch, ch: ch, bus: b}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
		}
	}
}

// PublishSnapshot and PublishScore are typed shorthands for Publish.
func (b *Bus) PublishSnapshot(s Snapshot)  { b.Publish(s) }
func (b *Bus) PublishScore(u ScoreUpdate) { b.Publish(u) }

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
