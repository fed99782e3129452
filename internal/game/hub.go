// Package game fans committed matches out to viewers and drives the duel
// machine against a match store.
package game

import (
	"sync"

	"tinyduel/internal/duel"
)

// Hub delivers committed match snapshots to subscribers grouped by match id.
// Publish never waits on a subscriber: each one owns a single-slot mailbox
// that keeps only the newest pending snapshot.
type Hub struct {
	mu     sync.Mutex
	topics map[string]*topic
	closed bool
}

type topic struct {
	latest int64
	subs   map[*subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]*topic)}
}

// Subscribe registers fn for snapshots of matchID. The returned function
// unsubscribes; it is safe to call more than once, including from inside fn,
// and no new callback is dispatched after it returns. A callback already
// running when it is called is allowed to finish.
func (h *Hub) Subscribe(matchID string, fn func(duel.Match)) func() {
	s := h.subscribe(matchID, fn)
	if s == nil {
		return func() {}
	}
	return s.stop
}

func (h *Hub) subscribe(matchID string, fn func(duel.Match)) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || fn == nil {
		return nil
	}
	t, ok := h.topics[matchID]
	if !ok {
		t = &topic{subs: make(map[*subscriber]struct{})}
		h.topics[matchID] = t
	}
	s := newSubscriber(fn)
	s.onStop = func() { h.remove(matchID, s) }
	t.subs[s] = struct{}{}
	go s.run()
	return s
}

// Publish offers m to every subscriber of m.ID. Snapshots that are not newer
// than one already published for the match are dropped.
func (h *Hub) Publish(m duel.Match) {
	h.mu.Lock()
	t, ok := h.topics[m.ID]
	if !ok || m.Version <= t.latest {
		h.mu.Unlock()
		return
	}
	t.latest = m.Version
	subs := make([]*subscriber, 0, len(t.subs))
	for s := range t.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.offer(m)
	}
}

// Subscribers reports how many viewers are attached to matchID.
func (h *Hub) Subscribers(matchID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[matchID]; ok {
		return len(t.subs)
	}
	return 0
}

// Close stops every subscription. Later subscriptions are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var subs []*subscriber
	for _, t := range h.topics {
		for s := range t.subs {
			subs = append(subs, s)
		}
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

func (h *Hub) remove(matchID string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[matchID]
	if !ok {
		return
	}
	delete(t.subs, s)
	if len(t.subs) == 0 {
		delete(h.topics, matchID)
	}
}

type subscriber struct {
	fn     func(duel.Match)
	onStop func()

	box     sync.Mutex
	pending *duel.Match

	wake chan struct{}
	done chan struct{}
	once sync.Once

	// deliver guards the dispatch decision; it is never held while fn runs.
	deliver   sync.Mutex
	active    bool
	delivered int64
}

func newSubscriber(fn func(duel.Match)) *subscriber {
	return &subscriber{
		fn:     fn,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		active: true,
	}
}

// offer replaces the pending snapshot if m is newer.
func (s *subscriber) offer(m duel.Match) {
	s.box.Lock()
	if s.pending == nil || m.Version > s.pending.Version {
		s.pending = &m
	}
	s.box.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) take() (duel.Match, bool) {
	s.box.Lock()
	defer s.box.Unlock()
	if s.pending == nil {
		return duel.Match{}, false
	}
	m := *s.pending
	s.pending = nil
	return m, true
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		m, ok := s.take()
		if !ok {
			continue
		}
		s.deliver.Lock()
		if !s.active {
			s.deliver.Unlock()
			return
		}
		fresh := m.Version > s.delivered
		if fresh {
			s.delivered = m.Version
		}
		s.deliver.Unlock()
		if fresh {
			s.fn(m.Clone())
		}
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		s.deliver.Lock()
		s.active = false
		s.deliver.Unlock()
		close(s.done)
		if s.onStop != nil {
			s.onStop()
		}
	})
}
