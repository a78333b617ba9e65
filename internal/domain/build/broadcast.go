package build

import "sync"

// broadcaster fans snapshots out to subscribers. A slow subscriber sees
// intermediate snapshots coalesced into the latest one; since every
// snapshot carries the full log, nothing is lost and order is kept.
// Terminal snapshots are never coalesced away.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[*Subscription]struct{})}
}

// Subscription receives published snapshots in order
type Subscription struct {
	hub  *broadcaster
	out  chan Snapshot
	wake chan struct{}
	// done stops delivery at once; drain stops it after the queue empties
	done      chan struct{}
	drain     chan struct{}
	once      sync.Once
	drainOnce sync.Once

	mu      sync.Mutex
	pending []Snapshot
}

// C returns the snapshot channel. It closes when the subscription or the
// session is closed.
func (s *Subscription) C() <-chan Snapshot {
	return s.out
}

// Close stops delivery
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) finish() {
	s.drainOnce.Do(func() { close(s.drain) })
}

func (s *Subscription) push(snap Snapshot) {
	s.mu.Lock()
	if n := len(s.pending); n > 0 && !s.pending[n-1].Phase.Terminal() {
		s.pending[n-1] = snap
	} else {
		s.pending = append(s.pending, snap)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.drain:
				return
			case <-s.done:
				return
			}
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}

// subscribe registers a subscriber and queues initial as its first snapshot
func (b *broadcaster) subscribe(initial Snapshot) *Subscription {
	s := &Subscription{
		hub:     b,
		out:     make(chan Snapshot),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		drain:   make(chan struct{}),
		pending: []Snapshot{initial},
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.finish()
	} else {
		b.subs[s] = struct{}{}
		b.mu.Unlock()
	}

	go s.pump()
	return s
}

func (b *broadcaster) publish(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		s.push(snap)
	}
}

func (b *broadcaster) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s)
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// close ends every subscription after its queued snapshots are delivered
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.finish()
	}
	b.subs = nil
}
