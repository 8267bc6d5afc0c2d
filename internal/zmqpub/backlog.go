package zmqpub

import "sync/atomic"

// backlog sits between WriteBatch and the socket goroutine. Messages go in and
// come out through channels; when more than limit are waiting, the oldest is
// discarded so a stalled socket never blocks batch processing.
type backlog struct {
	in      chan update
	out     chan update
	pending []update
	limit   int
	dropped atomic.Int64
}

func newBacklog(limit int) *backlog {
	b := &backlog{
		in:    make(chan update),
		out:   make(chan update),
		limit: max(limit, 1),
	}
	go b.run()
	return b
}

func (b *backlog) push(u update) {
	b.pending = append(b.pending, u)
	if len(b.pending) > b.limit {
		b.pending = b.pending[1:]
		b.dropped.Add(1)
	}
}

func (b *backlog) run() {
	for {
		if len(b.pending) == 0 {
			u, ok := <-b.in
			if !ok {
				close(b.out)
				return
			}
			b.push(u)
			continue
		}
		select {
		case b.out <- b.pending[0]:
			b.pending = b.pending[1:]
		case u, ok := <-b.in:
			if !ok {
				// Drain what is left, then close.
				for _, p := range b.pending {
					b.out <- p
				}
				b.pending = nil
				close(b.out)
				return
			}
			b.push(u)
		}
	}
}

// Dropped returns how many messages were discarded for lack of room.
func (b *backlog) Dropped() int64 {
	return b.dropped.Load()
}
