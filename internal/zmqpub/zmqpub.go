// Package zmqpub publishes a JSON summary of each processed batch on a ZMQ PUB socket.
package zmqpub

// Each message is two frames: a tag for subscription filtering, then the JSON body.

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	zmq "github.com/pebbe/zmq4"
	"github.com/usnistgov/evsel"
)

// BatchTag is the subscription tag of batch summaries.
const BatchTag = "BATCHSUMMARY"

// update carries one message to be published.
type update struct {
	tag     string
	message []byte
}

// BatchSummary is the published description of one batch.
type BatchSummary struct {
	ID          string
	Run         int
	NBCs        int
	NEvents     int
	NMatched    int
	NAccepted   int
	NSel7       int
	AliasCounts map[string]int
	ElapsedMS   int64
}

// Summarize condenses a batch result.
func Summarize(r *evsel.BatchResult) *BatchSummary {
	s := &BatchSummary{
		ID:          r.ID.String(),
		Run:         r.Run,
		NBCs:        len(r.BCs),
		NEvents:     len(r.Events),
		NAccepted:   r.Accepted,
		AliasCounts: make(map[string]int),
		ElapsedMS:   r.Finish.Sub(r.Start).Milliseconds(),
	}
	for k := range r.Events {
		e := &r.Events[k]
		if e.FoundBC != evsel.NoSignal {
			s.NMatched++
		}
		if e.Sel7 {
			s.NSel7++
		}
		for a := evsel.Alias(0); a < evsel.NAliases; a++ {
			if e.Alias.Has(a) {
				s.AliasCounts[a.String()]++
			}
		}
	}
	return s
}

// Publisher is a RecordSink. Only its own goroutine touches the socket.
type Publisher struct {
	queue *backlog
	done  chan struct{}
	once  sync.Once
}

// queueLimit is how many summaries may wait for the socket.
const queueLimit = 64

// New binds a PUB socket on port and starts publishing.
func New(port int) (*Publisher, error) {
	sock, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, err
	}
	if err := sock.Bind(fmt.Sprintf("tcp://*:%d", port)); err != nil {
		sock.Close()
		return nil, err
	}
	p := &Publisher{
		queue: newBacklog(queueLimit),
		done:  make(chan struct{}),
	}
	go p.run(sock)
	return p, nil
}

// run forwards every queued message to the socket until the queue is closed.
func (p *Publisher) run(sock *zmq.Socket) {
	defer close(p.done)
	defer sock.Close()
	for u := range p.queue.out {
		if _, err := sock.SendMessage(u.tag, u.message); err != nil {
			evsel.ProblemLogger.Printf("zmqpub: could not publish %s: %v", u.tag, err)
		}
	}
}

// WriteBatch implements evsel.RecordSink.
func (p *Publisher) WriteBatch(ctx context.Context, r *evsel.BatchResult) error {
	msg, err := json.Marshal(Summarize(r))
	if err != nil {
		return err
	}
	select {
	case p.queue.in <- update{tag: BatchTag, message: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops publishing after the queued messages are sent.
func (p *Publisher) Close() error {
	p.once.Do(func() { close(p.queue.in) })
	<-p.done
	if n := p.queue.Dropped(); n > 0 {
		evsel.ProblemLogger.Printf("zmqpub: dropped %d batch summaries", n)
	}
	return nil
}
