package broker

import (
	"context"
	"encoding/json"
	"iter"
	"sync"

	"github.com/nats-io/nats.go"
)

// Msg is a message delivered on a subscription
type Msg struct {
	Subject string
	Reply   string
	Header  nats.Header
	Data    []byte
}

func newMsg(m *nats.Msg) *Msg {
	return &Msg{Subject: m.Subject, Reply: m.Reply, Header: m.Header, Data: m.Data}
}

// JSON decodes the payload into v
func (m *Msg) JSON(v any) error {
	return json.Unmarshal(m.Data, v)
}

// Subscription is a lazy, unbounded, ordered stream of messages matching Pattern.
// It is bound to one Conn and is re-registered automatically after reconnects.
// A Subscription cannot be restarted; subscribe again for a fresh stream.
type Subscription struct {
	conn    *Conn
	sid     int64
	pattern string

	// nsub is the registration on the current nats connection; guarded by conn.mu
	nsub *nats.Subscription

	mu     sync.Mutex
	queue  []*Msg
	err    error
	notify chan struct{}
}

func newSubscription(conn *Conn, sid int64, pattern string) *Subscription {
	return &Subscription{
		conn:    conn,
		sid:     sid,
		pattern: pattern,
		notify:  make(chan struct{}, 1),
	}
}

// Pattern returns the subject pattern of this subscription
func (s *Subscription) Pattern() string {
	return s.pattern
}

// Next blocks until the next message arrives. Once the stream has ended, Next keeps
// returning the terminal error after all queued messages have been consumed.
func (s *Subscription) Next(ctx context.Context) (*Msg, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return msg, nil
		}
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return nil, err
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Messages returns the stream as a range-over-func sequence. The sequence ends after
// yielding a terminal error.
func (s *Subscription) Messages(ctx context.Context) iter.Seq2[*Msg, error] {
	return func(yield func(*Msg, error) bool) {
		for {
			msg, err := s.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// Pending returns the number of queued, unconsumed messages
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Unsubscribe removes the subscription from the broker and ends the stream
func (s *Subscription) Unsubscribe() error {
	err := s.conn.unsubscribe(s.sid)
	s.terminate(ErrSubscriptionClosed)
	return err
}

// deliver is the nats message handler of this subscription
func (s *Subscription) deliver(m *nats.Msg) {
	s.push(newMsg(m))
}

func (s *Subscription) push(msg *Msg) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) terminate(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
