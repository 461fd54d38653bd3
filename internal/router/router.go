// Package router dispatches broker messages to handlers chosen by subject.
package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rmacdonaldsmith/tasknotify-go/pkg/broker"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/subject"
	"github.com/rs/zerolog"
)

// Handler processes one message
type Handler interface {
	Handle(ctx context.Context, msg *broker.Msg) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, msg *broker.Msg) error

// Handle calls f(ctx, msg)
func (f HandlerFunc) Handle(ctx context.Context, msg *broker.Msg) error {
	return f(ctx, msg)
}

// Stream is a source of messages, such as *broker.Subscription
type Stream interface {
	Next(ctx context.Context) (*broker.Msg, error)
}

// Stats counts dispatch outcomes
type Stats struct {
	Dispatched uint64
	Failed     uint64
	Unknown    uint64
}

type route struct {
	key     string
	handler Handler
}

// Router picks a handler per message: exact subjects first, then patterns, then
// suffixes in registration order, else the unknown handler.
type Router struct {
	log zerolog.Logger

	mu       sync.RWMutex
	exact    map[string]Handler
	patterns []route
	suffixes []route
	unknown  Handler

	dispatched atomic.Uint64
	failed     atomic.Uint64
	unknownN   atomic.Uint64
}

// New creates a router whose unknown handler logs and drops the message
func New(log zerolog.Logger) *Router {
	r := &Router{
		log:   log.With().Str("component", "router").Logger(),
		exact: make(map[string]Handler),
	}
	r.unknown = HandlerFunc(func(_ context.Context, msg *broker.Msg) error {
		r.log.Debug().Str("subject", msg.Subject).Msg("dropped unknown message")
		return nil
	})
	return r
}

// HandleExact routes one literal subject to h
func (r *Router) HandleExact(subj string, h Handler) error {
	if err := subject.ValidateSubject(subj); err != nil {
		return fmt.Errorf("invalid subject: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact[subj] = h
	return nil
}

// HandlePattern routes subjects matching a wildcard pattern to h
func (r *Router) HandlePattern(pattern string, h Handler) error {
	if err := subject.ValidatePattern(pattern); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, route{key: pattern, handler: h})
	return nil
}

// HandleSuffix routes subjects ending in suffix (for example ".expired") to h
func (r *Router) HandleSuffix(suffix string, h Handler) error {
	if suffix == "" {
		return fmt.Errorf("suffix cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.suffixes = append(r.suffixes, route{key: suffix, handler: h})
	return nil
}

// HandleUnknown replaces the handler for subjects that match nothing
func (r *Router) HandleUnknown(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unknown = h
}

func (r *Router) lookup(subj string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.exact[subj]; ok {
		return h, true
	}
	for _, rt := range r.patterns {
		if subject.Match(rt.key, subj) {
			return rt.handler, true
		}
	}
	for _, rt := range r.suffixes {
		if strings.HasSuffix(subj, rt.key) {
			return rt.handler, true
		}
	}
	return r.unknown, false
}

// Dispatch runs the handler for msg to completion. Handler errors and panics are
// logged; nothing escapes Dispatch.
func (r *Router) Dispatch(ctx context.Context, msg *broker.Msg) {
	h, known := r.lookup(msg.Subject)
	if !known {
		r.unknownN.Add(1)
	}
	r.dispatched.Add(1)

	if err := r.call(ctx, h, msg); err != nil {
		r.failed.Add(1)
		r.log.Error().Err(err).Str("subject", msg.Subject).Msg("handler failed")
	}
}

func (r *Router) call(ctx context.Context, h Handler, msg *broker.Msg) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Debug().Bytes("stack", debug.Stack()).Msg("handler panic")
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	if h == nil {
		return nil
	}
	return h.Handle(ctx, msg)
}

// Run pulls messages from stream one at a time and dispatches each before pulling
// the next. It returns the stream's terminal error or the context error.
func (r *Router) Run(ctx context.Context, stream Stream) error {
	for {
		msg, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		r.Dispatch(ctx, msg)
	}
}

// Stats returns dispatch counters
func (r *Router) Stats() Stats {
	return Stats{
		Dispatched: r.dispatched.Load(),
		Failed:     r.failed.Load(),
		Unknown:    r.unknownN.Load(),
	}
}
