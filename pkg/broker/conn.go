package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/subject"
	"github.com/rs/zerolog"
)

// Status is the lifecycle state of a Conn
type Status int

const (
	// StatusConnecting is the state before the first connection succeeds
	StatusConnecting Status = iota
	// StatusConnected means a connection is live
	StatusConnected
	// StatusReconnecting means the connection dropped and a replacement is being dialed
	StatusReconnecting
	// StatusClosed is terminal
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ServerInfo describes the broker behind the current connection
type ServerInfo struct {
	ServerID   string
	ServerName string
	Version    string
	MaxPayload int64
	Headers    bool
}

func serverInfo(nc *nats.Conn) ServerInfo {
	return ServerInfo{
		ServerID:   nc.ConnectedServerId(),
		ServerName: nc.ConnectedServerName(),
		Version:    nc.ConnectedServerVersion(),
		MaxPayload: nc.MaxPayload(),
		Headers:    nc.HeadersSupported(),
	}
}

// Conn is the single live connection to the broker. The nats client never reconnects
// on its own: Conn owns the backoff loop and replaces the client when it drops.
type Conn struct {
	url       string
	id        Identity
	opts      Options
	log       zerolog.Logger
	callbacks *callbacks

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	nc      *nats.Conn
	info    ServerInfo
	status  Status
	subs    map[int64]*Subscription
	nextSID int64
}

// Connect establishes the connection described by opts and returns once the first
// handshake has completed. A failure is reported as *ConnectionError.
func Connect(ctx context.Context, url string, id Identity, opts Options) (*Conn, error) {
	opts.SetDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("invalid identity: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		url:       url,
		id:        id,
		opts:      opts,
		log:       opts.Logger.With().Str("component", "broker").Str("url", url).Logger(),
		callbacks: newCallbacks(),
		ctx:       connCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    StatusConnecting,
		subs:      make(map[int64]*Subscription),
	}

	nc, lost, attempts, err := c.connectFirst(ctx)
	if err != nil {
		cancel()
		c.setStatus(StatusClosed)
		return nil, &ConnectionError{URL: url, Attempts: attempts, Err: err}
	}

	c.attach(nc)
	c.log.Info().Int("attempts", attempts).Str("server", c.ServerInfo().ServerName).Msg("broker connected")

	go c.callbacks.run(c.done)
	go c.run(lost)
	return c, nil
}

// Status returns the current lifecycle state
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ServerInfo describes the broker of the most recent connection
func (c *Conn) ServerInfo() ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// URL returns the endpoint this connection dials
func (c *Conn) URL() string {
	return c.url
}

// Subscribe registers interest in pattern and returns a fresh message stream
func (c *Conn) Subscribe(pattern string) (*Subscription, error) {
	if err := subject.ValidatePattern(pattern); err != nil {
		return nil, fmt.Errorf("invalid subject pattern: %w", err)
	}

	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.nextSID++
	sub := newSubscription(c, c.nextSID, pattern)
	c.subs[sub.sid] = sub
	nc := c.nc
	c.mu.Unlock()

	// While reconnecting the subscription is registered by attach on the next connection.
	if nc != nil {
		c.bind(nc, sub)
	}

	c.log.Debug().Int64("sid", sub.sid).Str("pattern", pattern).Msg("subscribed")
	return sub, nil
}

// bind registers sub on nc. The registration is dropped again when sub was removed
// or nc replaced while the call was in flight.
func (c *Conn) bind(nc *nats.Conn, sub *Subscription) {
	nsub, err := nc.Subscribe(sub.pattern, sub.deliver)
	if err != nil {
		c.log.Warn().Err(err).Str("pattern", sub.pattern).Msg("register subscription; will retry after reconnect")
		return
	}

	c.mu.Lock()
	current := c.nc == nc && c.subs[sub.sid] == sub
	if current {
		sub.nsub = nsub
	}
	c.mu.Unlock()

	if !current {
		nsub.Unsubscribe()
	}
}

// Publish sends data to subject
func (c *Conn) Publish(subj string, data []byte) error {
	if err := subject.ValidateSubject(subj); err != nil {
		return fmt.Errorf("invalid subject: %w", err)
	}

	nc, err := c.current()
	if err != nil {
		return err
	}
	return natsError(nc.Publish(subj, data))
}

// PublishJSON marshals v and publishes it to subject
func (c *Conn) PublishJSON(subj string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.Publish(subj, data)
}

// Flush waits until the broker has processed everything published so far
func (c *Conn) Flush() error {
	nc, err := c.current()
	if err != nil {
		return err
	}
	return natsError(nc.FlushTimeout(c.opts.WriteTimeout))
}

func (c *Conn) current() (*nats.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusClosed {
		return nil, ErrConnectionClosed
	}
	if c.nc == nil {
		return nil, ErrNotConnected
	}
	return c.nc, nil
}

// Close tears the connection down. Every subscription ends with ErrConnectionClosed.
// It is safe to call from a DisconnectHandler or ReconnectHandler.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.status = StatusClosed
	nc := c.nc
	c.nc = nil
	subs := c.takeSubsLocked()
	c.mu.Unlock()

	c.cancel()
	if nc != nil {
		nc.Close()
	}
	<-c.done

	for _, sub := range subs {
		sub.terminate(ErrConnectionClosed)
	}
	c.log.Info().Msg("broker connection closed")
	return nil
}

// Done is closed once the connection has stopped for good
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) unsubscribe(sid int64) error {
	c.mu.Lock()
	sub, ok := c.subs[sid]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.subs, sid)
	nsub := sub.nsub
	sub.nsub = nil
	c.mu.Unlock()

	if nsub == nil {
		return nil
	}
	if err := nsub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return natsError(err)
	}
	return nil
}

func (c *Conn) connectFirst(ctx context.Context) (*nats.Conn, <-chan error, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	attempts := 0
	delay := c.opts.ReconnectDelay
	var lastErr error

	for {
		attempts++
		nc, lost, err := c.dial(ctx)
		if err == nil {
			return nc, lost, attempts, nil
		}
		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempts).Msg("broker connect attempt failed")

		if errors.Is(err, ErrAuthorization) {
			return nil, nil, attempts, err
		}
		if ctx.Err() != nil {
			return nil, nil, attempts, c.firstConnectErr(ctx, lastErr)
		}
		if !c.opts.WaitForFirstConnect {
			return nil, nil, attempts, lastErr
		}
		if !c.opts.unlimited() && attempts > c.opts.MaxReconnectAttempts {
			return nil, nil, attempts, fmt.Errorf("%w: %v", ErrAttemptsExhausted, lastErr)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, nil, attempts, c.firstConnectErr(ctx, lastErr)
		}
		delay = c.opts.nextDelay(delay)
	}
}

func (c *Conn) firstConnectErr(ctx context.Context, last error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", ErrConnectTimeout, c.opts.ConnectTimeout, last)
	}
	return fmt.Errorf("%w: %v", ctx.Err(), last)
}

// dial opens one nats connection. The returned channel receives the reason once that
// connection is gone.
func (c *Conn) dial(ctx context.Context) (*nats.Conn, <-chan error, error) {
	timeout := c.opts.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if timeout <= 0 {
		return nil, nil, context.DeadlineExceeded
	}

	lost := make(chan error, 1)
	opts := append(c.id.natsOptions(),
		nats.Timeout(timeout),
		nats.NoReconnect(),
		nats.PingInterval(c.opts.PingInterval),
		nats.MaxPingsOutstanding(c.opts.MaxPingsOut),
		nats.FlusherTimeout(c.opts.WriteTimeout),
		nats.ClosedHandler(func(nc *nats.Conn) {
			err := nc.LastError()
			if err == nil {
				err = nats.ErrConnectionClosed
			}
			select {
			case lost <- natsError(err):
			default:
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			ev := c.log.Warn().Err(err)
			if sub != nil {
				ev = ev.Str("pattern", sub.Subject)
			}
			ev.Msg("broker reported an error")
		}),
	)

	type result struct {
		nc  *nats.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		nc, err := nats.Connect(c.url, opts...)
		ch <- result{nc: nc, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, nil, fmt.Errorf("dial: %w", natsError(r.err))
		}
		return r.nc, lost, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.nc != nil {
				r.nc.Close()
			}
		}()
		return nil, nil, ctx.Err()
	}
}

// attach makes nc the live connection and re-registers every active subscription on
// it. It reports false when the connection was closed in the meantime.
func (c *Conn) attach(nc *nats.Conn) bool {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return false
	}
	c.nc = nc
	c.info = serverInfo(nc)
	c.status = StatusConnected
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		c.bind(nc, sub)
	}
	if len(subs) > 0 {
		if err := nc.FlushTimeout(c.opts.WriteTimeout); err != nil {
			c.log.Warn().Err(err).Msg("confirm resubscriptions")
		}
	}
	return true
}

// run supervises the live connection and replaces it whenever it drops
func (c *Conn) run(lost <-chan error) {
	defer close(c.done)

	for {
		var cause error
		select {
		case cause = <-lost:
		case <-c.ctx.Done():
			return
		}

		c.mu.Lock()
		if c.status == StatusClosed {
			c.mu.Unlock()
			return
		}
		c.nc = nil
		c.status = StatusReconnecting
		for _, sub := range c.subs {
			sub.nsub = nil
		}
		c.mu.Unlock()

		c.log.Info().Err(cause).Msg("broker disconnected")
		if h := c.opts.DisconnectHandler; h != nil {
			c.callbacks.push(func() { h(cause) })
		}

		nc, next, err := c.reconnect()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.fail(err)
			return
		}
		if !c.attach(nc) {
			nc.Close()
			return
		}
		lost = next

		c.log.Info().Msg("broker reconnected")
		if h := c.opts.ReconnectHandler; h != nil {
			c.callbacks.push(func() { h(c.url) })
		}
	}
}

func (c *Conn) reconnect() (*nats.Conn, <-chan error, error) {
	delay := c.opts.ReconnectDelay
	attempts := 0

	for {
		if !c.opts.unlimited() && attempts >= c.opts.MaxReconnectAttempts {
			return nil, nil, ErrAttemptsExhausted
		}

		select {
		case <-time.After(delay):
		case <-c.ctx.Done():
			return nil, nil, ErrConnectionClosed
		}
		attempts++

		ctx, cancel := context.WithTimeout(c.ctx, c.opts.ConnectTimeout)
		nc, lost, err := c.dial(ctx)
		cancel()
		if err == nil {
			return nc, lost, nil
		}

		c.log.Warn().Err(err).Int("attempt", attempts).Dur("delay", delay).Msg("broker reconnect attempt failed")
		delay = c.opts.nextDelay(delay)
	}
}

// fail closes the connection after reconnection gave up
func (c *Conn) fail(err error) {
	c.mu.Lock()
	c.status = StatusClosed
	subs := c.takeSubsLocked()
	c.mu.Unlock()

	c.cancel()
	c.log.Error().Err(err).Msg("broker connection lost")
	for _, sub := range subs {
		sub.terminate(err)
	}
}

func (c *Conn) takeSubsLocked() []*Subscription {
	subs := make([]*Subscription, 0, len(c.subs))
	for sid, sub := range c.subs {
		subs = append(subs, sub)
		delete(c.subs, sid)
	}
	return subs
}

func (c *Conn) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}
