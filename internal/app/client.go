// Package app wires the notification client: the broker connection, subject
// routing, toasts, confirmation dialogs and failure escalation.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/clock"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/config"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/escalation"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/presenter"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/router"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/taskevents"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/broker"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/endpoint"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/fragment"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/notify"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned after Close
	ErrClosed = errors.New("client closed")
	// ErrAlreadyInitialized is returned when Initialize is called on a live session
	ErrAlreadyInitialized = errors.New("client already initialized")
	// ErrOffline is returned by operations that need a broker connection
	ErrOffline = errors.New("client is offline")
)

// Deps are the collaborators of a Client. Zero values are replaced by defaults.
type Deps struct {
	// Presenter shows notifications (a Toaster on a fresh StackRegion when nil)
	Presenter notify.Presenter
	// Dialogs owns confirmation dialogs (created when nil)
	Dialogs *presenter.Dialogs
	Clock   clock.Clock
	Logger  zerolog.Logger
}

// session is one connected lifetime of the client, replaced on reload
type session struct {
	conn    *broker.Conn
	sub     *broker.Subscription
	router  *router.Router
	pattern string
	cancel  context.CancelFunc
	done    chan struct{}
}

// Client is the notification client of one page. Construct it once and pass it
// to the code that needs it.
type Client struct {
	cfg       config.Config
	log       zerolog.Logger
	presenter notify.Presenter
	dialogs   *presenter.Dialogs
	escalator *escalation.Escalator
	reloads   chan struct{}

	mu      sync.Mutex
	session *session
	err     error
	closed  bool
	reloadN int
}

// New creates a client. No connection is made until Initialize.
func New(cfg config.Config, deps Deps) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Presenter == nil {
		region := presenter.NewStackRegion(presenter.StackOptions{Clock: deps.Clock})
		deps.Presenter = presenter.NewToaster(region, presenter.ToasterOptions{
			Timeout: cfg.ToastTimeout,
			Clock:   deps.Clock,
			Logger:  deps.Logger,
		})
	}
	if deps.Dialogs == nil {
		deps.Dialogs = presenter.NewDialogs(presenter.DialogsOptions{Logger: deps.Logger})
	}

	c := &Client{
		cfg:       cfg,
		log:       deps.Logger.With().Str("component", "app").Logger(),
		presenter: deps.Presenter,
		dialogs:   deps.Dialogs,
		reloads:   make(chan struct{}, 1),
	}
	c.escalator = escalation.New(deps.Presenter, escalation.ReloadFunc(c.Reload), escalation.Options{
		ReloadDelay: cfg.ReloadDelay,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
	})
	return c, nil
}

// Observer returns the failure observer to register on a fragment client
func (c *Client) Observer() fragment.Observer {
	return c.escalator
}

// Dialogs returns the confirmation dialogs
func (c *Client) Dialogs() *presenter.Dialogs {
	return c.dialogs
}

// subscriptionPattern picks the subject to listen on. It reports false when no
// user is known, in which case the client stays offline.
func (c *Client) subscriptionPattern() (string, bool, error) {
	if c.cfg.Subject != "" {
		return c.cfg.Subject, true, nil
	}
	if c.cfg.UserID != "" {
		p, err := taskevents.UserPattern(c.cfg.UserID)
		return p, err == nil, err
	}
	if id := c.cfg.Identity(); id.IsJWT() {
		userID, err := id.UserID()
		if err == nil {
			p, err := taskevents.UserPattern(userID)
			return p, err == nil, err
		}
		c.log.Debug().Err(err).Msg("token carries no user id")
	}
	return "", false, nil
}

// Initialize connects to the broker, subscribes and starts dispatching. Without a
// user id or subject it stays offline and returns nil. A failed first connection
// is returned as *broker.ConnectionError.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	closed, live := c.closed, c.session != nil
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if live {
		return ErrAlreadyInitialized
	}

	pattern, ok, err := c.subscriptionPattern()
	if err != nil {
		return fmt.Errorf("resolve subject: %w", err)
	}
	if !ok {
		c.log.Info().Msg("no user id, staying offline")
		return nil
	}

	url, err := endpoint.Resolve(c.cfg.Origin, c.cfg.Hub)
	if err != nil {
		return fmt.Errorf("resolve endpoint: %w", err)
	}

	opts := c.cfg.BrokerOptions()
	opts.Logger = &c.log
	opts.DisconnectHandler = func(err error) {
		c.log.Warn().Err(err).Msg("disconnected from broker")
	}
	opts.ReconnectHandler = func(url string) {
		c.log.Info().Str("url", url).Msg("reconnected to broker")
	}

	conn, err := broker.Connect(ctx, url, c.cfg.Identity(), opts)
	if err != nil {
		return err
	}
	sub, err := conn.Subscribe(pattern)
	if err != nil {
		conn.Close()
		return fmt.Errorf("subscribe %s: %w", pattern, err)
	}

	r := router.New(c.log)
	if err := taskevents.Register(r, c.presenter, c.log); err != nil {
		conn.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:    conn,
		sub:     sub,
		router:  r,
		pattern: pattern,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		conn.Close()
		return ErrClosed
	}
	c.session = s
	c.err = nil
	c.mu.Unlock()

	go c.dispatch(runCtx, s)
	c.log.Info().Str("url", url).Str("subject", pattern).Msg("listening for task notifications")
	return nil
}

func (c *Client) dispatch(ctx context.Context, s *session) {
	defer close(s.done)

	err := s.router.Run(ctx, s.sub)
	if ctx.Err() != nil {
		return
	}
	c.log.Error().Err(err).Msg("notification stream ended")

	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// OnFragmentInserted declares the dialogs found in newly inserted markup. Every
// element matching ".modal[id]" becomes a confirmation target. It returns the
// number of dialogs declared.
func (c *Client) OnFragmentInserted(scope *goquery.Selection) int {
	modals := scope.Filter(".modal[id]").AddSelection(scope.Find(".modal[id]"))

	declared := 0
	modals.Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		spec := presenter.DialogSpec{
			Title:   text(s.Find(".modal-title").First()),
			Body:    text(s.Find(".modal-body").First()),
			Confirm: text(s.Find(`[data-answer="true"]`).First()),
			Cancel:  text(s.Find(`[data-answer="false"]`).First()),
		}
		if err := c.dialogs.Declare(id, spec); err != nil {
			c.log.Warn().Err(err).Str("id", id).Msg("skipping dialog")
			return
		}
		declared++
	})
	return declared
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// ShowToastMessage shows n
func (c *Client) ShowToastMessage(n notify.Notification) {
	c.presenter.Show(n)
}

// ShowConfirmModal shows the dialog declared for target and returns its answer
func (c *Client) ShowConfirmModal(target string) (*presenter.Future[bool], error) {
	return c.dialogs.Confirm(target)
}

// PublishTask emits a task event of kind k. The subject is per-user when a user
// id is known, otherwise broadcast.
func (c *Client) PublishTask(k taskevents.Kind, task taskevents.Task) error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return ErrOffline
	}

	userID := c.cfg.UserID
	if userID == "" {
		userID = task.UserID
	}
	subj, err := taskevents.SubjectFor(userID, k)
	if err != nil {
		return err
	}
	if err := s.conn.PublishJSON(subj, taskevents.Event{Task: &task}); err != nil {
		return err
	}
	return s.conn.Flush()
}

// Reload requests a full reinitialization of the session. Requests are served by
// Run; a request made while one is queued is dropped.
func (c *Client) Reload() {
	select {
	case c.reloads <- struct{}{}:
		c.log.Info().Msg("reload requested")
	default:
	}
}

// Reinitialize tears the session down (connection and dialogs) and runs
// Initialize again.
func (c *Client) Reinitialize(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	s := c.session
	c.session = nil
	c.err = nil
	c.reloadN++
	c.mu.Unlock()

	c.teardown(s)
	c.dialogs.Reset()
	return c.Initialize(ctx)
}

// Run initializes the client and serves reload requests until ctx is done. It
// returns the terminal error of the notification stream, if any.
func (c *Client) Run(ctx context.Context) error {
	if err := c.Initialize(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.reloads:
			if err := c.Reinitialize(ctx); err != nil {
				return err
			}
		case <-c.sessionDone():
			if err := c.Err(); err != nil {
				return err
			}
		}
	}
}

// sessionDone returns a channel closed when the current session stops, or nil
// when offline
func (c *Client) sessionDone() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	return c.session.done
}

func (c *Client) teardown(s *session) {
	if s == nil {
		return
	}
	s.cancel()
	s.conn.Close()
	<-s.done
}

// Close stops the client. Pending reloads are cancelled.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.session
	c.session = nil
	c.mu.Unlock()

	c.escalator.Stop()
	c.teardown(s)
	c.dialogs.Reset()
	return nil
}

// Err returns the terminal error of the notification stream, if it ended
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Online reports whether a broker session is live
func (c *Client) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Status describes the connection state
func (c *Client) Status() string {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return "offline"
	}
	return s.conn.Status().String()
}

// Subject returns the subscribed pattern, or "" when offline
func (c *Client) Subject() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.pattern
}

// Reloads returns how many times the session was reinitialized
func (c *Client) Reloads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reloadN
}
