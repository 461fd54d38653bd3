// Package escalation turns failed page requests into notifications. A failed send
// is treated as unrecoverable and is followed by a reload.
package escalation

import (
	"sync"
	"time"

	"github.com/rmacdonaldsmith/tasknotify-go/internal/clock"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/fragment"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/notify"
	"github.com/rs/zerolog"
)

const (
	// DefaultReloadDelay is the wait between a send failure and the reload
	DefaultReloadDelay = 5 * time.Second

	// DefaultErrorText is shown when a failed response carries no message
	DefaultErrorText = "An error occurred."
	// ReloadText announces the reload after a send failure
	ReloadText = "An error occurred. Reloading the page in 5 seconds..."
	// ErrorTitle is the title used when no status line is available
	ErrorTitle = "ERROR"
)

// Reloader reinitializes the session
type Reloader interface {
	Reload()
}

// ReloadFunc adapts a function to the Reloader interface
type ReloadFunc func()

// Reload calls f()
func (f ReloadFunc) Reload() {
	f()
}

// Options configures an Escalator
type Options struct {
	// ReloadDelay defaults to DefaultReloadDelay
	ReloadDelay time.Duration
	Clock       clock.Clock
	Logger      zerolog.Logger
}

// Escalator observes fragment failures. It implements fragment.Observer.
type Escalator struct {
	presenter notify.Presenter
	reloader  Reloader
	clock     clock.Clock
	delay     time.Duration
	log       zerolog.Logger

	mu      sync.Mutex
	pending clock.Timer
}

var _ fragment.Observer = (*Escalator)(nil)

// New creates an Escalator showing notifications on p and reloading through r
func New(p notify.Presenter, r Reloader, opts Options) *Escalator {
	if opts.ReloadDelay == 0 {
		opts.ReloadDelay = DefaultReloadDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Escalator{
		presenter: p,
		reloader:  r,
		clock:     opts.Clock,
		delay:     opts.ReloadDelay,
		log:       opts.Logger.With().Str("component", "escalation").Logger(),
	}
}

// OnResponseError shows the failed response. It never reloads.
func (e *Escalator) OnResponseError(err *fragment.ResponseError) {
	text := err.Message()
	if text == "" {
		text = DefaultErrorText
	}
	title := ErrorTitle
	if err.Status > 0 {
		title = err.StatusLine()
	}

	e.log.Warn().Int("status", err.Status).Str("url", err.URL).Msg("request failed")
	e.presenter.Show(notify.Notification{
		Severity: notify.SeverityError,
		Title:    title,
		Text:     text,
		Details:  err.BodyText(),
	})
}

// OnSendError announces a reload and schedules it. While a reload is pending,
// further send errors are only logged.
func (e *Escalator) OnSendError(err *fragment.SendError) {
	e.mu.Lock()
	if e.pending != nil {
		e.mu.Unlock()
		e.log.Warn().Err(err).Msg("send failed while a reload is pending")
		return
	}
	e.pending = e.clock.AfterFunc(e.delay, e.reload)
	e.mu.Unlock()

	e.log.Error().Err(err).Dur("delay", e.delay).Msg("send failed, reloading")
	e.presenter.Show(notify.Notification{
		Severity: notify.SeverityError,
		Title:    ErrorTitle,
		Text:     ReloadText,
	})
}

func (e *Escalator) reload() {
	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()

	e.log.Info().Msg("reloading")
	e.reloader.Reload()
}

// ReloadPending reports whether a reload is scheduled
func (e *Escalator) ReloadPending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending != nil
}

// Stop cancels a pending reload
func (e *Escalator) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
}
