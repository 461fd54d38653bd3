package presenter

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/tasknotify-go/internal/clock"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/notify"
	"github.com/rs/zerolog"
)

// DefaultToastTimeout is how long a toast stays up before it dismisses itself
const DefaultToastTimeout = 5 * time.Second

// Toast is one rendered notification. It owns its auto-dismiss timer and removes
// itself from the region once its dismissal has finished.
type Toast struct {
	id      string
	n       notify.Notification
	toaster *Toaster

	mu         sync.Mutex
	timer      clock.Timer
	dismissing bool

	teardown sync.Once
	done     chan struct{}
}

// ID implements Element
func (t *Toast) ID() string {
	return t.id
}

// Notification returns the notification this toast shows
func (t *Toast) Notification() notify.Notification {
	return t.n
}

// Render implements Element
func (t *Toast) Render(width int, fading bool) string {
	return renderToast(width, t.n, fading)
}

// Close dismisses the toast now and cancels its timer
func (t *Toast) Close() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
	t.dismiss()
}

// Restart resets the auto-dismiss timer. It has no effect once dismissal started.
func (t *Toast) Restart() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dismissing || t.timer == nil {
		return
	}
	t.timer.Reset(t.toaster.timeout)
}

// Done is closed once the toast has been removed from the region
func (t *Toast) Done() <-chan struct{} {
	return t.done
}

// dismiss starts the hide transition once; teardown follows when it completes
func (t *Toast) dismiss() {
	t.mu.Lock()
	if t.dismissing {
		t.mu.Unlock()
		return
	}
	t.dismissing = true
	t.mu.Unlock()

	t.toaster.region.Dismiss(t, t.destroy)
}

// destroy releases the toast. It runs at most once.
func (t *Toast) destroy() {
	t.teardown.Do(func() {
		t.mu.Lock()
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		t.mu.Unlock()

		t.toaster.region.Unmount(t)
		t.toaster.active.Add(-1)
		t.toaster.removed.Add(1)
		close(t.done)
		t.toaster.log.Debug().Str("toast", t.id).Msg("toast removed")
	})
}

// ToasterOptions configures a Toaster
type ToasterOptions struct {
	// Timeout is the auto-dismiss delay (DefaultToastTimeout when zero)
	Timeout time.Duration
	Clock   clock.Clock
	Logger  zerolog.Logger
}

// Toaster shows notifications as toasts on a Region. It implements notify.Presenter.
type Toaster struct {
	region  Region
	clock   clock.Clock
	timeout time.Duration
	log     zerolog.Logger

	active  atomic.Int64
	removed atomic.Int64
}

// NewToaster creates a Toaster mounting toasts on region
func NewToaster(region Region, opts ToasterOptions) *Toaster {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultToastTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Toaster{
		region:  region,
		clock:   opts.Clock,
		timeout: opts.Timeout,
		log:     opts.Logger.With().Str("component", "toaster").Logger(),
	}
}

// Show implements notify.Presenter
func (t *Toaster) Show(n notify.Notification) {
	t.ShowToast(n)
}

// ShowToast mounts a new toast for n and starts its timer. Notifications with
// neither a title nor a text are skipped and nil is returned.
func (t *Toaster) ShowToast(n notify.Notification) *Toast {
	if n.IsEmpty() {
		t.log.Debug().Msg("skipping empty notification")
		return nil
	}

	toast := &Toast{
		id:      "toast-" + uuid.NewString(),
		n:       n.WithDefaults(),
		toaster: t,
		done:    make(chan struct{}),
	}

	t.active.Add(1)
	t.region.Mount(toast)

	// Mount may already have closed the toast through a region callback.
	toast.mu.Lock()
	if !toast.dismissing {
		toast.timer = t.clock.AfterFunc(t.timeout, toast.dismiss)
	}
	toast.mu.Unlock()

	t.log.Debug().
		Str("toast", toast.id).
		Str("severity", string(toast.n.Severity)).
		Str("title", toast.n.Title).
		Msg("toast shown")
	return toast
}

// Active returns the number of toasts not yet removed
func (t *Toaster) Active() int {
	return int(t.active.Load())
}

// Removed returns the number of toasts torn down so far
func (t *Toaster) Removed() int {
	return int(t.removed.Load())
}
