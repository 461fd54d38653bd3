package presenter

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownDialog is returned when confirming a target that was never declared
	ErrUnknownDialog = errors.New("unknown dialog")
	// ErrEmptyTarget is returned for an empty dialog target
	ErrEmptyTarget = errors.New("dialog target cannot be empty")
)

// Backdrop controls how clicks outside a dialog are handled
type Backdrop string

const (
	// BackdropDismiss closes the dialog on an outside click
	BackdropDismiss Backdrop = "dismiss"
	// BackdropStatic ignores outside clicks
	BackdropStatic Backdrop = "static"
)

// DialogOptions configures how a modal can be dismissed
type DialogOptions struct {
	Backdrop Backdrop
	// Keyboard allows closing the dialog with the escape key
	Keyboard bool
}

// BlockingOptions forces the user to answer explicitly
func BlockingOptions() DialogOptions {
	return DialogOptions{Backdrop: BackdropStatic, Keyboard: false}
}

// DialogSpec is the content of a confirmation dialog
type DialogSpec struct {
	Title   string
	Body    string
	Confirm string
	Cancel  string
}

func (s DialogSpec) withDefaults() DialogSpec {
	if s.Title == "" {
		s.Title = "Confirm"
	}
	if s.Confirm == "" {
		s.Confirm = "Yes"
	}
	if s.Cancel == "" {
		s.Cancel = "No"
	}
	return s
}

// ConfirmResult is the answer signal raised for a dialog
type ConfirmResult struct {
	Answer bool
}

// Modal is the dialog instance of one target. It is reused across confirmations.
type Modal struct {
	target string
	spec   DialogSpec
	opts   DialogOptions

	mu         sync.Mutex
	visible    bool
	activation string
	listeners  []func(ConfirmResult)
}

// ID implements Element
func (m *Modal) ID() string {
	return "modal-" + m.target
}

// Target returns the target the modal was created for
func (m *Modal) Target() string {
	return m.target
}

// Spec returns the dialog content
func (m *Modal) Spec() DialogSpec {
	return m.spec
}

// Options returns the dismissal options
func (m *Modal) Options() DialogOptions {
	return m.opts
}

// Visible reports whether the modal is shown
func (m *Modal) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

// Activation identifies the current showing of the modal
func (m *Modal) Activation() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activation
}

// Render implements Element
func (m *Modal) Render(width int, _ bool) string {
	return renderConfirmModal(width, m.spec, true)
}

// once registers a listener that is removed before it first runs
func (m *Modal) once(f func(ConfirmResult)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, f)
}

// fire runs and removes every registered listener
func (m *Modal) fire(res ConfirmResult) int {
	m.mu.Lock()
	listeners := m.listeners
	m.listeners = nil
	m.mu.Unlock()

	for _, f := range listeners {
		f(res)
	}
	return len(listeners)
}

// Surface presents a shown modal to the user. Answer raises the result signal;
// it may be called from any goroutine.
type Surface interface {
	Present(m *Modal, answer func(ConfirmResult))
}

// SurfaceFunc adapts a function to the Surface interface
type SurfaceFunc func(m *Modal, answer func(ConfirmResult))

// Present calls f(m, answer)
func (f SurfaceFunc) Present(m *Modal, answer func(ConfirmResult)) {
	f(m, answer)
}

// DialogsOptions configures Dialogs
type DialogsOptions struct {
	// Region receives visible modals (optional)
	Region Region
	// Surface is asked to present every shown modal (optional)
	Surface Surface
	Logger  zerolog.Logger
}

// Dialogs owns the confirmation dialogs of a session
type Dialogs struct {
	region  Region
	surface Surface
	log     zerolog.Logger

	mu     sync.Mutex
	specs  map[string]DialogSpec
	modals map[string]*Modal
}

// NewDialogs creates an empty dialog registry
func NewDialogs(opts DialogsOptions) *Dialogs {
	return &Dialogs{
		region:  opts.Region,
		surface: opts.Surface,
		log:     opts.Logger.With().Str("component", "dialogs").Logger(),
		specs:   make(map[string]DialogSpec),
		modals:  make(map[string]*Modal),
	}
}

func normalizeTarget(target string) (string, error) {
	target = strings.TrimPrefix(strings.TrimSpace(target), "#")
	if target == "" {
		return "", ErrEmptyTarget
	}
	return target, nil
}

// Declare registers the content of a dialog. Redeclaring a target replaces its
// content for modals created afterwards.
func (d *Dialogs) Declare(target string, spec DialogSpec) error {
	target, err := normalizeTarget(target)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.specs[target] = spec.withDefaults()
	return nil
}

// Declared returns the declared targets
func (d *Dialogs) Declared() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	targets := make([]string, 0, len(d.specs))
	for t := range d.specs {
		targets = append(targets, t)
	}
	return targets
}

// Modal returns the modal instance of target, if one was created
func (d *Dialogs) Modal(target string) (*Modal, bool) {
	target, err := normalizeTarget(target)
	if err != nil {
		return nil, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.modals[target]
	return m, ok
}

func (d *Dialogs) getOrCreate(target string) (*Modal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if m, ok := d.modals[target]; ok {
		return m, nil
	}
	spec, ok := d.specs[target]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialog, target)
	}
	m := &Modal{target: target, spec: spec, opts: BlockingOptions()}
	d.modals[target] = m
	return m, nil
}

// Confirm shows the dialog of target and returns a future resolved by the first
// ConfirmResult signalled for it. Later signals are ignored.
func (d *Dialogs) Confirm(target string) (*Future[bool], error) {
	target, err := normalizeTarget(target)
	if err != nil {
		return nil, err
	}
	m, err := d.getOrCreate(target)
	if err != nil {
		return nil, err
	}

	fut := NewFuture[bool]()
	m.once(func(res ConfirmResult) {
		if fut.Resolve(res.Answer) {
			d.log.Debug().Str("target", target).Bool("answer", res.Answer).Msg("confirmation resolved")
		}
		d.hide(m)
	})
	d.show(m)
	return fut, nil
}

// Signal raises the result signal on target's modal. It returns the number of
// listeners that received it; a signal with no listener has no effect.
func (d *Dialogs) Signal(target string, res ConfirmResult) int {
	m, ok := d.Modal(target)
	if !ok {
		return 0
	}
	n := m.fire(res)
	if n == 0 {
		d.log.Debug().Str("target", m.target).Msg("ignored result signal without listener")
	}
	return n
}

// Reset hides every modal and forgets their pending listeners. Declared
// content is kept.
func (d *Dialogs) Reset() {
	d.mu.Lock()
	modals := make([]*Modal, 0, len(d.modals))
	for t, m := range d.modals {
		modals = append(modals, m)
		delete(d.modals, t)
	}
	d.mu.Unlock()

	for _, m := range modals {
		m.mu.Lock()
		m.listeners = nil
		m.mu.Unlock()
		d.hide(m)
	}
}

func (d *Dialogs) show(m *Modal) {
	m.mu.Lock()
	wasVisible := m.visible
	m.visible = true
	m.activation = uuid.NewString()
	m.mu.Unlock()

	if !wasVisible && d.region != nil {
		d.region.Mount(m)
	}
	d.log.Debug().Str("target", m.target).Msg("dialog shown")

	if d.surface != nil {
		go d.surface.Present(m, func(res ConfirmResult) {
			d.Signal(m.target, res)
		})
	}
}

func (d *Dialogs) hide(m *Modal) {
	m.mu.Lock()
	wasVisible := m.visible
	m.visible = false
	m.mu.Unlock()

	if wasVisible && d.region != nil {
		d.region.Unmount(m)
	}
}
