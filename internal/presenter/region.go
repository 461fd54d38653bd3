package presenter

import (
	"strings"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/tasknotify-go/internal/clock"
)

// DefaultFadeDuration is how long a dismissed element stays visible while fading out
const DefaultFadeDuration = 150 * time.Millisecond

// Element is a visual element mounted on a Region
type Element interface {
	ID() string
	Render(width int, fading bool) string
}

// Region is the on-screen area notifications are stacked in
type Region interface {
	// Mount appends el to the region
	Mount(el Element)
	// Dismiss starts the hide transition of el and calls done once it has finished
	Dismiss(el Element, done func())
	// Unmount removes el immediately
	Unmount(el Element)
}

type stackItem struct {
	el     Element
	fading bool
}

// StackRegion is a Region that keeps its elements in mount order.
// It is safe for concurrent use.
type StackRegion struct {
	clock clock.Clock
	fade  time.Duration

	mu       sync.Mutex
	items    []*stackItem
	onChange func()
}

// StackOptions configures a StackRegion
type StackOptions struct {
	Clock        clock.Clock
	FadeDuration time.Duration
}

// NewStackRegion creates an empty stacking region
func NewStackRegion(opts StackOptions) *StackRegion {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.FadeDuration == 0 {
		opts.FadeDuration = DefaultFadeDuration
	}
	return &StackRegion{clock: opts.Clock, fade: opts.FadeDuration}
}

// OnChange registers f to be called after every mutation of the region
func (r *StackRegion) OnChange(f func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = f
}

func (r *StackRegion) changed() {
	r.mu.Lock()
	f := r.onChange
	r.mu.Unlock()
	if f != nil {
		f()
	}
}

// Mount implements Region
func (r *StackRegion) Mount(el Element) {
	r.mu.Lock()
	r.items = append(r.items, &stackItem{el: el})
	r.mu.Unlock()
	r.changed()
}

// Dismiss implements Region. Elements that are not mounted complete immediately.
func (r *StackRegion) Dismiss(el Element, done func()) {
	r.mu.Lock()
	item := r.find(el)
	if item != nil {
		item.fading = true
	}
	r.mu.Unlock()

	if item == nil {
		done()
		return
	}
	r.changed()
	r.clock.AfterFunc(r.fade, done)
}

// Unmount implements Region
func (r *StackRegion) Unmount(el Element) {
	r.mu.Lock()
	removed := false
	for i, item := range r.items {
		if item.el == el {
			r.items = append(r.items[:i], r.items[i+1:]...)
			removed = true
			break
		}
	}
	r.mu.Unlock()

	if removed {
		r.changed()
	}
}

func (r *StackRegion) find(el Element) *stackItem {
	for _, item := range r.items {
		if item.el == el {
			return item
		}
	}
	return nil
}

// Elements returns the mounted elements, oldest first
func (r *StackRegion) Elements() []Element {
	r.mu.Lock()
	defer r.mu.Unlock()

	els := make([]Element, 0, len(r.items))
	for _, item := range r.items {
		els = append(els, item.el)
	}
	return els
}

// Len returns the number of mounted elements
func (r *StackRegion) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// View renders every element stacked vertically
func (r *StackRegion) View(width int) string {
	r.mu.Lock()
	items := make([]stackItem, len(r.items))
	for i, item := range r.items {
		items[i] = *item
	}
	r.mu.Unlock()

	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, item.el.Render(width, item.fading))
	}
	return strings.Join(parts, "\n")
}
