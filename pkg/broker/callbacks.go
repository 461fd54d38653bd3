package broker

import "sync"

// callbacks runs user handlers in order on a goroutine of their own, so a handler
// may block or call Close without stalling the connection supervisor.
type callbacks struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}
}

func newCallbacks() *callbacks {
	return &callbacks{notify: make(chan struct{}, 1)}
}

func (cb *callbacks) push(f func()) {
	cb.mu.Lock()
	cb.queue = append(cb.queue, f)
	cb.mu.Unlock()

	select {
	case cb.notify <- struct{}{}:
	default:
	}
}

// run drains the queue until stop is closed and nothing is left
func (cb *callbacks) run(stop <-chan struct{}) {
	for {
		cb.mu.Lock()
		if len(cb.queue) > 0 {
			f := cb.queue[0]
			cb.queue[0] = nil
			cb.queue = cb.queue[1:]
			cb.mu.Unlock()
			f()
			continue
		}
		cb.mu.Unlock()

		select {
		case <-cb.notify:
		case <-stop:
			cb.mu.Lock()
			empty := len(cb.queue) == 0
			cb.mu.Unlock()
			if empty {
				return
			}
		}
	}
}
