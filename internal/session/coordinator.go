package session

import (
	"image"
	"sync"

	"github.com/quicktab/quicktab/internal/hotkey"
	"github.com/quicktab/quicktab/internal/logger"
	"github.com/quicktab/quicktab/internal/registry"
)

// EventKind classifies coordinator events sent to observers.
type EventKind string

const (
	EventSessionUpdated   EventKind = "session_updated"
	EventSessionClosed    EventKind = "session_closed"
	EventMonitoringFailed EventKind = "monitoring_failed"
)

// Event is one observable state change, carrying the session snapshot at
// the time it fired.
type Event struct {
	Kind    EventKind `json:"kind"`
	Session Snapshot  `json:"session"`
}

// Coordinator owns the SwitchSession and is its only writer. Interceptor
// signals and presentation-layer actions are serialized onto one goroutine;
// everything else sees the session through snapshots.
type Coordinator struct {
	reg *registry.Registry
	ic  *hotkey.Interceptor

	sess SwitchSession
	gen  uint64 // bumped on every open/close, stamps async capture results

	actions chan func()
	done    chan struct{}
	once    sync.Once

	lmu       sync.Mutex
	listeners []chan Event

	smu sync.RWMutex // guards the published snapshot
	cur Snapshot
}

// NewCoordinator wires the registry and interceptor together.
func NewCoordinator(reg *registry.Registry, ic *hotkey.Interceptor) *Coordinator {
	return &Coordinator{
		reg:     reg,
		ic:      ic,
		actions: make(chan func(), 64),
		done:    make(chan struct{}),
	}
}

// Start launches the coordinator goroutine.
func (c *Coordinator) Start() {
	go c.run()
}

// Stop ends the coordinator goroutine. Idempotent.
func (c *Coordinator) Stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *Coordinator) run() {
	for {
		select {
		case <-c.done:
			return
		case sig := <-c.ic.Signals():
			c.handleSignal(sig)
		case fn := <-c.actions:
			fn()
		}
	}
}

// post runs fn on the coordinator goroutine. Used by API handlers and
// async capture publishes; callers must not touch session state directly.
func (c *Coordinator) post(fn func()) {
	select {
	case c.actions <- fn:
	case <-c.done:
	}
}

func (c *Coordinator) handleSignal(sig hotkey.Signal) {
	log := logger.WithComponent("session")
	log.Debug().Str("signal", sig.Kind.String()).Msg("Handling signal")

	switch sig.Kind {
	case hotkey.SignalOpen:
		c.handleOpen()
	case hotkey.SignalSelectNext:
		c.moveSelection(1)
	case hotkey.SignalSelectPrev:
		c.moveSelection(-1)
	case hotkey.SignalSearchAppend:
		c.editQuery(c.sess.Query + string(sig.Char))
	case hotkey.SignalSearchBackspace:
		if c.sess.Query != "" {
			q := []rune(c.sess.Query)
			c.editQuery(string(q[:len(q)-1]))
		}
	case hotkey.SignalJump:
		c.handleJump(sig.Index)
	case hotkey.SignalActivate:
		c.handleActivate()
	case hotkey.SignalCancel:
		c.closeSession()
	case hotkey.SignalMonitoringFailed:
		log.Warn().Msg("Input hook could not be installed, switching disabled until retried")
		c.notify(EventMonitoringFailed)
	}
}

// handleOpen starts a session from a fresh enumeration. An empty
// enumeration ignores the signal: there is nothing to switch to, so the
// interceptor is reset and no session opens.
func (c *Coordinator) handleOpen() {
	windows, err := c.reg.Enumerate()
	if err != nil {
		logger.WithComponent("session").Warn().Err(err).Msg("Enumeration failed, not opening session")
		c.ic.Reset()
		return
	}
	if len(windows) == 0 {
		logger.WithComponent("session").Debug().Msg("No switchable windows, ignoring open")
		c.ic.Reset()
		return
	}

	c.gen++
	c.sess = SwitchSession{
		Windows:  windows,
		Query:    "",
		Selected: 0,
		Open:     true,
	}
	c.publish(EventSessionUpdated)
	c.requestPreviews()
}

// requestPreviews kicks off async captures for records that opened without
// a cached preview. Results are stamped with the session generation and
// target identity; anything stale by apply time is dropped.
func (c *Coordinator) requestPreviews() {
	gen := c.gen
	for i, rec := range c.sess.Windows {
		if rec.Preview != nil {
			continue
		}
		idx := i
		c.reg.CaptureAsync(rec, func(id uint32, img *image.RGBA) {
			c.post(func() {
				c.applyPreview(gen, idx, id, img)
			})
		})
	}
}

// applyPreview publishes an async capture into the live session only when
// the session is the same one that requested it and the window still sits
// at the same index with the same identifier.
func (c *Coordinator) applyPreview(gen uint64, idx int, id uint32, img *image.RGBA) {
	if !c.sess.Open || c.gen != gen {
		return
	}
	if idx >= len(c.sess.Windows) || c.sess.Windows[idx].ID != id {
		return
	}
	c.sess.Windows[idx].Preview = img
	c.publish(EventSessionUpdated)
}

func (c *Coordinator) moveSelection(delta int) {
	if !c.sess.Open {
		return
	}
	filtered := c.sess.filtered()
	if len(filtered) == 0 {
		return
	}
	c.sess.Selected = ((c.sess.Selected+delta)%len(filtered) + len(filtered)) % len(filtered)
	c.publish(EventSessionUpdated)
}

func (c *Coordinator) editQuery(query string) {
	if !c.sess.Open {
		return
	}
	c.sess.Query = query
	c.sess.Selected = 0
	if len(c.sess.filtered()) == 0 {
		// A session with nothing selectable must not stay open.
		c.ic.Reset()
		c.closeSession()
		return
	}
	c.publish(EventSessionUpdated)
}

// handleJump activates the nth filtered window directly. Out-of-bounds
// digits leave the session untouched.
func (c *Coordinator) handleJump(n int) {
	if !c.sess.Open {
		return
	}
	filtered := c.sess.filtered()
	if n < 0 || n >= len(filtered) {
		return
	}
	rec := c.sess.Windows[filtered[n]]
	c.reg.Activate(rec)
	c.ic.Reset()
	c.closeSession()
}

// handleActivate commits the current selection. With nothing selectable
// the session just closes.
func (c *Coordinator) handleActivate() {
	if !c.sess.Open {
		return
	}
	filtered := c.sess.filtered()
	if len(filtered) > 0 && c.sess.Selected < len(filtered) {
		c.reg.Activate(c.sess.Windows[filtered[c.sess.Selected]])
	}
	c.closeSession()
}

func (c *Coordinator) closeSession() {
	if !c.sess.Open {
		return
	}
	c.gen++
	c.sess = SwitchSession{}
	c.publish(EventSessionClosed)
}

// CloseWindow is the presentation layer's close action for the window with
// the given id. During a session the record is removed from the session
// list and the selection clamped; when no filtered match remains, the
// session closes.
func (c *Coordinator) CloseWindow(id uint32) {
	c.post(func() { c.windowAction(id, c.reg.Close) })
}

// MinimizeWindow is the presentation layer's minimize action.
func (c *Coordinator) MinimizeWindow(id uint32) {
	c.post(func() { c.windowAction(id, c.reg.Minimize) })
}

func (c *Coordinator) windowAction(id uint32, op func(registry.WindowRecord)) {
	if !c.sess.Open {
		// No session: act on the current enumeration and leave it there.
		windows, err := c.reg.Enumerate()
		if err != nil {
			logger.WithComponent("session").Warn().Err(err).Msg("Enumeration failed for window action")
			return
		}
		for _, rec := range windows {
			if rec.ID == id {
				op(rec)
				return
			}
		}
		logger.WithComponent("session").Warn().Uint32("window_id", id).Msg("Window action target not found")
		return
	}

	for i, rec := range c.sess.Windows {
		if rec.ID != id {
			continue
		}
		op(rec)
		c.sess.Windows = append(c.sess.Windows[:i], c.sess.Windows[i+1:]...)
		n := len(c.sess.filtered())
		if n == 0 {
			c.ic.Reset()
			c.closeSession()
			return
		}
		if c.sess.Selected >= n {
			c.sess.Selected = n - 1
		}
		c.publish(EventSessionUpdated)
		return
	}
	logger.WithComponent("session").Warn().Uint32("window_id", id).Msg("Window action target not in session")
}

// Snapshot returns the last published session state.
func (c *Coordinator) Snapshot() Snapshot {
	c.smu.RLock()
	defer c.smu.RUnlock()
	return c.cur
}

// Subscribe registers an observer channel for coordinator events.
func (c *Coordinator) Subscribe() chan Event {
	ch := make(chan Event, 16)
	c.lmu.Lock()
	c.listeners = append(c.listeners, ch)
	c.lmu.Unlock()
	return ch
}

// Unsubscribe removes and closes an observer channel.
func (c *Coordinator) Unsubscribe(ch chan Event) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	for i, listener := range c.listeners {
		if listener == ch {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// publish refreshes the readable snapshot and notifies observers.
func (c *Coordinator) publish(kind EventKind) {
	snap := c.sess.snapshot()
	c.smu.Lock()
	c.cur = snap
	c.smu.Unlock()
	c.notifySnapshot(kind, snap)
}

func (c *Coordinator) notify(kind EventKind) {
	c.notifySnapshot(kind, c.Snapshot())
}

func (c *Coordinator) notifySnapshot(kind EventKind, snap Snapshot) {
	ev := Event{Kind: kind, Session: snap}
	c.lmu.Lock()
	defer c.lmu.Unlock()
	for _, listener := range c.listeners {
		select {
		case listener <- ev:
		default:
			// Slow observer, skip rather than stall the coordinator.
		}
	}
}
