package hotkey

import (
	"sync"

	"github.com/quicktab/quicktab/internal/logger"
)

// SignalKind enumerates the events the interceptor emits toward the
// session coordinator.
type SignalKind int

const (
	SignalOpen SignalKind = iota
	SignalSelectNext
	SignalSelectPrev
	SignalActivate
	SignalCancel
	SignalSearchAppend
	SignalSearchBackspace
	SignalJump
	SignalMonitoringFailed
)

func (k SignalKind) String() string {
	switch k {
	case SignalOpen:
		return "open"
	case SignalSelectNext:
		return "select-next"
	case SignalSelectPrev:
		return "select-previous"
	case SignalActivate:
		return "activate"
	case SignalCancel:
		return "cancel"
	case SignalSearchAppend:
		return "search-append"
	case SignalSearchBackspace:
		return "search-backspace"
	case SignalJump:
		return "jump-to-index"
	case SignalMonitoringFailed:
		return "monitoring-failed"
	}
	return "unknown"
}

// Signal is one event from the interceptor. Char is set for
// SignalSearchAppend, Index for SignalJump.
type Signal struct {
	Kind  SignalKind
	Char  rune
	Index int
}

// KeyEvent is a display-server key event reduced to what the state machine
// needs. Key is the X keysym name ("Tab", "Escape", "BackSpace", "a",
// "space", "Alt_L", ...).
type KeyEvent struct {
	Key          string
	Press        bool
	TriggerMod   bool // trigger modifier held at event time
	SecondaryMod bool // shift held at event time
}

// State is the interceptor's current mode.
type State int

const (
	// Idle means no switching session is in progress; only the trigger
	// chord is interesting.
	Idle State = iota
	// Active means a session is open and the full keyboard belongs to the
	// switcher.
	Active
)

// Interceptor is the global-input state machine. Handle is called from the
// hook's event context and must stay cheap: it mutates a few flags under a
// lock and dispatches a signal, nothing else. Enumeration, matching and
// I/O all happen on the coordinator side of the channel.
type Interceptor struct {
	mu          sync.Mutex
	state       State
	modDown     bool
	cycledSince bool // cycle key pressed since the session opened

	cycleKey    string
	triggerSyms map[string]bool

	signals chan Signal
}

// NewInterceptor builds an interceptor for the given cycle key and the
// keysyms of the trigger modifier (for Mod1 that is Alt_L/Alt_R).
func NewInterceptor(cycleKey string, triggerSyms []string) *Interceptor {
	syms := make(map[string]bool, len(triggerSyms))
	for _, s := range triggerSyms {
		syms[s] = true
	}
	return &Interceptor{
		cycleKey:    cycleKey,
		triggerSyms: syms,
		signals:     make(chan Signal, 64),
	}
}

// Signals is the channel the coordinator consumes.
func (ic *Interceptor) Signals() <-chan Signal {
	return ic.signals
}

// State returns the current mode.
func (ic *Interceptor) State() State {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.state
}

// NotifyMonitoringFailed reports that the hook could not be installed, so
// the host can surface permission guidance instead of silently doing
// nothing.
func (ic *Interceptor) NotifyMonitoringFailed() {
	ic.emit(Signal{Kind: SignalMonitoringFailed})
}

// Reset forces the state machine back to Idle, used when the coordinator
// closes a session for a reason the keyboard never saw (window list
// exhausted, programmatic close).
func (ic *Interceptor) Reset() {
	ic.mu.Lock()
	ic.state = Idle
	ic.cycledSince = false
	ic.mu.Unlock()
}

// Handle feeds one key event through the state machine. It returns true
// when the event was consumed and must not reach its normal destination.
func (ic *Interceptor) Handle(ev KeyEvent) bool {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	if ic.triggerSyms[ev.Key] {
		ic.modDown = ev.Press
	}

	switch ic.state {
	case Idle:
		return ic.handleIdle(ev)
	case Active:
		return ic.handleActive(ev)
	}
	return false
}

func (ic *Interceptor) handleIdle(ev KeyEvent) bool {
	if ev.Press && ev.Key == ic.cycleKey && (ev.TriggerMod || ic.modDown) {
		ic.state = Active
		ic.cycledSince = true
		ic.emit(Signal{Kind: SignalOpen})
		return true
	}
	return false
}

func (ic *Interceptor) handleActive(ev KeyEvent) bool {
	// Trigger modifier released: commit the selection.
	if !ev.Press && ic.triggerSyms[ev.Key] {
		if !ic.cycledSince {
			return false
		}
		ic.state = Idle
		ic.cycledSince = false
		ic.emit(Signal{Kind: SignalActivate})
		return true
	}

	if !ev.Press {
		return false
	}

	switch {
	case ev.Key == ic.cycleKey:
		ic.cycledSince = true
		if ev.SecondaryMod {
			ic.emit(Signal{Kind: SignalSelectPrev})
		} else {
			ic.emit(Signal{Kind: SignalSelectNext})
		}
		return true

	case ev.Key == "Escape":
		ic.state = Idle
		ic.cycledSince = false
		ic.emit(Signal{Kind: SignalCancel})
		return true

	case (ev.TriggerMod || ic.modDown) && isDigitKey(ev.Key) && ev.Key != "0":
		// Whether the digit lands in bounds is the coordinator's call; a
		// successful jump comes back as a Reset.
		ic.emit(Signal{Kind: SignalJump, Index: int(ev.Key[0]-'0') - 1})
		return true

	case !ev.TriggerMod && !ic.modDown && ev.Key == "BackSpace":
		ic.emit(Signal{Kind: SignalSearchBackspace})
		return true

	case !ev.TriggerMod && !ic.modDown:
		if ch, ok := searchRune(ev.Key); ok {
			ic.emit(Signal{Kind: SignalSearchAppend, Char: ch})
			return true
		}
	}
	return false
}

// emit dispatches without blocking; the hook context may never stall. A
// full channel means the coordinator is badly behind, so drops are logged
// rather than queued.
func (ic *Interceptor) emit(sig Signal) {
	select {
	case ic.signals <- sig:
	default:
		logger.WithComponent("hotkey").Warn().
			Str("signal", sig.Kind.String()).
			Msg("Signal channel full, dropping signal")
	}
}

func isDigitKey(key string) bool {
	return len(key) == 1 && key[0] >= '0' && key[0] <= '9'
}

// searchRune maps a keysym name to a search character: single printable
// letters and digits plus the space keysym.
func searchRune(key string) (rune, bool) {
	if key == "space" {
		return ' ', true
	}
	if len(key) != 1 {
		return 0, false
	}
	c := rune(key[0])
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
		return c, true
	}
	return 0, false
}
