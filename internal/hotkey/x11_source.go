package hotkey

import (
	"fmt"
	"sync"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/quicktab/quicktab/internal/logger"
)

// modifier names accepted in config, with the keysyms each one shows up
// as in key events.
var modifierSyms = map[string][]string{
	"Mod1":    {"Alt_L", "Alt_R", "Meta_L", "Meta_R"},
	"Mod4":    {"Super_L", "Super_R"},
	"Control": {"Control_L", "Control_R"},
}

var modifierMasks = map[string]uint16{
	"Mod1":    xproto.ModMask1,
	"Mod4":    xproto.ModMask4,
	"Control": xproto.ModMaskControl,
}

// TriggerSyms returns the keysym names belonging to a trigger modifier.
func TriggerSyms(triggerMod string) ([]string, error) {
	syms, ok := modifierSyms[triggerMod]
	if !ok {
		return nil, fmt.Errorf("unsupported trigger modifier %q", triggerMod)
	}
	return syms, nil
}

type grabSpec struct {
	mods    uint16
	keycode xproto.Keycode
}

// X11Source installs the global key hook: it grabs the trigger chord on
// the root window and, while a session is active, the whole keyboard.
// Consumed events never reach other clients; events the interceptor does
// not recognize are replayed to their normal destination. Events are
// translated to KeyEvents and fed to the interceptor.
type X11Source struct {
	xu          *xgbutil.XUtil
	ic          *Interceptor
	triggerMod  string
	triggerMask uint16
	cycleKey    string

	mu       sync.Mutex
	running  bool
	grabbed  bool
	stopChan chan struct{}
	grabs    []grabSpec
}

// NewX11Source wires an interceptor to the display connection. triggerMod
// is the modifier name from config ("Mod1"), cycleKey the cycle keysym
// ("Tab").
func NewX11Source(xu *xgbutil.XUtil, ic *Interceptor, triggerMod, cycleKey string) *X11Source {
	return &X11Source{
		xu:          xu,
		ic:          ic,
		triggerMod:  triggerMod,
		triggerMask: modifierMasks[triggerMod],
		cycleKey:    cycleKey,
	}
}

// Start grabs the trigger chord and launches the event loop. A grab
// failure (another client owns the chord, or the server refuses) emits
// MonitoringFailed so the host can surface guidance. Idempotent; the lock
// is held across the grab phase so concurrent Starts cannot both grab.
func (s *X11Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if s.triggerMask == 0 {
		s.ic.NotifyMonitoringFailed()
		return fmt.Errorf("unsupported trigger modifier %q", s.triggerMod)
	}

	keybind.Initialize(s.xu)

	chords := []string{
		s.triggerMod + "-" + s.cycleKey,
		s.triggerMod + "-Shift-" + s.cycleKey,
	}
	var grabs []grabSpec
	for _, chord := range chords {
		mods, keycodes, err := keybind.ParseString(s.xu, chord)
		if err != nil {
			s.ic.NotifyMonitoringFailed()
			return fmt.Errorf("failed to parse chord %q: %w", chord, err)
		}
		for _, keycode := range keycodes {
			if err := keybind.GrabChecked(s.xu, s.xu.RootWin(), mods, keycode); err != nil {
				s.releaseGrabs(grabs)
				s.ic.NotifyMonitoringFailed()
				return fmt.Errorf("failed to grab %q: %w", chord, err)
			}
			grabs = append(grabs, grabSpec{mods: mods, keycode: keycode})
		}
	}

	s.running = true
	s.grabs = grabs
	s.stopChan = make(chan struct{})

	go s.eventLoop(s.stopChan)
	logger.WithComponent("hotkey").Info().
		Str("trigger", s.triggerMod).
		Str("cycle_key", s.cycleKey).
		Msg("Global key hook installed")
	return nil
}

// Stop releases all grabs and ends the event loop. Idempotent and safe
// when Start never ran or failed.
func (s *X11Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopChan)
	s.running = false
	s.releaseGrabs(s.grabs)
	s.grabs = nil
	if s.grabbed {
		xproto.UngrabKeyboard(s.xu.Conn(), xproto.TimeCurrentTime)
		s.grabbed = false
	}
}

func (s *X11Source) releaseGrabs(grabs []grabSpec) {
	for _, g := range grabs {
		keybind.Ungrab(s.xu, s.xu.RootWin(), g.mods, g.keycode)
	}
}

// eventLoop polls the connection, translates key events and keeps the
// keyboard grab in step with the interceptor state. Polling mirrors how
// the registry side watches the server; it also lets the loop observe
// stopChan without a blocking read.
func (s *X11Source) eventLoop(stop chan struct{}) {
	log := logger.WithComponent("hotkey")

	for {
		select {
		case <-stop:
			return
		default:
		}

		ev, err := s.xu.Conn().PollForEvent()
		if err != nil {
			log.Debug().Err(err).Msg("X event poll error")
			continue
		}
		if ev == nil {
			s.syncGrab()
			time.Sleep(5 * time.Millisecond)
			continue
		}

		switch e := ev.(type) {
		case xproto.KeyPressEvent:
			s.allowEvents(s.handleKey(e.Detail, e.State, true))
		case xproto.KeyReleaseEvent:
			s.allowEvents(s.handleKey(e.Detail, e.State, false))
		}
		s.syncGrab()
	}
}

// handleKey translates one raw key event and feeds the interceptor. The
// return reports whether the interceptor consumed the event.
func (s *X11Source) handleKey(keycode xproto.Keycode, state uint16, press bool) bool {
	name := keybind.LookupString(s.xu, state, keycode)
	if name == "" {
		return false
	}

	ev := KeyEvent{
		Key:          name,
		Press:        press,
		TriggerMod:   state&s.triggerMask != 0,
		SecondaryMod: state&xproto.ModMaskShift != 0,
	}

	// Shift+Tab arrives as its own keysym on most layouts.
	if name == "ISO_Left_Tab" {
		ev.Key = "Tab"
		ev.SecondaryMod = true
	}

	return s.ic.Handle(ev)
}

// allowEvents resumes the keyboard after a key event frozen by the
// synchronous session grab: consumed events are processed here and go no
// further, unconsumed ones are replayed so they reach the client that
// would have received them without the grab.
func (s *X11Source) allowEvents(consumed bool) {
	s.mu.Lock()
	grabbed := s.grabbed
	s.mu.Unlock()
	if !grabbed {
		return
	}

	mode := byte(xproto.AllowReplayKeyboard)
	if consumed {
		mode = xproto.AllowAsyncKeyboard
	}
	xproto.AllowEvents(s.xu.Conn(), mode, xproto.TimeCurrentTime)
}

// syncGrab acquires the full keyboard grab while a session is active and
// releases it when the interceptor is back to idle, including idle reached
// through a coordinator Reset the keyboard never saw. The keyboard side is
// grabbed synchronously: each event freezes input until allowEvents either
// swallows it or replays it to its normal destination.
func (s *X11Source) syncGrab() {
	active := s.ic.State() == Active

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || active == s.grabbed {
		return
	}

	log := logger.WithComponent("hotkey")
	if active {
		reply, err := xproto.GrabKeyboard(
			s.xu.Conn(),
			false,
			s.xu.RootWin(),
			xproto.TimeCurrentTime,
			xproto.GrabModeAsync,
			xproto.GrabModeSync,
		).Reply()
		if err != nil || reply.Status != xproto.GrabStatusSuccess {
			log.Warn().Err(err).Msg("Failed to grab keyboard for session")
			return
		}
		s.grabbed = true
		log.Debug().Msg("Keyboard grabbed")
	} else {
		xproto.UngrabKeyboard(s.xu.Conn(), xproto.TimeCurrentTime)
		s.grabbed = false
		log.Debug().Msg("Keyboard released")
	}
}
