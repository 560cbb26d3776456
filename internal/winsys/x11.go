package winsys

import (
	"fmt"

	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/quicktab/quicktab/internal/logger"
	"github.com/shirou/gopsutil/process"
)

// X11 implements System against an X display using EWMH where the window
// manager supports it, with core-protocol fallbacks where it does not.
type X11 struct {
	xu               *xgbutil.XUtil
	root             xproto.Window
	compositeEnabled bool
}

// NewX11 connects to the X server named by DISPLAY.
func NewX11() (*X11, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	x := &X11{
		xu:   xu,
		root: xu.RootWin(),
	}

	// Composite-named pixmaps make obscured windows capturable. Optional.
	if err := composite.Init(xu.Conn()); err != nil {
		logger.WithComponent("x11").Warn().
			Err(err).
			Msg("Composite extension unavailable, captures of obscured windows may fail")
	} else {
		x.compositeEnabled = true
	}

	return x, nil
}

// XUtil exposes the shared connection for the input hook.
func (x *X11) XUtil() *xgbutil.XUtil {
	return x.xu
}

// Close releases the display connection.
func (x *X11) Close() error {
	x.xu.Conn().Close()
	return nil
}

// ListWindows returns all top-level windows via _NET_CLIENT_LIST, falling
// back to a QueryTree walk on window managers that do not publish it.
func (x *X11) ListWindows() ([]Window, error) {
	log := logger.WithComponent("x11")

	ids, err := ewmh.ClientListGet(x.xu)
	if err != nil || len(ids) == 0 {
		log.Debug().Err(err).Msg("_NET_CLIENT_LIST unavailable, falling back to QueryTree")
		tree, terr := xproto.QueryTree(x.xu.Conn(), x.root).Reply()
		if terr != nil {
			return nil, fmt.Errorf("failed to query window tree: %w", terr)
		}
		ids = tree.Children
	}

	windows := make([]Window, 0, len(ids))
	for _, id := range ids {
		win, err := x.windowInfo(id)
		if err != nil {
			log.Debug().Uint32("window_id", uint32(id)).Err(err).Msg("skipping unreadable window")
			continue
		}
		windows = append(windows, win)
	}
	return windows, nil
}

// ProcessWindows returns handles for every client-list window owned by pid.
func (x *X11) ProcessWindows(pid int) ([]Handle, error) {
	ids, err := ewmh.ClientListGet(x.xu)
	if err != nil {
		return nil, fmt.Errorf("failed to get client list: %w", err)
	}

	handles := make([]Handle, 0, 4)
	for _, id := range ids {
		winPid, err := ewmh.WmPidGet(x.xu, id)
		if err != nil || int(winPid) != pid {
			continue
		}
		bounds, err := x.rootBounds(id)
		if err != nil {
			continue
		}
		title, _ := x.windowTitle(id)
		handles = append(handles, Handle{
			ID:     uint32(id),
			Bounds: bounds,
			Title:  title,
		})
	}
	return handles, nil
}

// Raise restacks the window above its siblings.
func (x *X11) Raise(h Handle) error {
	return xproto.ConfigureWindowChecked(
		x.xu.Conn(),
		xproto.Window(h.ID),
		xproto.ConfigWindowStackMode,
		[]uint32{xproto.StackModeAbove},
	).Check()
}

// Front asks the window manager to make the window active.
func (x *X11) Front(h Handle) error {
	return ewmh.ActiveWindowReq(x.xu, xproto.Window(h.ID))
}

// Focus assigns keyboard input focus to the window.
func (x *X11) Focus(h Handle) error {
	return xproto.SetInputFocusChecked(
		x.xu.Conn(),
		xproto.InputFocusPointerRoot,
		xproto.Window(h.ID),
		xproto.TimeCurrentTime,
	).Check()
}

// CloseWindow asks the window manager to close the window, which lets the
// client run its usual save/confirm path.
func (x *X11) CloseWindow(h Handle) error {
	return ewmh.CloseWindow(x.xu, xproto.Window(h.ID))
}

// MinimizeWindow iconifies via WM_CHANGE_STATE, unmapping directly when the
// window manager ignores the client message.
func (x *X11) MinimizeWindow(h Handle) error {
	win := xproto.Window(h.ID)

	atom, err := xprop.Atm(x.xu, "WM_CHANGE_STATE")
	if err == nil {
		cm, cerr := xevent.NewClientMessage(32, win, atom, int(icccm.StateIconic))
		if cerr == nil {
			err = xproto.SendEventChecked(
				x.xu.Conn(),
				false,
				x.root,
				xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
				string(cm.Bytes()),
			).Check()
			if err == nil {
				return nil
			}
		} else {
			err = cerr
		}
	}

	logger.WithComponent("x11").Debug().
		Uint32("window_id", h.ID).
		Err(err).
		Msg("WM_CHANGE_STATE iconify failed, unmapping directly")
	return xproto.UnmapWindowChecked(x.xu.Conn(), win).Check()
}

// windowInfo assembles a Window from the X properties the switcher needs.
func (x *X11) windowInfo(id xproto.Window) (Window, error) {
	win := Window{ID: uint32(id)}

	bounds, err := x.rootBounds(id)
	if err != nil {
		return win, err
	}
	win.Bounds = bounds

	attrs, err := xproto.GetWindowAttributes(x.xu.Conn(), id).Reply()
	if err != nil {
		return win, fmt.Errorf("failed to get window attributes: %w", err)
	}
	win.OnScreen = attrs.MapState == xproto.MapStateViewable

	win.Title, _ = x.windowTitle(id)

	if pid, err := ewmh.WmPidGet(x.xu, id); err == nil {
		win.PID = int(pid)
	}

	win.App = x.appName(id, win.PID)
	win.Layer = x.windowLayer(id)
	return win, nil
}

// rootBounds returns the window's geometry translated to root coordinates.
func (x *X11) rootBounds(id xproto.Window) (Bounds, error) {
	geom, err := xproto.GetGeometry(x.xu.Conn(), xproto.Drawable(id)).Reply()
	if err != nil {
		return Bounds{}, fmt.Errorf("failed to get geometry: %w", err)
	}

	b := Bounds{
		X:      int(geom.X),
		Y:      int(geom.Y),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}

	// Reparenting window managers leave GetGeometry relative to the frame.
	if trans, err := xproto.TranslateCoordinates(x.xu.Conn(), id, x.root, 0, 0).Reply(); err == nil {
		b.X = int(trans.DstX)
		b.Y = int(trans.DstY)
	}
	return b, nil
}

func (x *X11) windowTitle(id xproto.Window) (string, error) {
	if title, err := ewmh.WmNameGet(x.xu, id); err == nil && title != "" {
		return title, nil
	}
	return icccm.WmNameGet(x.xu, id)
}

// appName resolves the owning application's name, preferring WM_CLASS and
// falling back to the process name when the property is missing.
func (x *X11) appName(id xproto.Window, pid int) string {
	if class, err := icccm.WmClassGet(x.xu, id); err == nil {
		if class.Class != "" {
			return class.Class
		}
		if class.Instance != "" {
			return class.Instance
		}
	}

	if pid > 0 {
		if proc, err := process.NewProcess(int32(pid)); err == nil {
			if name, err := proc.Name(); err == nil {
				return name
			}
		}
	}
	return ""
}

// windowLayer maps _NET_WM_WINDOW_TYPE and _NET_WM_STATE onto the stacking
// classification. Untyped windows count as normal, which is what most
// plain X clients are.
func (x *X11) windowLayer(id xproto.Window) Layer {
	if types, err := ewmh.WmWindowTypeGet(x.xu, id); err == nil {
		for _, t := range types {
			switch t {
			case "_NET_WM_WINDOW_TYPE_DESKTOP":
				return LayerDesktop
			case "_NET_WM_WINDOW_TYPE_DOCK":
				return LayerDock
			case "_NET_WM_WINDOW_TYPE_TOOLBAR",
				"_NET_WM_WINDOW_TYPE_MENU",
				"_NET_WM_WINDOW_TYPE_SPLASH",
				"_NET_WM_WINDOW_TYPE_NOTIFICATION",
				"_NET_WM_WINDOW_TYPE_TOOLTIP",
				"_NET_WM_WINDOW_TYPE_DROPDOWN_MENU",
				"_NET_WM_WINDOW_TYPE_POPUP_MENU":
				return LayerOverlay
			case "_NET_WM_WINDOW_TYPE_NORMAL",
				"_NET_WM_WINDOW_TYPE_DIALOG":
				return LayerNormal
			}
		}
	}

	if states, err := ewmh.WmStateGet(x.xu, id); err == nil {
		for _, s := range states {
			if s == "_NET_WM_STATE_ABOVE" {
				return LayerOverlay
			}
		}
	}
	return LayerNormal
}
