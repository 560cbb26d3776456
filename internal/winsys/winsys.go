package winsys

import "image"

// Layer classifies a window's stacking role as reported by the window
// manager. Only LayerNormal windows participate in switching.
type Layer int

const (
	LayerNormal Layer = iota
	LayerDesktop
	LayerDock
	LayerOverlay
)

func (l Layer) String() string {
	switch l {
	case LayerNormal:
		return "normal"
	case LayerDesktop:
		return "desktop"
	case LayerDock:
		return "dock"
	case LayerOverlay:
		return "overlay"
	}
	return "unknown"
}

// Bounds is a window rectangle in root-window coordinates.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Window describes one top-level window as reported by the display server.
type Window struct {
	ID       uint32
	PID      int
	Title    string
	App      string
	Bounds   Bounds
	Layer    Layer
	OnScreen bool
}

// Handle is a live window reference usable for automation calls. It carries
// the geometry and title observed at resolution time so callers can match
// it against a stale Window.
type Handle struct {
	ID     uint32
	Bounds Bounds
	Title  string
}

// System is the display-server boundary consumed by the registry. All
// methods are best effort: a non-nil error means the call did not take
// effect, never that the process should stop.
type System interface {
	// ListWindows returns all top-level windows currently known to the
	// window manager, unfiltered.
	ListWindows() ([]Window, error)

	// ProcessWindows returns handles for every window owned by pid.
	ProcessWindows(pid int) ([]Handle, error)

	// Raise restacks the window above its siblings.
	Raise(h Handle) error

	// Front asks the window manager to make the window the active window.
	Front(h Handle) error

	// Focus assigns keyboard input focus to the window.
	Focus(h Handle) error

	// CloseWindow invokes the window's close affordance via the window
	// manager.
	CloseWindow(h Handle) error

	// MinimizeWindow iconifies the window.
	MinimizeWindow(h Handle) error

	// CaptureWindow grabs the current contents of the window.
	CaptureWindow(id uint32) (*image.RGBA, error)

	// AppIcon returns the window's application icon, scaled for preview
	// use. Used as the capture fallback.
	AppIcon(id uint32) (*image.RGBA, error)

	// Close releases the display-server connection.
	Close() error
}
