package registry

import (
	"encoding/json"
	"fmt"
	"image"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quicktab/quicktab/internal/logger"
	"github.com/quicktab/quicktab/internal/winsys"
)

// WindowRecord identifies one on-screen window. Records are rebuilt fresh
// on every enumeration; only Preview may be filled in afterwards. Identity
// is the ID alone, titles and bounds can be stale between refreshes.
type WindowRecord struct {
	ID       uint32        `json:"id"`
	PID      int           `json:"pid"`
	Title    string        `json:"title"`
	App      string        `json:"app"`
	Bounds   winsys.Bounds `json:"bounds"`
	Layer    winsys.Layer  `json:"-"`
	OnScreen bool          `json:"on_screen"`
	Preview  *image.RGBA   `json:"-"`
}

// MarshalJSON adds a has_preview flag so the presentation layer knows
// whether fetching the preview image is worthwhile.
func (r WindowRecord) MarshalJSON() ([]byte, error) {
	type alias WindowRecord
	return json.Marshal(struct {
		alias
		HasPreview bool `json:"has_preview"`
	}{alias(r), r.Preview != nil})
}

// Options tunes registry behavior. Zero values fall back to the documented
// defaults.
type Options struct {
	MinWidth        int
	MinHeight       int
	RefreshInterval time.Duration
	MatchTolerance  int
	PreferIcons     bool
	MaxWindows      int
}

func (o Options) withDefaults() Options {
	if o.MinWidth <= 0 {
		o.MinWidth = 100
	}
	if o.MinHeight <= 0 {
		o.MinHeight = 100
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 500 * time.Millisecond
	}
	if o.MatchTolerance <= 0 {
		o.MatchTolerance = 5
	}
	return o
}

// Registry enumerates switchable windows, keeps their previews fresh and
// executes activate/close/minimize against live window handles.
type Registry struct {
	sys     winsys.System
	history *History
	cache   *ThumbnailCache
	opts    Options

	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
}

// New creates a registry on top of the given display-server boundary.
func New(sys winsys.System, history *History, opts Options) *Registry {
	return &Registry{
		sys:     sys,
		history: history,
		cache:   NewThumbnailCache(),
		opts:    opts.withDefaults(),
	}
}

// History exposes the activation history for read access.
func (r *Registry) History() *History {
	return r.history
}

// Start launches the periodic preview refresh loop.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})
	go r.refreshLoop(r.stopChan)
}

// Stop halts the refresh loop. Safe to call repeatedly or when never
// started.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	close(r.stopChan)
	r.running = false
}

func (r *Registry) refreshLoop(stop chan struct{}) {
	ticker := time.NewTicker(r.opts.RefreshInterval)
	defer ticker.Stop()

	r.refreshPreviews()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.refreshPreviews()
		}
	}
}

// refreshPreviews re-enumerates switchable windows, captures each one and
// atomically replaces the thumbnail cache. Capture runs without any lock
// held; the swap at the end is the only cache mutation.
func (r *Registry) refreshPreviews() {
	log := logger.WithComponent("registry")

	windows, err := r.listSwitchable()
	if err != nil {
		log.Warn().Err(err).Msg("Preview refresh enumeration failed")
		return
	}

	images := make(map[uint32]*image.RGBA, len(windows))
	for _, win := range windows {
		if img := r.capturePreview(win.ID); img != nil {
			images[win.ID] = img
		}
	}
	r.cache.Replace(images)
	log.Debug().Int("count", len(images)).Msg("Preview cache refreshed")
}

// capturePreview grabs a live capture, or the application icon when the
// capture fails or icons are preferred. Returns nil when neither works.
func (r *Registry) capturePreview(id uint32) *image.RGBA {
	log := logger.WithComponent("registry")

	if !r.opts.PreferIcons {
		img, err := r.sys.CaptureWindow(id)
		if err == nil {
			return img
		}
		log.Debug().Uint32("window_id", id).Err(err).Msg("Window capture failed, trying icon")
	}

	icon, err := r.sys.AppIcon(id)
	if err != nil {
		log.Debug().Uint32("window_id", id).Err(err).Msg("Icon lookup failed")
		return nil
	}
	return icon
}

// listSwitchable returns the raw window list filtered to normal-layer,
// on-screen windows at or above the minimum size.
func (r *Registry) listSwitchable() ([]winsys.Window, error) {
	windows, err := r.sys.ListWindows()
	if err != nil {
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}

	kept := windows[:0]
	for _, win := range windows {
		if win.Layer != winsys.LayerNormal || !win.OnScreen {
			continue
		}
		if win.Bounds.Width < r.opts.MinWidth || win.Bounds.Height < r.opts.MinHeight {
			continue
		}
		kept = append(kept, win)
	}
	return kept, nil
}

// Enumerate returns the current switchable windows ordered by activation
// recency, then titled-before-untitled, then application name. Previews
// come from the cache only; Enumerate never waits on a capture.
func (r *Registry) Enumerate() ([]WindowRecord, error) {
	windows, err := r.listSwitchable()
	if err != nil {
		return nil, err
	}

	records := make([]WindowRecord, 0, len(windows))
	for _, win := range windows {
		rec := WindowRecord{
			ID:       win.ID,
			PID:      win.PID,
			Title:    win.Title,
			App:      win.App,
			Bounds:   win.Bounds,
			Layer:    win.Layer,
			OnScreen: win.OnScreen,
		}
		if img, ok := r.cache.Get(win.ID); ok {
			rec.Preview = img
		}
		records = append(records, rec)
	}

	rank := r.history.Rank()
	sort.SliceStable(records, func(i, j int) bool {
		ri, iOK := rank[records[i].ID]
		rj, jOK := rank[records[j].ID]
		if iOK != jOK {
			return iOK
		}
		if iOK && ri != rj {
			return ri < rj
		}
		iTitled := records[i].Title != ""
		jTitled := records[j].Title != ""
		if iTitled != jTitled {
			return iTitled
		}
		return strings.ToLower(records[i].App) < strings.ToLower(records[j].App)
	})

	if r.opts.MaxWindows > 0 && len(records) > r.opts.MaxWindows {
		records = records[:r.opts.MaxWindows]
	}
	return records, nil
}

// CaptureAsync captures a preview for rec on its own goroutine and hands
// the result to publish. publish receives the window id the capture was
// taken for; the caller decides whether the result is still wanted.
func (r *Registry) CaptureAsync(rec WindowRecord, publish func(id uint32, img *image.RGBA)) {
	go func() {
		img := r.capturePreview(rec.ID)
		if img == nil {
			return
		}
		publish(rec.ID, img)
	}()
}

// RecordActivation marks id as the most recently used window.
func (r *Registry) RecordActivation(id uint32) {
	r.history.Record(id)
}

// Activate records the activation and brings the matched live window to
// the front. Raise, front and focus are attempted independently: a partial
// activation is still better than none, so per-call failures are logged
// and not returned.
func (r *Registry) Activate(rec WindowRecord) {
	log := logger.WithComponent("registry")

	r.RecordActivation(rec.ID)

	handle, ok := r.matchHandle(rec)
	if !ok {
		log.Warn().
			Uint32("window_id", rec.ID).
			Int("pid", rec.PID).
			Str("title", rec.Title).
			Msg("No live window matched record, activation skipped")
		return
	}

	if err := r.sys.Raise(handle); err != nil {
		log.Warn().Uint32("window_id", handle.ID).Err(err).Msg("Raise failed")
	} else {
		log.Debug().Uint32("window_id", handle.ID).Msg("Raised window")
	}
	if err := r.sys.Front(handle); err != nil {
		log.Warn().Uint32("window_id", handle.ID).Err(err).Msg("Front request failed")
	} else {
		log.Debug().Uint32("window_id", handle.ID).Msg("Window made frontmost")
	}
	if err := r.sys.Focus(handle); err != nil {
		log.Warn().Uint32("window_id", handle.ID).Err(err).Msg("Focus failed")
	} else {
		log.Debug().Uint32("window_id", handle.ID).Msg("Window focused")
	}
}

// Close invokes the matched window's close affordance. The record stays in
// any in-memory list; dropping it is the session coordinator's job.
func (r *Registry) Close(rec WindowRecord) {
	log := logger.WithComponent("registry")

	handle, ok := r.matchHandle(rec)
	if !ok {
		log.Warn().Uint32("window_id", rec.ID).Msg("No live window matched record, close skipped")
		return
	}
	if err := r.sys.CloseWindow(handle); err != nil {
		log.Warn().Uint32("window_id", handle.ID).Err(err).Msg("Close failed")
	}
}

// Minimize iconifies the matched window.
func (r *Registry) Minimize(rec WindowRecord) {
	log := logger.WithComponent("registry")

	handle, ok := r.matchHandle(rec)
	if !ok {
		log.Warn().Uint32("window_id", rec.ID).Msg("No live window matched record, minimize skipped")
		return
	}
	if err := r.sys.MinimizeWindow(handle); err != nil {
		log.Warn().Uint32("window_id", handle.ID).Err(err).Msg("Minimize failed")
	}
}

// matchHandle resolves rec to a live handle among the owning process's
// windows. Pass one matches geometry within the tolerance; pass two, only
// when geometry found nothing and the record has a title, matches the
// title exactly.
func (r *Registry) matchHandle(rec WindowRecord) (winsys.Handle, bool) {
	handles, err := r.sys.ProcessWindows(rec.PID)
	if err != nil {
		logger.WithComponent("registry").Warn().
			Int("pid", rec.PID).
			Err(err).
			Msg("Failed to list process windows")
		return winsys.Handle{}, false
	}

	tol := r.opts.MatchTolerance
	for _, h := range handles {
		if within(h.Bounds.X, rec.Bounds.X, tol) &&
			within(h.Bounds.Y, rec.Bounds.Y, tol) &&
			within(h.Bounds.Width, rec.Bounds.Width, tol) &&
			within(h.Bounds.Height, rec.Bounds.Height, tol) {
			return h, true
		}
	}

	if rec.Title != "" {
		for _, h := range handles {
			if h.Title == rec.Title {
				return h, true
			}
		}
	}
	return winsys.Handle{}, false
}

func within(a, b, tol int) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}
