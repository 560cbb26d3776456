package registry

import (
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/quicktab/quicktab/internal/winsys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSystem is an in-memory winsys.System for engine tests.
type fakeSystem struct {
	mu      sync.Mutex
	windows []winsys.Window
	handles map[int][]winsys.Handle

	captureErr bool
	iconErr    bool

	raised    []uint32
	fronted   []uint32
	focused   []uint32
	closed    []uint32
	minimized []uint32
}

func (f *fakeSystem) ListWindows() ([]winsys.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]winsys.Window, len(f.windows))
	copy(out, f.windows)
	return out, nil
}

func (f *fakeSystem) ProcessWindows(pid int) ([]winsys.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[pid], nil
}

func (f *fakeSystem) Raise(h winsys.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raised = append(f.raised, h.ID)
	return nil
}

func (f *fakeSystem) Front(h winsys.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fronted = append(f.fronted, h.ID)
	return nil
}

func (f *fakeSystem) Focus(h winsys.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focused = append(f.focused, h.ID)
	return nil
}

func (f *fakeSystem) CloseWindow(h winsys.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, h.ID)
	return nil
}

func (f *fakeSystem) MinimizeWindow(h winsys.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minimized = append(f.minimized, h.ID)
	return nil
}

func (f *fakeSystem) CaptureWindow(id uint32) (*image.RGBA, error) {
	if f.captureErr {
		return nil, fmt.Errorf("capture denied")
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (f *fakeSystem) AppIcon(id uint32) (*image.RGBA, error) {
	if f.iconErr {
		return nil, fmt.Errorf("no icon")
	}
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

func (f *fakeSystem) Close() error { return nil }

func normalWindow(id uint32, pid int, title, app string, b winsys.Bounds) winsys.Window {
	return winsys.Window{
		ID:       id,
		PID:      pid,
		Title:    title,
		App:      app,
		Bounds:   b,
		Layer:    winsys.LayerNormal,
		OnScreen: true,
	}
}

func bounds(x, y, w, h int) winsys.Bounds {
	return winsys.Bounds{X: x, Y: y, Width: w, Height: h}
}

func TestEnumerateFilters(t *testing.T) {
	sys := &fakeSystem{windows: []winsys.Window{
		normalWindow(1, 100, "Editor", "Code", bounds(0, 0, 800, 600)),
		// Too small in one dimension each.
		normalWindow(2, 100, "Tiny", "Code", bounds(0, 0, 99, 600)),
		normalWindow(3, 100, "Short", "Code", bounds(0, 0, 800, 99)),
		// Wrong layer.
		{ID: 4, PID: 1, Title: "Panel", App: "shell", Bounds: bounds(0, 0, 1920, 300), Layer: winsys.LayerDock, OnScreen: true},
		{ID: 5, PID: 1, Title: "Desktop", App: "shell", Bounds: bounds(0, 0, 1920, 1080), Layer: winsys.LayerDesktop, OnScreen: true},
		// Not mapped.
		{ID: 6, PID: 100, Title: "Hidden", App: "Code", Bounds: bounds(0, 0, 800, 600), Layer: winsys.LayerNormal, OnScreen: false},
		// Exactly at the threshold stays in.
		normalWindow(7, 100, "Edge", "Code", bounds(0, 0, 100, 100)),
	}}
	reg := New(sys, NewHistory(10, nil), Options{})

	records, err := reg.Enumerate()
	require.NoError(t, err)

	ids := make([]uint32, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	assert.ElementsMatch(t, []uint32{1, 7}, ids)
}

func TestEnumerateSortOrder(t *testing.T) {
	sys := &fakeSystem{windows: []winsys.Window{
		normalWindow(40, 4, "Browser", "Firefox", bounds(0, 0, 800, 600)),
		normalWindow(30, 3, "", "Alpha", bounds(0, 0, 800, 600)),
		normalWindow(10, 1, "Editor", "code", bounds(0, 0, 800, 600)),
		normalWindow(20, 2, "Mail", "Thunderbird", bounds(0, 0, 800, 600)),
		normalWindow(50, 5, "", "zsh", bounds(0, 0, 800, 600)),
	}}
	history := NewHistory(10, nil)
	history.Record(30)
	history.Record(20) // 20 is now most recent, then 30

	reg := New(sys, history, Options{})
	records, err := reg.Enumerate()
	require.NoError(t, err)

	got := make([]uint32, len(records))
	for i, rec := range records {
		got[i] = rec.ID
	}
	// Recency first (20, 30), then titled windows by app name (code,
	// Firefox), then untitled (zsh).
	assert.Equal(t, []uint32{20, 30, 10, 40, 50}, got)
}

func TestEnumerateMaxWindows(t *testing.T) {
	sys := &fakeSystem{}
	for i := uint32(1); i <= 10; i++ {
		sys.windows = append(sys.windows, normalWindow(i, int(i), "w", "app", bounds(0, 0, 400, 400)))
	}
	reg := New(sys, NewHistory(10, nil), Options{MaxWindows: 4})

	records, err := reg.Enumerate()
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestEnumerateAttachesCachedPreviews(t *testing.T) {
	sys := &fakeSystem{windows: []winsys.Window{
		normalWindow(1, 1, "A", "a", bounds(0, 0, 400, 400)),
		normalWindow(2, 2, "B", "b", bounds(0, 0, 400, 400)),
	}}
	reg := New(sys, NewHistory(10, nil), Options{})

	reg.refreshPreviews()
	records, err := reg.Enumerate()
	require.NoError(t, err)
	for _, rec := range records {
		assert.NotNil(t, rec.Preview, "window %d should carry a cached preview", rec.ID)
	}
}

func TestRefreshReplacesCacheWholesale(t *testing.T) {
	sys := &fakeSystem{windows: []winsys.Window{
		normalWindow(1, 1, "A", "a", bounds(0, 0, 400, 400)),
	}}
	reg := New(sys, NewHistory(10, nil), Options{})
	reg.refreshPreviews()
	require.Equal(t, 1, reg.cache.Len())

	// The window goes away; the next cycle must drop its entry.
	sys.mu.Lock()
	sys.windows = []winsys.Window{normalWindow(2, 2, "B", "b", bounds(0, 0, 400, 400))}
	sys.mu.Unlock()
	reg.refreshPreviews()

	assert.Equal(t, 1, reg.cache.Len())
	_, ok := reg.cache.Get(1)
	assert.False(t, ok)
	_, ok = reg.cache.Get(2)
	assert.True(t, ok)
}

func TestCapturePreviewIconFallback(t *testing.T) {
	sys := &fakeSystem{captureErr: true}
	reg := New(sys, NewHistory(10, nil), Options{})

	img := reg.capturePreview(1)
	require.NotNil(t, img)
	assert.Equal(t, 2, img.Bounds().Dx(), "fallback should be the icon image")
}

func TestCapturePreviewPrefersIcons(t *testing.T) {
	sys := &fakeSystem{}
	reg := New(sys, NewHistory(10, nil), Options{PreferIcons: true})

	img := reg.capturePreview(1)
	require.NotNil(t, img)
	assert.Equal(t, 2, img.Bounds().Dx())
}

func TestCapturePreviewNilWhenNothingWorks(t *testing.T) {
	sys := &fakeSystem{captureErr: true, iconErr: true}
	reg := New(sys, NewHistory(10, nil), Options{})
	assert.Nil(t, reg.capturePreview(1))
}

func TestMatchHandleGeometryPass(t *testing.T) {
	rec := WindowRecord{ID: 9, PID: 42, Title: "Editor", Bounds: bounds(100, 100, 800, 600)}
	sys := &fakeSystem{handles: map[int][]winsys.Handle{
		42: {
			{ID: 201, Bounds: bounds(500, 500, 300, 300), Title: "Other"},
			// Off by at most the 5px tolerance on every axis.
			{ID: 202, Bounds: bounds(103, 97, 805, 595), Title: "Moved"},
		},
	}}
	reg := New(sys, NewHistory(10, nil), Options{})

	h, ok := reg.matchHandle(rec)
	require.True(t, ok)
	assert.Equal(t, uint32(202), h.ID)
}

func TestMatchHandleTitlePass(t *testing.T) {
	rec := WindowRecord{ID: 9, PID: 42, Title: "Editor", Bounds: bounds(0, 0, 800, 600)}
	sys := &fakeSystem{handles: map[int][]winsys.Handle{
		42: {
			{ID: 201, Bounds: bounds(500, 500, 300, 300), Title: "Other"},
			{ID: 202, Bounds: bounds(900, 900, 100, 100), Title: "Editor"},
		},
	}}
	reg := New(sys, NewHistory(10, nil), Options{})

	h, ok := reg.matchHandle(rec)
	require.True(t, ok)
	assert.Equal(t, uint32(202), h.ID, "title pass should run when geometry finds nothing")
}

func TestMatchHandleSkipsTitlePassForUntitled(t *testing.T) {
	rec := WindowRecord{ID: 9, PID: 42, Title: "", Bounds: bounds(0, 0, 800, 600)}
	sys := &fakeSystem{handles: map[int][]winsys.Handle{
		42: {{ID: 201, Bounds: bounds(500, 500, 300, 300), Title: ""}},
	}}
	reg := New(sys, NewHistory(10, nil), Options{})

	_, ok := reg.matchHandle(rec)
	assert.False(t, ok)
}

func TestActivateRecordsAndRaises(t *testing.T) {
	rec := WindowRecord{ID: 9, PID: 42, Title: "Editor", Bounds: bounds(0, 0, 800, 600)}
	sys := &fakeSystem{handles: map[int][]winsys.Handle{
		42: {{ID: 9, Bounds: bounds(0, 0, 800, 600), Title: "Editor"}},
	}}
	reg := New(sys, NewHistory(10, nil), Options{})

	reg.Activate(rec)

	assert.Equal(t, []uint32{9}, reg.History().Snapshot())
	assert.Equal(t, []uint32{9}, sys.raised)
	assert.Equal(t, []uint32{9}, sys.fronted)
	assert.Equal(t, []uint32{9}, sys.focused)
}

func TestActivateUnmatchedStillRecords(t *testing.T) {
	rec := WindowRecord{ID: 9, PID: 42, Title: "Gone", Bounds: bounds(0, 0, 800, 600)}
	sys := &fakeSystem{}
	reg := New(sys, NewHistory(10, nil), Options{})

	reg.Activate(rec)

	assert.Equal(t, []uint32{9}, reg.History().Snapshot(), "activation is recorded even without a handle")
	assert.Empty(t, sys.raised)
	assert.Empty(t, sys.fronted)
}

func TestCloseAndMinimizeUseMatchedHandle(t *testing.T) {
	rec := WindowRecord{ID: 9, PID: 42, Title: "Editor", Bounds: bounds(0, 0, 800, 600)}
	sys := &fakeSystem{handles: map[int][]winsys.Handle{
		42: {{ID: 9, Bounds: bounds(0, 0, 800, 600), Title: "Editor"}},
	}}
	reg := New(sys, NewHistory(10, nil), Options{})

	reg.Close(rec)
	reg.Minimize(rec)

	assert.Equal(t, []uint32{9}, sys.closed)
	assert.Equal(t, []uint32{9}, sys.minimized)
}

func TestStartStopIdempotent(t *testing.T) {
	sys := &fakeSystem{}
	reg := New(sys, NewHistory(10, nil), Options{RefreshInterval: 10 * time.Millisecond})

	reg.Stop() // never started
	reg.Start()
	reg.Start()
	time.Sleep(30 * time.Millisecond)
	reg.Stop()
	reg.Stop()
}

func TestCaptureAsyncPublishes(t *testing.T) {
	sys := &fakeSystem{}
	reg := New(sys, NewHistory(10, nil), Options{})

	got := make(chan uint32, 1)
	reg.CaptureAsync(WindowRecord{ID: 7}, func(id uint32, img *image.RGBA) {
		require.NotNil(t, img)
		got <- id
	})

	select {
	case id := <-got:
		assert.Equal(t, uint32(7), id)
	case <-time.After(time.Second):
		t.Fatal("capture result never published")
	}
}

func TestCaptureAsyncSilentOnTotalFailure(t *testing.T) {
	sys := &fakeSystem{captureErr: true, iconErr: true}
	reg := New(sys, NewHistory(10, nil), Options{})

	called := make(chan struct{}, 1)
	reg.CaptureAsync(WindowRecord{ID: 7}, func(uint32, *image.RGBA) {
		called <- struct{}{}
	})

	select {
	case <-called:
		t.Fatal("publish must not run when no image could be produced")
	case <-time.After(50 * time.Millisecond):
	}
}
