package winsys

import (
	"fmt"
	"image"
	"image/color"

	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/quicktab/quicktab/internal/logger"
	"golang.org/x/image/draw"
)

// previewIconSize is the edge length icons are scaled to for preview use.
const previewIconSize = 128

// CaptureWindow grabs the current contents of the window as an RGBA image.
func (x *X11) CaptureWindow(id uint32) (*image.RGBA, error) {
	win := xproto.Window(id)

	attrs, err := xproto.GetWindowAttributes(x.xu.Conn(), win).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window attributes: %w", err)
	}
	if attrs.Class != xproto.WindowClassInputOutput || attrs.MapState != xproto.MapStateViewable {
		return nil, fmt.Errorf("window %d is not viewable", id)
	}

	geom, err := xproto.GetGeometry(x.xu.Conn(), xproto.Drawable(win)).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window geometry: %w", err)
	}

	drawable := xproto.Drawable(win)

	// A composite-named pixmap holds the window's contents even when it is
	// partially covered by other windows.
	if x.compositeEnabled {
		if err := composite.RedirectWindowChecked(x.xu.Conn(), win, composite.RedirectAutomatic).Check(); err == nil {
			defer composite.UnredirectWindow(x.xu.Conn(), win, composite.RedirectAutomatic)

			if pixmap, perr := xproto.NewPixmapId(x.xu.Conn()); perr == nil {
				if composite.NameWindowPixmapChecked(x.xu.Conn(), win, pixmap).Check() == nil {
					drawable = xproto.Drawable(pixmap)
					defer xproto.FreePixmap(x.xu.Conn(), pixmap)
				}
			}
		} else {
			logger.WithComponent("x11").Debug().
				Uint32("window_id", id).
				Err(err).
				Msg("Composite redirect failed, capturing window directly")
		}
	}

	reply, err := xproto.GetImage(
		x.xu.Conn(),
		xproto.ImageFormatZPixmap,
		drawable,
		0, 0,
		geom.Width, geom.Height,
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return bgraToRGBA(reply.Data, int(geom.Width), int(geom.Height)), nil
}

// AppIcon returns the window's _NET_WM_ICON scaled to preview size.
func (x *X11) AppIcon(id uint32) (*image.RGBA, error) {
	icons, err := ewmh.WmIconGet(x.xu, xproto.Window(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get window icon: %w", err)
	}
	if len(icons) == 0 {
		return nil, fmt.Errorf("window %d has no icon", id)
	}

	// Largest variant scales down cleanest.
	best := icons[0]
	for _, icon := range icons[1:] {
		if icon.Width*icon.Height > best.Width*best.Height {
			best = icon
		}
	}
	if best.Width == 0 || best.Height == 0 {
		return nil, fmt.Errorf("window %d icon has zero size", id)
	}

	src := image.NewRGBA(image.Rect(0, 0, int(best.Width), int(best.Height)))
	for py := 0; py < int(best.Height); py++ {
		for px := 0; px < int(best.Width); px++ {
			i := py*int(best.Width) + px
			if i >= len(best.Data) {
				break
			}
			argb := uint32(best.Data[i])
			src.SetRGBA(px, py, color.RGBA{
				A: uint8(argb >> 24),
				R: uint8(argb >> 16),
				G: uint8(argb >> 8),
				B: uint8(argb),
			})
		}
	}

	if best.Width == previewIconSize && best.Height == previewIconSize {
		return src, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, previewIconSize, previewIconSize))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst, nil
}

// bgraToRGBA converts X11 ZPixmap data to an RGBA image.
func bgraToRGBA(data []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			if i+3 >= len(data) {
				continue
			}
			img.SetRGBA(x, y, color.RGBA{
				R: data[i+2],
				G: data[i+1],
				B: data[i],
				A: 255,
			})
		}
	}
	return img
}
