// Package graphics owns the Decoded Image surface and applies server
// graphics updates to it. It wraps the per-codec decoders (uncompressed/
// RLE bitmap, NSCodec, RemoteFX, Progressive, QOI, QOIZ, AVC420/AVC444)
// behind a single Apply entry point and tracks the union of touched
// rectangles as the frame's dirty region, per MS-RDPBCGR/MS-RDPEGFX.
package graphics

import (
	"errors"
	"fmt"
)

// Rect is an axis-aligned destination rectangle in image coordinates.
type Rect struct {
	X, Y, W, H int
}

func (r Rect) empty() bool { return r.W <= 0 || r.H <= 0 }

// union returns the smallest rectangle containing both a and b.
func union(a, b Rect) Rect {
	if a.empty() {
		return b
	}
	if b.empty() {
		return a
	}
	x0 := min(a.X, b.X)
	y0 := min(a.Y, b.Y)
	x1 := max(a.X+a.W, b.X+b.W)
	y1 := max(a.Y+a.H, b.Y+b.H)
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ErrOutOfBounds is returned when a decoded update would write outside
// the announced destination rectangle or the surface bounds.
var ErrOutOfBounds = errors.New("graphics: decode exceeds destination rectangle")

// Image is the client-side framebuffer surface: width x height x 4 bytes
// per pixel, plus the current frame's dirty region (union of update
// rectangles, reset at the start of each frame cycle). Pixel layout is
// RGBA (matching the output of every codec in this package) -- the
// negotiated wire format may be BGRA-ordered on the server side, but the
// per-codec Decode functions already normalize to RGBA on the way in.
type Image struct {
	Width, Height int
	Pixels        []byte // RGBA, row-major, stride = Width*4

	dirty     Rect
	hasDirty  bool
	inFrame   bool // true between a BeginFrame/EndFrame marker pair
}

// NewImage allocates a Decoded Image of the given dimensions, zeroed.
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pixels: make([]byte, width*height*4),
	}
}

// Resize reallocates the surface. Called only on server-initiated
// resolution change (e.g. deactivation-reactivation with a new desktop
// size); the core never resizes mid-frame.
func (img *Image) Resize(width, height int) {
	img.Width = width
	img.Height = height
	img.Pixels = make([]byte, width*height*4)
	img.dirty = Rect{}
	img.hasDirty = false
}

// BeginFrame starts a frame-marker bracket (RemoteFX/Progressive
// BeginFrame). Dirty-region accumulation continues across multiple
// Apply calls until EndFrame; the region is monotonic within the pair.
func (img *Image) BeginFrame() {
	img.inFrame = true
}

// EndFrame closes a frame-marker bracket. It does not itself clear the
// dirty region -- that happens once the caller has drained the
// GraphicsUpdate event for the accumulated region (DrainDirty).
func (img *Image) EndFrame() {
	img.inFrame = false
}

// InFrame reports whether a BeginFrame/EndFrame bracket is open.
func (img *Image) InFrame() bool { return img.inFrame }

// DrainDirty returns the accumulated dirty rectangle and clears it,
// starting a new frame cycle. ok is false if nothing was touched.
func (img *Image) DrainDirty() (r Rect, ok bool) {
	r, ok = img.dirty, img.hasDirty
	img.dirty = Rect{}
	img.hasDirty = false
	return r, ok
}

func (img *Image) markDirty(r Rect) {
	img.dirty = union(img.dirty, r)
	img.hasDirty = true
}

// composite writes an RGBA source buffer into the destination rectangle
// and unions the rectangle into the dirty region. A rectangle not wholly
// inside the surface, or a short buffer, is rejected with
// ErrOutOfBounds. It never writes outside dst.
func (img *Image) composite(dst Rect, rgba []byte) error {
	if dst.X < 0 || dst.Y < 0 || dst.X+dst.W > img.Width || dst.Y+dst.H > img.Height {
		return fmt.Errorf("%w: rect=%+v surface=%dx%d", ErrOutOfBounds, dst, img.Width, img.Height)
	}
	if len(rgba) < dst.W*dst.H*4 {
		return fmt.Errorf("%w: short pixel buffer (%d < %d)", ErrOutOfBounds, len(rgba), dst.W*dst.H*4)
	}

	for row := 0; row < dst.H; row++ {
		srcOff := row * dst.W * 4
		dstOff := ((dst.Y+row)*img.Width + dst.X) * 4
		copy(img.Pixels[dstOff:dstOff+dst.W*4], rgba[srcOff:srcOff+dst.W*4])
	}

	img.markDirty(dst)
	return nil
}
