// Package graphics owns the Decoded Image surface and applies server
// graphics updates to it. It wraps the per-codec decoders (uncompressed/
// RLE bitmap, Planar, NSCodec, RemoteFX, Progressive, QOI, QOIZ,
// AVC420/AVC444) behind a single Pipeline.Apply entry point and tracks
// the union of touched rectangles as the frame's dirty region, per
// MS-RDPBCGR/MS-RDPEGFX.
package graphics

import (
	"fmt"

	"github.com/vantage-sec/rdpcore/graphics/rfx"
)

// CodecID identifies which decoder a graphics update was encoded with.
// Values line up with the codec ids negotiated in the Bitmap Codecs
// Capability Set (pdu.BitmapCodec.CodecID) plus the fixed ids for the
// codecs that aren't separately negotiated (uncompressed/RLE bitmap,
// Planar).
type CodecID uint8

const (
	CodecUncompressedBitmap CodecID = iota
	CodecInterleavedRLE
	CodecPlanar
	CodecNSCodec
	CodecRemoteFX
	CodecProgressive
	CodecQOI
	CodecQOIZ
	CodecAVC420
	CodecAVC444
)

// BPP is the bit depth of an uncompressed/RLE bitmap update; meaningless
// for the other codecs.
type BPP int

const (
	BPP15 BPP = 15
	BPP16 BPP = 16
	BPP24 BPP = 24
	BPP32 BPP = 32
)

// Update describes one server graphics update: a codec, a destination
// rectangle in surface coordinates, and the codec-specific payload.
type Update struct {
	Codec CodecID
	Dest  Rect
	BPP   BPP // uncompressed/RLE bitmap only

	// RowDelta is the source scanline stride in bytes for uncompressed/
	// RLE bitmap updates that don't pack tightly to Dest.W.
	RowDelta int

	Data []byte
}

// Pipeline binds a Decoded Image surface to the codec state each
// stateful codec needs across updates (the RemoteFX/Progressive tile
// context, the AVC444 H.264 decoder, cached progressive tiles).
type Pipeline struct {
	Image *Image

	rfxCtx *rfx.Context
	prog   *ProgressiveState
	h264   H264Decoder
	avcCut uint8

	// AVC444 carries its two views in separate sub-bitstreams that a
	// server may also send alone (LC = luma-only / chroma-only), so the
	// most recent decode of each view is kept across updates.
	avcMain         *YUVImage
	avcAuxU, avcAuxV []byte
}

// NewPipeline creates a Pipeline over img with default codec state.
// The AVC444 chroma reconstruction cutoff defaults to 30 (MS-RDPEGFX
// 3.1.8's recommended difference threshold out of a 0-255 range).
func NewPipeline(img *Image) *Pipeline {
	return &Pipeline{
		Image:  img,
		rfxCtx: rfx.NewContext(),
		prog:   NewProgressiveState(),
		avcCut: 30,
	}
}

// SetH264Decoder injects the decoder used for AVC420/AVC444 NAL
// bitstreams. Until one is set, Apply on those codecs returns
// ErrNoH264Decoder -- a non-fatal, NotImplemented-class condition
// callers can choose to surface as a warning rather than abort the
// session over.
func (p *Pipeline) SetH264Decoder(d H264Decoder) { p.h264 = d }

// SetAVC444Cutoff overrides the default chroma reconstruction
// difference threshold (0-255).
func (p *Pipeline) SetAVC444Cutoff(cutoff uint8) { p.avcCut = cutoff }

var ErrNoH264Decoder = fmt.Errorf("graphics: no H264Decoder configured for AVC420/AVC444")

// Apply decodes u and composites the result into the Pipeline's Image,
// updating its dirty region. It never panics on malformed input --
// every failure path returns an error the caller can classify and
// report without tearing down the session.
func (p *Pipeline) Apply(u Update) error {
	switch u.Codec {
	case CodecUncompressedBitmap, CodecInterleavedRLE:
		return p.applyBitmap(u)
	case CodecPlanar:
		return p.applyPlanar(u)
	case CodecNSCodec:
		return p.applyNSCodec(u)
	case CodecRemoteFX:
		return p.applyRemoteFX(u)
	case CodecProgressive:
		return p.applyProgressive(u)
	case CodecQOI:
		return p.applyQOI(u)
	case CodecQOIZ:
		return p.applyQOIZ(u)
	case CodecAVC420:
		return p.applyAVC420(u)
	case CodecAVC444:
		return p.applyAVC444(u)
	default:
		return fmt.Errorf("graphics: unknown codec id %d", u.Codec)
	}
}

func (p *Pipeline) applyBitmap(u Update) error {
	rowDelta := u.RowDelta
	if rowDelta == 0 {
		rowDelta = u.Dest.W * bppBytes(u.BPP)
	}
	rgba := ProcessBitmap(u.Data, u.Dest.W, u.Dest.H, int(u.BPP), u.Codec == CodecInterleavedRLE, rowDelta)
	if rgba == nil {
		return fmt.Errorf("graphics: bitmap decode failed for rect %+v", u.Dest)
	}
	return p.Image.composite(u.Dest, rgba)
}

func bppBytes(bpp BPP) int {
	switch bpp {
	case BPP15, BPP16:
		return 2
	case BPP24:
		return 3
	case BPP32:
		return 4
	default:
		return 4
	}
}

func (p *Pipeline) applyPlanar(u Update) error {
	rgba := DecompressPlanar(u.Data, u.Dest.W, u.Dest.H)
	if rgba == nil {
		return fmt.Errorf("graphics: planar decode failed for rect %+v", u.Dest)
	}
	return p.Image.composite(u.Dest, rgba)
}

func (p *Pipeline) applyNSCodec(u Update) error {
	rgba, err := Decode(u.Data, u.Dest.W, u.Dest.H)
	if err != nil {
		return fmt.Errorf("graphics: nscodec decode: %w", err)
	}
	return p.Image.composite(u.Dest, rgba)
}

func (p *Pipeline) applyQOI(u Update) error {
	rgba, err := DecodeQOI(u.Data, u.Dest.W, u.Dest.H)
	if err != nil {
		return fmt.Errorf("graphics: qoi decode: %w", err)
	}
	return p.Image.composite(u.Dest, rgba)
}

func (p *Pipeline) applyQOIZ(u Update) error {
	rgba, err := DecodeQOIZ(u.Data, u.Dest.W, u.Dest.H)
	if err != nil {
		return fmt.Errorf("graphics: qoiz decode: %w", err)
	}
	return p.Image.composite(u.Dest, rgba)
}

// applyRemoteFX decodes one RFX message, composites each tile at its
// absolute position within the destination rectangle, and brackets
// the dirty region with BeginFrame/EndFrame when the message carries
// WBT_FRAME_BEGIN/WBT_FRAME_END markers (message.go already surfaces
// these as frame boundaries in the parsed Frame).
func (p *Pipeline) applyRemoteFX(u Update) error {
	frame, err := rfx.ParseRFXMessage(u.Data, p.rfxCtx)
	if err != nil {
		return fmt.Errorf("graphics: remotefx decode: %w", err)
	}
	return p.compositeRFXFrame(frame, u.Dest)
}

const rfxTileSize = 64

func (p *Pipeline) compositeRFXFrame(frame *rfx.Frame, dest Rect) error {
	if frame == nil {
		return nil
	}

	p.Image.BeginFrame()
	for _, tile := range frame.Tiles {
		dst := Rect{
			X: dest.X + int(tile.X)*rfxTileSize,
			Y: dest.Y + int(tile.Y)*rfxTileSize,
			W: rfxTileSize,
			H: rfxTileSize,
		}
		dst = clipRect(dst, p.Image.Width, p.Image.Height)
		if dst.empty() {
			continue
		}
		if err := p.Image.composite(dst, tile.RGBA); err != nil {
			return fmt.Errorf("graphics: remotefx tile (%d,%d): %w", tile.X, tile.Y, err)
		}
	}
	p.Image.EndFrame()
	return nil
}

func clipRect(r Rect, maxW, maxH int) Rect {
	if r.X+r.W > maxW {
		r.W = maxW - r.X
	}
	if r.Y+r.H > maxH {
		r.H = maxH - r.Y
	}
	return r
}

// applyProgressive decodes a RemoteFX Progressive region using the
// same tile-grid wire format as RemoteFX, but merges each tile into
// the per-surface ProgressiveState before compositing so that a later
// quality-refinement pass for the same tile coordinate overwrites the
// earlier, lower-quality pixels instead of stacking a duplicate tile.
func (p *Pipeline) applyProgressive(u Update) error {
	frame, err := rfx.ParseRFXMessage(u.Data, p.rfxCtx)
	if err != nil {
		return fmt.Errorf("graphics: progressive decode: %w", err)
	}
	if frame == nil {
		return nil
	}

	p.Image.BeginFrame()
	for _, tile := range frame.Tiles {
		p.prog.mergeTile(tile.X, tile.Y, tile.RGBA)
		rgba, _ := p.prog.tile(tile.X, tile.Y)

		dst := clipRect(Rect{
			X: u.Dest.X + int(tile.X)*rfxTileSize,
			Y: u.Dest.Y + int(tile.Y)*rfxTileSize,
			W: rfxTileSize,
			H: rfxTileSize,
		}, p.Image.Width, p.Image.Height)
		if dst.empty() {
			continue
		}
		if err := p.Image.composite(dst, rgba); err != nil {
			return fmt.Errorf("graphics: progressive tile (%d,%d): %w", tile.X, tile.Y, err)
		}
	}
	p.Image.EndFrame()
	return nil
}

// applyAVC420 decodes a single-view AVC420 bitstream. The metablock's
// region rectangles are informational (they describe which sub-areas
// changed); the whole destination rectangle is recomposited from the
// decoded frame since a partial-region 4:2:0 decode doesn't change the
// pixels outside those regions anyway.
func (p *Pipeline) applyAVC420(u Update) error {
	if p.h264 == nil {
		return ErrNoH264Decoder
	}

	_, nal, err := ParseAVC420Stream(u.Data)
	if err != nil {
		return fmt.Errorf("graphics: avc420 metablock: %w", err)
	}

	frame, err := p.h264.Decode(nal)
	if err != nil {
		return fmt.Errorf("graphics: avc420 nal decode: %w", err)
	}

	rgba := YUV420ToRGBA(frame)
	return p.Image.composite(u.Dest, rgba)
}

// applyAVC444 splits the RFX_AVC444_BITMAP_STREAM container into its
// main (luma + 4:2:0 chroma) and auxiliary (full-resolution chroma)
// AVC420 sub-bitstreams, decodes whichever views the LC field says are
// present, and reconstructs full 4:4:4 chroma per MS-RDPEGFX 3.1.8
// before compositing. A view that was omitted this update (luma-only
// or chroma-only streams) reuses the last one decoded.
func (p *Pipeline) applyAVC444(u Update) error {
	if p.h264 == nil {
		return ErrNoH264Decoder
	}

	stream, err := ParseAVC444Stream(u.Data)
	if err != nil {
		return fmt.Errorf("graphics: avc444 stream: %w", err)
	}

	if stream.LC != LCChromaOnly {
		_, nal, err := ParseAVC420Stream(stream.Stream1)
		if err != nil {
			return fmt.Errorf("graphics: avc444 main metablock: %w", err)
		}
		main, err := p.h264.Decode(nal)
		if err != nil {
			return fmt.Errorf("graphics: avc444 main nal decode: %w", err)
		}
		p.avcMain = main
	}

	// Auxiliary view: a frame whose luma plane carries full-resolution
	// U samples for the left half-width and V samples for the right
	// half-width (the packing MS-RDPEGFX uses to smuggle full chroma
	// through an H.264 luma channel).
	auxData := stream.Stream2
	if stream.LC == LCChromaOnly {
		auxData = stream.Stream1
	}
	if len(auxData) > 0 {
		_, nal, err := ParseAVC420Stream(auxData)
		if err != nil {
			return fmt.Errorf("graphics: avc444 aux metablock: %w", err)
		}
		aux, err := p.h264.Decode(nal)
		if err != nil {
			return fmt.Errorf("graphics: avc444 aux nal decode: %w", err)
		}
		if p.avcMain != nil {
			p.avcAuxU, p.avcAuxV = splitAuxChroma(aux, p.avcMain.Width, p.avcMain.Height)
		}
	}

	main := p.avcMain
	if main == nil {
		// Chroma arrived before any luma view; nothing to composite yet.
		return nil
	}
	if p.avcAuxU == nil {
		// No auxiliary view seen yet: composite at 4:2:0.
		return p.Image.composite(u.Dest, YUV420ToRGBA(main))
	}

	u2, v2 := ReconstructAVC444Chroma(main, p.avcAuxU, p.avcAuxV, p.avcCut)
	rgba := YUV444ToRGBA(main.Y, u2, v2, main.Width, main.Height)

	return p.Image.composite(u.Dest, rgba)
}

// splitAuxChroma extracts full-resolution U/V planes from the
// auxiliary view's luma-channel packing.
func splitAuxChroma(aux *YUVImage, width, height int) (u, v []byte) {
	u = make([]byte, width*height)
	v = make([]byte, width*height)
	for y := 0; y < height && y < aux.Height; y++ {
		for x := 0; x < width; x++ {
			src := y*aux.Width + x
			if src >= len(aux.Y) {
				continue
			}
			idx := y*width + x
			if x < width/2 {
				u[idx] = aux.Y[src]
			} else {
				v[idx] = aux.Y[src]
			}
		}
	}
	return u, v
}
