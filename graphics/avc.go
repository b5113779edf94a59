package graphics

import (
	"encoding/binary"
	"fmt"
)

// AVC420/AVC444 support (MS-RDPEGFX 2.2.4.4, 3.1.8). There is no
// mature pure-Go H.264 decoder to lean on, so what this package owns
// is exactly the part MS-RDPEGFX asks a sans-I/O client to get
// bit-exact on its own: the RFX_AVC420_METABLOCK
// container framing and the AVC444 auxiliary-chroma reconstruction math.
// Actual NAL decode is delegated to a caller-supplied H264Decoder (same
// port pattern as the license Cache), so a real decoder can be plugged
// in by the embedder without this module depending on one.

// RegionRect is a destination rectangle carried in an AVC420 metablock,
// identifying which part of the frame a region of quality applies to.
type RegionRect struct {
	X, Y, W, H int
}

// QuantQuality carries the per-region QP/quality values from the
// metablock (MS-RDPEGFX 2.2.4.4.2).
type QuantQuality struct {
	QPVal       uint8
	QualityVal  uint8
}

// AVC420Metadata is the parsed RFX_AVC420_METABLOCK preceding the raw
// H.264 bitstream in an AVC420 bitmap stream.
type AVC420Metadata struct {
	Regions []RegionRect
	Quality []QuantQuality
}

var ErrAVCFormat = fmt.Errorf("avc: malformed metablock")

// ParseAVC420Stream splits an RFX_AVC420_BITMAP_STREAM into its metadata
// and the raw H.264 Annex-B bitstream that follows it.
func ParseAVC420Stream(data []byte) (AVC420Metadata, []byte, error) {
	var meta AVC420Metadata

	if len(data) < 4 {
		return meta, nil, ErrAVCFormat
	}
	numRegionRects := binary.LittleEndian.Uint32(data[0:4])
	off := 4

	meta.Regions = make([]RegionRect, numRegionRects)
	for i := range meta.Regions {
		if off+8 > len(data) {
			return meta, nil, ErrAVCFormat
		}
		x := int(binary.LittleEndian.Uint16(data[off : off+2]))
		y := int(binary.LittleEndian.Uint16(data[off+2 : off+4]))
		right := int(binary.LittleEndian.Uint16(data[off+4 : off+6]))
		bottom := int(binary.LittleEndian.Uint16(data[off+6 : off+8]))
		meta.Regions[i] = RegionRect{X: x, Y: y, W: right - x, H: bottom - y}
		off += 8
	}

	meta.Quality = make([]QuantQuality, numRegionRects)
	for i := range meta.Quality {
		if off+4 > len(data) {
			return meta, nil, ErrAVCFormat
		}
		meta.Quality[i] = QuantQuality{QPVal: data[off], QualityVal: data[off+1]}
		off += 4 // qpVal, qualityVal, plus 2 reserved bytes
	}

	return meta, data[off:], nil
}

// LC values of an RFX_AVC444_BITMAP_STREAM (MS-RDPEGFX 2.2.4.5): which
// of the two AVC420 sub-bitstreams are present.
const (
	LCLumaAndChroma uint8 = 0 // bitstream1 = luma view, bitstream2 = chroma view
	LCLumaOnly      uint8 = 1 // bitstream1 = luma view only
	LCChromaOnly    uint8 = 2 // bitstream1 = chroma view only
)

// AVC444Stream is the parsed RFX_AVC444_BITMAP_STREAM container: a
// 4-byte avc420EncodedBitstreamInfo field packing
// cbAvc420EncodedBitstream1 in bits 0-29 and LC in bits 30-31,
// followed by one or two RFX_AVC420_BITMAP_STREAMs.
type AVC444Stream struct {
	LC      uint8
	Stream1 []byte
	Stream2 []byte // present only when LC == LCLumaAndChroma
}

// ParseAVC444Stream splits an RFX_AVC444_BITMAP_STREAM into its
// AVC420 sub-bitstreams.
func ParseAVC444Stream(data []byte) (AVC444Stream, error) {
	var s AVC444Stream

	if len(data) < 4 {
		return s, ErrAVCFormat
	}
	info := binary.LittleEndian.Uint32(data[0:4])
	cb1 := int(info & 0x3FFFFFFF)
	s.LC = uint8(info >> 30)

	if s.LC > LCChromaOnly {
		return s, ErrAVCFormat
	}
	if 4+cb1 > len(data) {
		return s, ErrAVCFormat
	}

	s.Stream1 = data[4 : 4+cb1]
	if s.LC == LCLumaAndChroma {
		s.Stream2 = data[4+cb1:]
	}
	return s, nil
}

// YUVImage is a decoded H.264 frame in planar YUV. U/V are stored at
// full resolution for the AVC444 auxiliary view, or subsampled 4:2:0
// (half width/height, rounded up) for the AVC420 main view -- callers
// distinguish the two by comparing CWidth/CHeight against Width/Height.
type YUVImage struct {
	Width, Height   int
	CWidth, CHeight int
	Y, U, V         []byte
}

// H264Decoder decodes a single Annex-B NAL unit stream into a YUV
// frame. Implementations are supplied by the embedder (e.g. a cgo
// binding or hardware decoder); this package never constructs one.
type H264Decoder interface {
	Decode(nal []byte) (*YUVImage, error)
}

// YUV420ToRGBA upsamples 4:2:0 chroma with nearest-neighbor
// replication and converts to RGBA using BT.601 coefficients.
func YUV420ToRGBA(f *YUVImage) []byte {
	out := make([]byte, f.Width*f.Height*4)
	for y := 0; y < f.Height; y++ {
		cy := y * f.CHeight / f.Height
		for x := 0; x < f.Width; x++ {
			cx := x * f.CWidth / f.Width
			yy := int(f.Y[y*f.Width+x])
			u := int(f.U[cy*f.CWidth+cx]) - 128
			v := int(f.V[cy*f.CWidth+cx]) - 128

			r := clampByte((298*yy + 409*v + 128) >> 8)
			g := clampByte((298*yy - 100*u - 208*v + 128) >> 8)
			b := clampByte((298*yy + 516*u + 128) >> 8)

			o := (y*f.Width + x) * 4
			out[o], out[o+1], out[o+2], out[o+3] = r, g, b, 255
		}
	}
	return out
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// ReconstructAVC444Chroma rebuilds full-resolution U/V planes for an
// AVC444 frame from the main view's 4:2:0 chroma and the auxiliary
// view's full-resolution chroma carried in its luma plane (MS-RDPEGFX
// packs aux U/V into what the decoder sees as a second luma plane at
// the main frame's full resolution). Aux samples are trusted unless
// they diverge from the upsampled main sample by more than cutoff, in
// which case the main sample wins -- this keeps the reconstruction
// stable against aux-view decode noise instead of propagating it.
func ReconstructAVC444Chroma(main *YUVImage, auxU, auxV []byte, cutoff uint8) (u, v []byte) {
	w, h := main.Width, main.Height
	u = make([]byte, w*h)
	v = make([]byte, w*h)

	for y := 0; y < h; y++ {
		cy := y * main.CHeight / h
		for x := 0; x < w; x++ {
			cx := x * main.CWidth / w
			mu := main.U[cy*main.CWidth+cx]
			mv := main.V[cy*main.CWidth+cx]

			idx := y*w + x
			au, av := auxU[idx], auxV[idx]

			u[idx] = pickChroma(mu, au, cutoff)
			v[idx] = pickChroma(mv, av, cutoff)
		}
	}
	return u, v
}

func pickChroma(main, aux, cutoff byte) byte {
	d := int(main) - int(aux)
	if d < 0 {
		d = -d
	}
	if d <= int(cutoff) {
		return aux
	}
	return main
}

// YUV444ToRGBA converts a luma plane plus full-resolution U/V planes
// (as produced by ReconstructAVC444Chroma) to RGBA.
func YUV444ToRGBA(yPlane, u, v []byte, width, height int) []byte {
	out := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		yy := int(yPlane[i])
		uu := int(u[i]) - 128
		vv := int(v[i]) - 128

		r := clampByte((298*yy + 409*vv + 128) >> 8)
		g := clampByte((298*yy - 100*uu - 208*vv + 128) >> 8)
		b := clampByte((298*yy + 516*uu + 128) >> 8)

		o := i * 4
		out[o], out[o+1], out[o+2], out[o+3] = r, g, b, 255
	}
	return out
}
