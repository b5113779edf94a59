package graphics

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// avc420Stream wraps nal in an RFX_AVC420_BITMAP_STREAM with zero
// region rects.
func avc420Stream(nal []byte) []byte {
	return append([]byte{0, 0, 0, 0}, nal...)
}

// avc444Container packs one or two AVC420 streams behind the
// avc420EncodedBitstreamInfo field.
func avc444Container(lc uint8, stream1, stream2 []byte) []byte {
	out := make([]byte, 4, 4+len(stream1)+len(stream2))
	binary.LittleEndian.PutUint32(out, uint32(len(stream1))&0x3FFFFFFF|uint32(lc)<<30)
	out = append(out, stream1...)
	return append(out, stream2...)
}

func TestParseAVC444Stream(t *testing.T) {
	s1 := avc420Stream([]byte("main"))
	s2 := avc420Stream([]byte("chroma"))

	stream, err := ParseAVC444Stream(avc444Container(LCLumaAndChroma, s1, s2))
	require.NoError(t, err)
	assert.Equal(t, LCLumaAndChroma, stream.LC)
	assert.Equal(t, s1, stream.Stream1)
	assert.Equal(t, s2, stream.Stream2)

	stream, err = ParseAVC444Stream(avc444Container(LCLumaOnly, s1, nil))
	require.NoError(t, err)
	assert.Equal(t, LCLumaOnly, stream.LC)
	assert.Equal(t, s1, stream.Stream1)
	assert.Nil(t, stream.Stream2)

	stream, err = ParseAVC444Stream(avc444Container(LCChromaOnly, s2, nil))
	require.NoError(t, err)
	assert.Equal(t, LCChromaOnly, stream.LC)
	assert.Equal(t, s2, stream.Stream1)
}

func TestParseAVC444StreamRejectsMalformed(t *testing.T) {
	// Reserved LC value.
	_, err := ParseAVC444Stream(avc444Container(3, []byte{0, 0, 0, 0}, nil))
	assert.ErrorIs(t, err, ErrAVCFormat)

	// Declared stream1 length past the end of the data.
	bad := make([]byte, 4)
	binary.LittleEndian.PutUint32(bad, 100)
	_, err = ParseAVC444Stream(bad)
	assert.ErrorIs(t, err, ErrAVCFormat)

	_, err = ParseAVC444Stream([]byte{0x01})
	assert.ErrorIs(t, err, ErrAVCFormat)
}

// recordingH264 hands out canned frames in order and keeps every NAL
// it was asked to decode.
type recordingH264 struct {
	nals   [][]byte
	frames []*YUVImage
}

func (r *recordingH264) Decode(nal []byte) (*YUVImage, error) {
	r.nals = append(r.nals, append([]byte(nil), nal...))
	f := r.frames[0]
	if len(r.frames) > 1 {
		r.frames = r.frames[1:]
	}
	return f, nil
}

func grayFrame420(w, h int) *YUVImage {
	f := &YUVImage{
		Width: w, Height: h,
		CWidth: (w + 1) / 2, CHeight: (h + 1) / 2,
	}
	f.Y = make([]byte, w*h)
	f.U = make([]byte, f.CWidth*f.CHeight)
	f.V = make([]byte, f.CWidth*f.CHeight)
	for i := range f.Y {
		f.Y[i] = 128
	}
	for i := range f.U {
		f.U[i], f.V[i] = 128, 128
	}
	return f
}

func TestPipelineAVC444DecodesBothViews(t *testing.T) {
	img := NewImage(2, 2)
	p := NewPipeline(img)

	mainFrame := grayFrame420(2, 2)
	auxFrame := grayFrame420(2, 2)
	// Aux luma packs full-resolution chroma: U on the left half-width,
	// V on the right.
	auxFrame.Y = []byte{200, 64, 200, 64}

	dec := &recordingH264{frames: []*YUVImage{mainFrame, auxFrame}}
	p.SetH264Decoder(dec)
	p.SetAVC444Cutoff(255) // always trust the aux view

	data := avc444Container(LCLumaAndChroma,
		avc420Stream([]byte("main-nal")),
		avc420Stream([]byte("aux-nal")))

	err := p.Apply(Update{Codec: CodecAVC444, Dest: Rect{X: 0, Y: 0, W: 2, H: 2}, Data: data})
	require.NoError(t, err)

	// Both sub-bitstreams were decoded, each with its own NAL.
	require.Len(t, dec.nals, 2)
	assert.Equal(t, []byte("main-nal"), dec.nals[0])
	assert.Equal(t, []byte("aux-nal"), dec.nals[1])

	// With the cutoff wide open the aux U sample (200) wins over the
	// main view's neutral 128, shifting blue well above gray.
	assert.Greater(t, int(img.Pixels[2]), 140, "blue channel should reflect aux chroma")
}

func TestPipelineAVC444LumaOnlyReusesCachedAux(t *testing.T) {
	img := NewImage(2, 2)
	p := NewPipeline(img)

	mainFrame := grayFrame420(2, 2)
	auxFrame := grayFrame420(2, 2)
	auxFrame.Y = []byte{200, 64, 200, 64}

	dec := &recordingH264{frames: []*YUVImage{mainFrame, auxFrame, mainFrame}}
	p.SetH264Decoder(dec)
	p.SetAVC444Cutoff(255)

	both := avc444Container(LCLumaAndChroma,
		avc420Stream([]byte("main-nal")),
		avc420Stream([]byte("aux-nal")))
	require.NoError(t, p.Apply(Update{Codec: CodecAVC444, Dest: Rect{X: 0, Y: 0, W: 2, H: 2}, Data: both}))

	lumaOnly := avc444Container(LCLumaOnly, avc420Stream([]byte("main-2")), nil)
	require.NoError(t, p.Apply(Update{Codec: CodecAVC444, Dest: Rect{X: 0, Y: 0, W: 2, H: 2}, Data: lumaOnly}))

	// One more decode for the new luma view, none for chroma.
	require.Len(t, dec.nals, 3)
	assert.Equal(t, []byte("main-2"), dec.nals[2])
	assert.Greater(t, int(img.Pixels[2]), 140, "cached aux chroma should still apply")
}

func TestPipelineAVC444ChromaBeforeLumaIsDeferred(t *testing.T) {
	img := NewImage(2, 2)
	p := NewPipeline(img)

	auxFrame := grayFrame420(2, 2)
	dec := &recordingH264{frames: []*YUVImage{auxFrame}}
	p.SetH264Decoder(dec)

	chromaOnly := avc444Container(LCChromaOnly, avc420Stream([]byte("aux-first")), nil)
	err := p.Apply(Update{Codec: CodecAVC444, Dest: Rect{X: 0, Y: 0, W: 2, H: 2}, Data: chromaOnly})
	require.NoError(t, err)

	// Nothing composited: the surface stays zeroed until a luma view
	// arrives.
	assert.Equal(t, make([]byte, 2*2*4), img.Pixels)
}
