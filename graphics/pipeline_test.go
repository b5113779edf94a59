package graphics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipelineAppliesUncompressedBitmap(t *testing.T) {
	img := NewImage(2, 2)
	p := NewPipeline(img)

	// Two BGRA32 rows, bottom-up as RDP sends them; ProcessBitmap flips
	// them to top-down before conversion.
	wire := []byte{
		1, 2, 3, 0, 4, 5, 6, 0, // row0 (bottom): pixel A, pixel B
		7, 8, 9, 0, 10, 11, 12, 0, // row1 (top): pixel C, pixel D
	}

	err := p.Apply(Update{
		Codec: CodecUncompressedBitmap,
		Dest:  Rect{X: 0, Y: 0, W: 2, H: 2},
		BPP:   BPP32,
		Data:  wire,
	})
	require.NoError(t, err)

	require.Equal(t, []byte{9, 8, 7, 255}, img.Pixels[0:4])
	require.Equal(t, []byte{12, 11, 10, 255}, img.Pixels[4:8])

	r, ok := img.DrainDirty()
	require.True(t, ok)
	require.Equal(t, Rect{X: 0, Y: 0, W: 2, H: 2}, r)
}

func TestPipelineAppliesQOI(t *testing.T) {
	img := NewImage(4, 4)
	p := NewPipeline(img)

	src := solidRGBA(2, 2, 100, 150, 200, 255)
	encoded := EncodeQOI(src, 2, 2)

	err := p.Apply(Update{
		Codec: CodecQOI,
		Dest:  Rect{X: 1, Y: 1, W: 2, H: 2},
		Data:  encoded,
	})
	require.NoError(t, err)

	off := (1*4 + 1) * 4
	require.Equal(t, []byte{100, 150, 200, 255}, img.Pixels[off:off+4])
}

func TestPipelineAVC420WithoutDecoderIsNotImplemented(t *testing.T) {
	img := NewImage(4, 4)
	p := NewPipeline(img)

	err := p.Apply(Update{
		Codec: CodecAVC420,
		Dest:  Rect{X: 0, Y: 0, W: 4, H: 4},
		Data:  []byte{0, 0, 0, 0}, // zero region rects, empty nal
	})
	require.ErrorIs(t, err, ErrNoH264Decoder)
}

type fakeH264Decoder struct {
	frame *YUVImage
}

func (f *fakeH264Decoder) Decode(nal []byte) (*YUVImage, error) {
	return f.frame, nil
}

func TestPipelineAVC420WithDecoder(t *testing.T) {
	img := NewImage(2, 2)
	p := NewPipeline(img)
	p.SetH264Decoder(&fakeH264Decoder{frame: &YUVImage{
		Width: 2, Height: 2, CWidth: 1, CHeight: 1,
		Y: []byte{128, 128, 128, 128},
		U: []byte{128},
		V: []byte{128},
	}})

	err := p.Apply(Update{
		Codec: CodecAVC420,
		Dest:  Rect{X: 0, Y: 0, W: 2, H: 2},
		Data:  []byte{0, 0, 0, 0},
	})
	require.NoError(t, err)

	// mid-gray luma with neutral chroma should land close to gray.
	require.InDelta(t, 128, int(img.Pixels[0]), 5)
}

func TestProgressiveStateMergesLatestTile(t *testing.T) {
	s := NewProgressiveState()
	first := []byte{1, 2, 3, 4}
	second := []byte{5, 6, 7, 8}

	s.mergeTile(0, 0, first)
	got, ok := s.tile(0, 0)
	require.True(t, ok)
	require.Equal(t, first, got)

	s.mergeTile(0, 0, second)
	got, ok = s.tile(0, 0)
	require.True(t, ok)
	require.Equal(t, second, got)

	s.Reset()
	_, ok = s.tile(0, 0)
	require.False(t, ok)
}
