// Tests for the ProcessBitmap function
package graphics

import (
	"testing"
)

// TestProcessBitmapUncompressed tests ProcessBitmap with uncompressed data
func TestProcessBitmapUncompressed(t *testing.T) {
	tests := []struct {
		name   string
		bpp    int
		width  int
		height int
	}{
		{"8bpp", 8, 4, 4},
		{"15bpp", 15, 4, 4},
		{"16bpp", 16, 4, 4},
		{"24bpp", 24, 4, 4},
		{"32bpp", 32, 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bytesPerPixel := tt.bpp / 8
			if bytesPerPixel == 0 {
				bytesPerPixel = 1
			}
			srcLen := tt.width * tt.height * bytesPerPixel
			src := make([]byte, srcLen)

			// Fill with test pattern
			for i := range src {
				src[i] = byte(i % 256)
			}

			result := ProcessBitmap(src, tt.width, tt.height, tt.bpp, false, 0)

			expectedLen := tt.width * tt.height * 4 // RGBA output
			if len(result) != expectedLen {
				t.Errorf("ProcessBitmap returned wrong length: got %d, want %d", len(result), expectedLen)
			}
		})
	}
}

// TestProcessBitmapCompressed8bpp tests 8-bit RLE decompression
func TestProcessBitmapCompressed8bpp(t *testing.T) {
	// Simple RLE data: background run of 4 pixels
	// 0x00 = REGULAR_BG_RUN with length in low 5 bits
	// 0x04 = BG_RUN with length 4
	src := []byte{0x04} // REGULAR_BG_RUN length 4

	result := ProcessBitmap(src, 2, 2, 8, true, 0)

	// Should produce 4x4=16 bytes RGBA (2x2 image)
	if result == nil {
		t.Error("ProcessBitmap returned nil for 8bpp compressed")
	}
}

// TestProcessBitmapCompressed15bpp tests 15-bit RLE decompression
func TestProcessBitmapCompressed15bpp(t *testing.T) {
	// Simple RLE data for 15bpp
	src := []byte{0x04} // REGULAR_BG_RUN length 4

	result := ProcessBitmap(src, 2, 2, 15, true, 0)

	if result == nil {
		t.Error("ProcessBitmap returned nil for 15bpp compressed")
	}
}

// TestProcessBitmapCompressed16bpp tests 16-bit RLE decompression
func TestProcessBitmapCompressed16bpp(t *testing.T) {
	// Simple RLE data for 16bpp
	src := []byte{0x04}

	result := ProcessBitmap(src, 2, 2, 16, true, 0)

	if result == nil {
		t.Error("ProcessBitmap returned nil for 16bpp compressed")
	}
}

// TestProcessBitmapCompressed24bpp tests 24-bit RLE decompression
func TestProcessBitmapCompressed24bpp(t *testing.T) {
	// Simple RLE data for 24bpp
	src := []byte{0x04}

	result := ProcessBitmap(src, 2, 2, 24, true, 0)

	if result == nil {
		t.Error("ProcessBitmap returned nil for 24bpp compressed")
	}
}

// TestProcessBitmapCompressed32bpp tests the 32-bit RLE path
func TestProcessBitmapCompressed32bpp(t *testing.T) {
	// Compressed 32bpp data goes to RLEDecompress32
	src := []byte{0xC4}

	result := ProcessBitmap(src, 2, 2, 32, true, 0)
	// May return nil if RLE fails, which is acceptable
	_ = result
}

// TestProcessBitmapUncompressed32bppMatches24bpp verifies that uncompressed
// 32-bit BGRA data converts to the same RGBA as the equivalent 24-bit BGR data.
func TestProcessBitmapUncompressed32bppMatches24bpp(t *testing.T) {
	// Build uncompressed 24-bit BGR data for a 2x1 image: red pixel, blue pixel
	// row is bottom-up, so for a 1-row image it's the same
	bgrData := []byte{
		0x00, 0x00, 0xFF, // pixel 0: B=0, G=0, R=255 → red
		0xFF, 0x00, 0x00, // pixel 1: B=255, G=0, R=0 → blue
	}

	// Run ProcessBitmap with isCompressed=false at 24bpp as baseline,
	// then compare with isCompressed=false at 32bpp using 4-byte pixels.

	// Baseline: 24-bit uncompressed (known correct path)
	result24 := ProcessBitmap(bgrData, 2, 1, 24, false, 6)
	if result24 == nil {
		t.Fatal("ProcessBitmap 24bpp returned nil")
	}

	// 32-bit uncompressed: BGRA (4 bytes per pixel)
	bgraData := []byte{
		0x00, 0x00, 0xFF, 0xFF, // red
		0xFF, 0x00, 0x00, 0xFF, // blue
	}
	result32 := ProcessBitmap(bgraData, 2, 1, 32, false, 8)
	if result32 == nil {
		t.Fatal("ProcessBitmap 32bpp uncompressed returned nil")
	}

	// Both should produce identical RGBA output
	if len(result24) != len(result32) {
		t.Fatalf("length mismatch: 24bpp=%d, 32bpp=%d", len(result24), len(result32))
	}
	for i := range result24 {
		if result24[i] != result32[i] {
			t.Errorf("pixel mismatch at byte %d: 24bpp=%d, 32bpp=%d", i, result24[i], result32[i])
		}
	}

	// Verify actual values: pixel 0 should be red (R=255, G=0, B=0, A=255)
	if result32[0] != 255 || result32[1] != 0 || result32[2] != 0 || result32[3] != 255 {
		t.Errorf("pixel 0: got RGBA(%d,%d,%d,%d), want (255,0,0,255)",
			result32[0], result32[1], result32[2], result32[3])
	}
	// Pixel 1 should be blue (R=0, G=0, B=255, A=255)
	if result32[4] != 0 || result32[5] != 0 || result32[6] != 255 || result32[7] != 255 {
		t.Errorf("pixel 1: got RGBA(%d,%d,%d,%d), want (0,0,255,255)",
			result32[4], result32[5], result32[6], result32[7])
	}
}

// TestProcessBitmapInvalidBpp tests unsupported bit depths
func TestProcessBitmapInvalidBpp(t *testing.T) {
	src := []byte{0x00, 0x00, 0x00, 0x00}

	result := ProcessBitmap(src, 2, 2, 12, true, 0)
	if result != nil {
		t.Error("ProcessBitmap should return nil for unsupported bpp")
	}
}

// TestProcessBitmapPlanar hands a planar-style format header byte to
// ProcessBitmap as compressed 32bpp data. ProcessBitmap has no planar
// decoder (that is DecompressPlanar), so the byte goes through the
// 32-bit RLE path.
func TestProcessBitmapPlanar(t *testing.T) {
	src := []byte{0x00}

	result := ProcessBitmap(src, 2, 2, 32, true, 0)
	// May fail decompression; must not panic
	_ = result
}

// TestProcessBitmapEmptySource tests with empty source
func TestProcessBitmapEmptySource(t *testing.T) {
	src := []byte{}

	result := ProcessBitmap(src, 2, 2, 24, false, 0)
	// Should handle gracefully
	if result == nil {
		t.Error("ProcessBitmap should handle empty source for uncompressed")
	}
}
