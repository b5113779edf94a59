package pdu

import (
	"encoding/binary"
	"fmt"
)

// Bitmap data flags (MS-RDPBCGR 2.2.9.1.1.3.1.2.2).
const (
	// BitmapFlagCompression BITMAP_COMPRESSION
	BitmapFlagCompression uint16 = 0x0001

	// BitmapFlagNoCompressionHdr NO_BITMAP_COMPRESSION_HDR
	BitmapFlagNoCompressionHdr uint16 = 0x0400
)

// updateTypeBitmap is the updateType field value of TS_UPDATE_BITMAP_DATA.
const updateTypeBitmap uint16 = 0x0001

// BitmapData is one TS_BITMAP_DATA rectangle (MS-RDPBCGR
// 2.2.9.1.1.3.1.2.2): destination rectangle (right/bottom inclusive),
// source dimensions, and the raw or interleaved-RLE pixel stream.
type BitmapData struct {
	DestLeft     uint16
	DestTop      uint16
	DestRight    uint16
	DestBottom   uint16
	Width        uint16
	Height       uint16
	BitsPerPixel uint16
	Compressed   bool
	BitmapData   []byte
}

// DecodeBitmapUpdateData parses a TS_UPDATE_BITMAP_DATA body (shared by
// the slow-path Update PDU and the Fast-Path bitmap update) into its
// rectangles. The optional TS_CD_HEADER preceding compressed streams is
// skipped: its row sizes are recomputed by the RLE decoder anyway.
func DecodeBitmapUpdateData(data []byte) ([]BitmapData, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("pdu: bitmap update data truncated")
	}
	updateType := binary.LittleEndian.Uint16(data[0:2])
	if updateType != updateTypeBitmap {
		return nil, fmt.Errorf("pdu: bitmap update type %#04x, want %#04x", updateType, updateTypeBitmap)
	}
	count := int(binary.LittleEndian.Uint16(data[2:4]))
	offset := 4

	rects := make([]BitmapData, 0, count)
	for i := 0; i < count; i++ {
		if offset+18 > len(data) {
			return nil, fmt.Errorf("pdu: bitmap data %d header truncated", i)
		}
		var r BitmapData
		r.DestLeft = binary.LittleEndian.Uint16(data[offset+0:])
		r.DestTop = binary.LittleEndian.Uint16(data[offset+2:])
		r.DestRight = binary.LittleEndian.Uint16(data[offset+4:])
		r.DestBottom = binary.LittleEndian.Uint16(data[offset+6:])
		r.Width = binary.LittleEndian.Uint16(data[offset+8:])
		r.Height = binary.LittleEndian.Uint16(data[offset+10:])
		r.BitsPerPixel = binary.LittleEndian.Uint16(data[offset+12:])
		flags := binary.LittleEndian.Uint16(data[offset+14:])
		bitmapLength := int(binary.LittleEndian.Uint16(data[offset+16:]))
		offset += 18

		if offset+bitmapLength > len(data) {
			return nil, fmt.Errorf("pdu: bitmap data %d stream truncated (want %d, have %d)", i, bitmapLength, len(data)-offset)
		}
		stream := data[offset : offset+bitmapLength]
		offset += bitmapLength

		r.Compressed = flags&BitmapFlagCompression != 0
		if r.Compressed && flags&BitmapFlagNoCompressionHdr == 0 {
			// TS_CD_HEADER: 8 bytes of redundant size fields.
			if len(stream) < 8 {
				return nil, fmt.Errorf("pdu: bitmap data %d compression header truncated", i)
			}
			stream = stream[8:]
		}
		r.BitmapData = stream

		rects = append(rects, r)
	}
	return rects, nil
}
