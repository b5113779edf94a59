package pdu

import (
	"encoding/binary"
	"fmt"
)

// FastPathUpdateCode identifies the kind of a TS_FP_UPDATE entry
// (MS-RDPBCGR 2.2.9.1.2.1, the low 4 bits of fpOutputHeader).
type FastPathUpdateCode uint8

const (
	FastPathUpdateOrders      FastPathUpdateCode = 0x0
	FastPathUpdateBitmap      FastPathUpdateCode = 0x1
	FastPathUpdatePalette     FastPathUpdateCode = 0x2
	FastPathUpdateSynchronize FastPathUpdateCode = 0x3
	FastPathUpdateSurfCmds    FastPathUpdateCode = 0x4
	FastPathUpdatePtrNull     FastPathUpdateCode = 0x5
	FastPathUpdatePtrDefault  FastPathUpdateCode = 0x6
	FastPathUpdatePtrPosition FastPathUpdateCode = 0x8
	FastPathUpdateColor       FastPathUpdateCode = 0x9
	FastPathUpdateCached      FastPathUpdateCode = 0xA
	FastPathUpdatePointer     FastPathUpdateCode = 0xB
)

// FastPathFragmentation is the 2-bit fragmentation field of
// fpOutputHeader: an update whose data exceeds one Fast-Path PDU's
// worth of bytes is split FIRST/NEXT.../LAST across several TS_FP_UPDATE
// entries (possibly across several Fast-Path PDUs); SINGLE means the
// whole update fit in one entry.
type FastPathFragmentation uint8

const (
	FragSingle FastPathFragmentation = 0
	FragLast   FastPathFragmentation = 1
	FragFirst  FastPathFragmentation = 2
	FragNext   FastPathFragmentation = 3
)

// fpOutputCompressionUsed is the compression bit of fpOutputHeader's
// high 2 bits (MS-RDPBCGR 2.2.9.1.2.1); when set a compressionFlags
// byte follows the header and Data is compressed per the session's
// negotiated bulk compressor.
const fpOutputCompressionUsed = 0x2

// packetCompressed is the PACKET_COMPRESSED bit of a compressionFlags
// byte (MS-RDPBCGR 3.1.8.2.1): only when set is the entry's data
// actually run through the bulk compressor.
const packetCompressed = 0x20

// FastPathUpdate is one TS_FP_UPDATE entry with its outer header
// already stripped; Data is still compressed when Compressed is true.
type FastPathUpdate struct {
	Code          FastPathUpdateCode
	Fragmentation FastPathFragmentation
	Compressed    bool
	CompType      uint8 // low 4 bits of compressionFlags, valid when Compressed
	Data          []byte
}

// DecodeFastPathUpdates splits a Fast-Path output PDU's payload (the
// bytes framing.NextFrame already stripped the outer fast-path header
// from) into its sequence of TS_FP_UPDATE entries.
func DecodeFastPathUpdates(payload []byte) ([]FastPathUpdate, error) {
	var updates []FastPathUpdate
	offset := 0
	for offset < len(payload) {
		if offset+1 > len(payload) {
			return nil, fmt.Errorf("pdu: fast-path update header truncated")
		}
		header := payload[offset]
		offset++

		code := FastPathUpdateCode(header & 0x0F)
		frag := FastPathFragmentation((header >> 4) & 0x03)
		compFlagsBits := (header >> 6) & 0x03

		compressed := false
		var compType uint8
		if compFlagsBits&fpOutputCompressionUsed != 0 {
			if offset+1 > len(payload) {
				return nil, fmt.Errorf("pdu: fast-path update compression flags truncated")
			}
			compressionFlags := payload[offset]
			offset++
			compressed = compressionFlags&packetCompressed != 0
			compType = compressionFlags & 0x0F
		}

		if offset+2 > len(payload) {
			return nil, fmt.Errorf("pdu: fast-path update size truncated")
		}
		size := int(binary.LittleEndian.Uint16(payload[offset : offset+2]))
		offset += 2

		if offset+size > len(payload) {
			return nil, fmt.Errorf("pdu: fast-path update data truncated (want %d, have %d)", size, len(payload)-offset)
		}
		updates = append(updates, FastPathUpdate{
			Code:          code,
			Fragmentation: frag,
			Compressed:    compressed,
			CompType:      compType,
			Data:          payload[offset : offset+size],
		})
		offset += size
	}
	return updates, nil
}
