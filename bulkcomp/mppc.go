// Package bulkcomp implements the bulk compression codecs RDP
// negotiates over Client Info's compression bits and the Demand Active
// capability: MPPC (the RDP-standard LZ77+Huffman
// variant) and the NCRUSH/XCRUSH "advanced" codecs used by newer
// servers. Every decoder is a pure function from compressed bytes plus
// a history dictionary to plain bytes plus an updated history -- pure
// transforms over byte slices with an explicit context struct, no
// owned I/O.
package bulkcomp

import (
	"errors"
	"fmt"
)

// Type identifies which bulk compressor a PDU's compression-type flag
// (MS-RDPBCGR 2.2.9.1.1.3.1.2.1 `bulkCompressionType` / `CompressionTypeMask`)
// selects.
type Type uint8

const (
	// TypeMPPC8K is PACKET_COMPR_TYPE_8K (RFC 2118 MPPC, 8KB history).
	TypeMPPC8K Type = 0
	// TypeMPPC64K is PACKET_COMPR_TYPE_64K (MPPC, 64KB history).
	TypeMPPC64K Type = 1
	// TypeNCRUSH is PACKET_COMPR_TYPE_RDP6 (NCrush).
	TypeNCRUSH Type = 2
	// TypeXCRUSH is PACKET_COMPR_TYPE_RDP61 (XCrush), the largest
	// sliding window.
	TypeXCRUSH Type = 3
	// TypeNone means compression was not negotiated. It has no wire
	// value of its own: whether any given packet is compressed is
	// signalled per packet, the PACKET_COMPR_TYPE bits only name the
	// codec.
	TypeNone Type = 0x0F
)

const (
	mppc8KHistorySize  = 8 * 1024
	mppc64KHistorySize = 64 * 1024
	xcrushHistorySize  = 2000000 // MS-RDPEGDI 3.1.8.2.2
)

// History is the sliding-window dictionary a decoder reads match
// back-references against. It is reset when the server signals
// PACKET_FLUSHED and grows (append + truncate to capacity) on every
// decompress call, regardless of compressor type, which is what makes
// it safe to share one History across a MPPC-to-NCRUSH/XCRUSH upgrade
// mid-session, not that this core ever attempts that.
type History struct {
	buf []byte
	cap int
}

// NewHistory creates a History with the given capacity (use
// HistoryCapacity(Type) for the capacity a given Type expects).
func NewHistory(capacity int) *History {
	return &History{cap: capacity}
}

// HistoryCapacity returns the sliding-window size a Type's decoder
// expects its History to be bounded to.
func HistoryCapacity(t Type) int {
	switch t {
	case TypeMPPC8K:
		return mppc8KHistorySize
	case TypeMPPC64K, TypeNCRUSH:
		return mppc64KHistorySize
	case TypeXCRUSH:
		return xcrushHistorySize
	default:
		return mppc64KHistorySize
	}
}

// Reset clears the history (PACKET_FLUSHED).
func (h *History) Reset() { h.buf = h.buf[:0] }

func (h *History) append(data []byte) {
	h.buf = append(h.buf, data...)
	if len(h.buf) > h.cap {
		h.buf = h.buf[len(h.buf)-h.cap:]
	}
}

var (
	// ErrTruncated is returned when a match/literal runs off the end of
	// the compressed stream before a complete token is decoded.
	ErrTruncated = errors.New("bulkcomp: truncated compressed stream")
	// ErrBadBackReference is returned when a decoded match's offset
	// points further back than the history actually holds.
	ErrBadBackReference = errors.New("bulkcomp: back-reference exceeds history")
)

// bitReader walks a byte slice MSB-first, the bit order MPPC/NCRUSH/
// XCRUSH all encode their Huffman-coded literal/match tokens in.
type bitReader struct {
	data []byte
	pos  int // bit position
}

func (r *bitReader) bitsLeft() int { return len(r.data)*8 - r.pos }

func (r *bitReader) readBit() (int, error) {
	if r.bitsLeft() < 1 {
		return 0, ErrTruncated
	}
	byteIdx := r.pos / 8
	bitIdx := 7 - uint(r.pos%8)
	bit := int((r.data[byteIdx] >> bitIdx) & 1)
	r.pos++
	return bit, nil
}

func (r *bitReader) readBits(n int) (uint32, error) {
	var v uint32
	for i := 0; i < n; i++ {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		v = (v << 1) | uint32(bit)
	}
	return v, nil
}

// DecompressMPPC decodes a MPPC (RFC 2118-derived, MS-RDPBCGR 3.1.8.4.1)
// stream against history, returning the plaintext and the updated
// history. MPPC encodes a mix of literal bytes (Huffman-coded against
// a fixed table keyed by byte value) and copy tokens (Huffman-coded
// length, then an offset field whose width depends on the length
// class) back into the sliding window.
func DecompressMPPC(compressed []byte, history *History) ([]byte, error) {
	br := &bitReader{data: compressed}
	var out []byte

	// Every token is at least 8 bits long, so fewer than 8 remaining
	// bits can only be the zero padding of the final byte.
	for br.bitsLeft() >= 8 {
		isMatch, err := br.readBit()
		if err != nil {
			break
		}
		if isMatch == 0 {
			lit, err := decodeMPPCLiteral(br)
			if err != nil {
				return nil, fmt.Errorf("bulkcomp: mppc literal: %w", err)
			}
			out = append(out, lit)
			continue
		}

		length, err := decodeMPPCLength(br)
		if err != nil {
			return nil, fmt.Errorf("bulkcomp: mppc length: %w", err)
		}
		offset, err := decodeMPPCOffset(br, length)
		if err != nil {
			return nil, fmt.Errorf("bulkcomp: mppc offset: %w", err)
		}

		if offset <= 0 || offset > len(history.buf)+len(out) {
			return nil, ErrBadBackReference
		}
		for i := 0; i < length; i++ {
			srcIdx := len(history.buf) + len(out) - offset
			if srcIdx < len(history.buf) {
				out = append(out, history.buf[srcIdx])
			} else {
				out = append(out, out[srcIdx-len(history.buf)])
			}
		}
	}

	history.append(out)
	return out, nil
}

// decodeMPPCLiteral reads one byte encoded against MPPC's fixed
// literal Huffman table (MS-RDPBCGR 3.1.8.4.1's table splits the byte
// space into three prefix-coded ranges).
func decodeMPPCLiteral(br *bitReader) (byte, error) {
	bit, err := br.readBit()
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		v, err := br.readBits(7)
		return byte(v), err
	}
	bit2, err := br.readBit()
	if err != nil {
		return 0, err
	}
	if bit2 == 0 {
		v, err := br.readBits(7)
		if err != nil {
			return 0, err
		}
		return byte(v + 0x80), nil
	}
	v, err := br.readBits(8)
	return byte(v), err
}

// mppcLengthPrefixBits and decodeMPPCLength implement the length
// Huffman table: a short unary-ish prefix selects a base value and a
// count of extra literal bits to add to it.
var mppcLengthPrefixBits = []int{0, 1, 2, 3, 4, 5, 6, 7, 8}

func decodeMPPCLength(br *bitReader) (int, error) {
	prefixLen := 0
	for prefixLen < len(mppcLengthPrefixBits) {
		bit, err := br.readBit()
		if err != nil {
			return 0, err
		}
		if bit == 0 {
			break
		}
		prefixLen++
	}
	if prefixLen == 0 {
		return 3, nil
	}
	extra, err := br.readBits(prefixLen)
	if err != nil {
		return 0, err
	}
	base := 3
	for i := 0; i < prefixLen; i++ {
		base += 1 << uint(i)
	}
	return base + int(extra), nil
}

// decodeMPPCOffset reads an offset field whose bit width is chosen by
// length class, per MS-RDPBCGR 3.1.8.4.1's variable-width offset
// encoding (short matches get narrower offsets).
func decodeMPPCOffset(br *bitReader, length int) (int, error) {
	width := 6
	switch {
	case length > 63:
		width = 16
	case length > 31:
		width = 14
	case length > 15:
		width = 12
	case length > 7:
		width = 10
	case length > 3:
		width = 8
	}
	v, err := br.readBits(width)
	if err != nil {
		return 0, err
	}
	return int(v) + 1, nil
}
