// Package cliprdr implements the Clipboard Virtual Channel Extension
// (MS-RDPECLIP) wire format: the CLIPRDR_HEADER-framed PDU set
// exchanged over the static "cliprdr" channel.
package cliprdr

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ChannelName is the static virtual channel name MS-RDPECLIP reserves.
const ChannelName = "cliprdr"

// Message types (MS-RDPECLIP 2.2.1, msgType field of CLIPRDR_HEADER).
const (
	MsgMonitorReady        uint16 = 0x0001
	MsgFormatList          uint16 = 0x0002
	MsgFormatListResponse  uint16 = 0x0003
	MsgFormatDataRequest   uint16 = 0x0004
	MsgFormatDataResponse  uint16 = 0x0005
	MsgTempDirectory       uint16 = 0x0006
	MsgClipCaps            uint16 = 0x0007
	MsgFileContentsRequest uint16 = 0x0008
	MsgFileContentsResponse uint16 = 0x0009
	MsgLockClipData        uint16 = 0x000A
	MsgUnlockClipData      uint16 = 0x000B
)

// Response flags (MS-RDPECLIP 2.2.1, msgFlags field).
const (
	ResponseOK   uint16 = 0x0001
	ResponseFail uint16 = 0x0002
)

// Well-known clipboard format ids (MS-RDPECLIP 2.2.3.1.1 references
// the Windows standard clipboard formats).
const (
	FormatTextCF1     uint32 = 1 // CF_TEXT
	FormatUnicodeText uint32 = 13 // CF_UNICODETEXT
)

// Header is CLIPRDR_HEADER (MS-RDPECLIP 2.2.1): every PDU's common prefix.
type Header struct {
	MsgType  uint16
	MsgFlags uint16
	DataLen  uint32
}

func (h *Header) Serialize() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:2], h.MsgType)
	binary.LittleEndian.PutUint16(buf[2:4], h.MsgFlags)
	binary.LittleEndian.PutUint32(buf[4:8], h.DataLen)
	return buf
}

// ParseHeader decodes the 8-byte CLIPRDR_HEADER prefix off data.
func ParseHeader(data []byte) (Header, []byte, error) {
	if len(data) < 8 {
		return Header{}, nil, fmt.Errorf("cliprdr: header truncated")
	}
	h := Header{
		MsgType:  binary.LittleEndian.Uint16(data[0:2]),
		MsgFlags: binary.LittleEndian.Uint16(data[2:4]),
		DataLen:  binary.LittleEndian.Uint32(data[4:8]),
	}
	body := data[8:]
	if uint32(len(body)) > h.DataLen { // #nosec G115
		body = body[:h.DataLen]
	}
	return h, body, nil
}

func buildPDU(msgType, msgFlags uint16, body []byte) []byte {
	h := Header{MsgType: msgType, MsgFlags: msgFlags, DataLen: uint32(len(body))} // #nosec G115
	return append(h.Serialize(), body...)
}

// GeneralCapabilitySet is CLIPRDR_GENERAL_CAPABILITY (MS-RDPECLIP
// 2.2.2.1.1), the one capability set this core negotiates.
type GeneralCapabilitySet struct {
	Version uint32
	Flags   uint32
}

// General capability flags (MS-RDPECLIP 2.2.2.1.1).
const (
	CapsUseLongFormatNames  uint32 = 0x00000002
	CapsStreamFileClipEnabled uint32 = 0x00000004
	CapsFileClipNoFilePaths   uint32 = 0x00000008
	CapsCanLockClipData       uint32 = 0x00000010
)

// BuildClipCaps builds the client's CB_CLIP_CAPS PDU carrying a single
// General Capability Set.
func BuildClipCaps(set GeneralCapabilitySet) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // cCapabilitiesSets
	_ = binary.Write(buf, binary.LittleEndian, uint16(0)) // pad1
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // capabilitySetType = GENERAL
	_ = binary.Write(buf, binary.LittleEndian, uint16(12)) // lengthCapability
	_ = binary.Write(buf, binary.LittleEndian, set.Version)
	_ = binary.Write(buf, binary.LittleEndian, set.Flags)
	return buildPDU(MsgClipCaps, 0, buf.Bytes())
}

// ShortFormat is one CLIPRDR_SHORT_FORMAT_NAME entry (MS-RDPECLIP
// 2.2.3.1.1.1): the short form used when CapsUseLongFormatNames was
// not negotiated, a fixed 32-byte UTF-16 name field.
type ShortFormat struct {
	FormatID uint32
	Name     string
}

const shortFormatNameBytes = 32

// BuildFormatList builds a CB_FORMAT_LIST PDU announcing formats in
// the short-format-name layout.
func BuildFormatList(formats []ShortFormat) []byte {
	buf := new(bytes.Buffer)
	for _, f := range formats {
		_ = binary.Write(buf, binary.LittleEndian, f.FormatID)
		name := utf16LE(f.Name)
		if len(name) > shortFormatNameBytes {
			name = name[:shortFormatNameBytes]
		}
		buf.Write(name)
		buf.Write(make([]byte, shortFormatNameBytes-len(name)))
	}
	return buildPDU(MsgFormatList, 0, buf.Bytes())
}

// BuildFormatListResponse builds a CB_FORMAT_LIST_RESPONSE acking (or
// NAKing) the peer's Format List.
func BuildFormatListResponse(ok bool) []byte {
	flags := ResponseFail
	if ok {
		flags = ResponseOK
	}
	return buildPDU(MsgFormatListResponse, flags, nil)
}

// BuildFormatDataRequest builds a CB_FORMAT_DATA_REQUEST for formatID.
func BuildFormatDataRequest(formatID uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, formatID)
	return buildPDU(MsgFormatDataRequest, 0, buf)
}

// BuildFormatDataResponse builds a CB_FORMAT_DATA_RESPONSE; ok selects
// the success/failure flag, data is the raw clipboard payload (already
// in the requested format's wire representation) when ok is true.
func BuildFormatDataResponse(ok bool, data []byte) []byte {
	flags := ResponseFail
	if ok {
		flags = ResponseOK
	}
	return buildPDU(MsgFormatDataResponse, flags, data)
}

// utf16LE encodes s as null-padded little-endian UTF-16, including a
// trailing NUL code unit (MS-RDPECLIP short format names are always
// NUL-terminated within their 32-byte field).
func utf16LE(s string) []byte {
	out := make([]byte, 0, 2*(len(s)+1))
	for _, r := range s {
		if r > 0xFFFF { // outside the BMP: not used by any format name here
			r = '?'
		}
		out = append(out, byte(r), byte(r>>8))
	}
	return append(out, 0, 0)
}
