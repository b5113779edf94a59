package pdu

import (
	"encoding/binary"
	"fmt"
)

// Surface command types (MS-RDPBCGR 2.2.9.1.2.1.1 surfaceCommands field).
const (
	CmdTypeSetSurfaceBits    uint16 = 0x0001
	CmdTypeFrameMarker       uint16 = 0x0004
	CmdTypeStreamSurfaceBits uint16 = 0x0006
)

// Frame marker actions (MS-RDPBCGR 2.2.9.1.2.1.2).
const (
	FrameActionBegin uint16 = 0x0000
	FrameActionEnd   uint16 = 0x0001
)

// SurfaceCommand is one decoded TS_SURFCMD entry (cmdType plus its
// body, still undecoded: SetSurfaceBits and FrameMarker bodies are
// further decoded by DecodeSetSurfaceBits/DecodeFrameMarker).
type SurfaceCommand struct {
	CmdType uint16
	Body    []byte
}

// DecodeSurfaceCommands splits a FASTPATH_UPDATETYPE_SURFCMDS update's
// data into its sequence of TS_SURFCMD entries, with a hard error on
// truncation: a decoder handing parsed commands to the graphics
// pipeline cannot tolerate a partial frame.
func DecodeSurfaceCommands(data []byte) ([]SurfaceCommand, error) {
	var cmds []SurfaceCommand
	offset := 0
	for offset < len(data) {
		if offset+2 > len(data) {
			return nil, fmt.Errorf("pdu: surface command header truncated")
		}
		cmdType := binary.LittleEndian.Uint16(data[offset:])
		offset += 2

		switch cmdType {
		case CmdTypeSetSurfaceBits, CmdTypeStreamSurfaceBits:
			if offset+20 > len(data) {
				return nil, fmt.Errorf("pdu: set surface bits header truncated")
			}
			bitmapDataLength := int(binary.LittleEndian.Uint32(data[offset+16 : offset+20]))
			size := 20 + bitmapDataLength
			if offset+size > len(data) {
				return nil, fmt.Errorf("pdu: set surface bits data truncated")
			}
			cmds = append(cmds, SurfaceCommand{CmdType: cmdType, Body: data[offset : offset+size]})
			offset += size

		case CmdTypeFrameMarker:
			if offset+6 > len(data) {
				return nil, fmt.Errorf("pdu: frame marker truncated")
			}
			cmds = append(cmds, SurfaceCommand{CmdType: cmdType, Body: data[offset : offset+6]})
			offset += 6

		default:
			return nil, fmt.Errorf("pdu: unknown surface command type %#x", cmdType)
		}
	}
	return cmds, nil
}

// SetSurfaceBitsCommand is TS_SURFCMD_SET_SURF_BITS (MS-RDPBCGR
// 2.2.9.1.2.1.2): a codec-encoded rectangle of pixels plus its
// destination.
type SetSurfaceBitsCommand struct {
	DestLeft, DestTop, DestRight, DestBottom uint16
	BPP                                      uint8
	Flags                                    uint8
	CodecID                                  uint8
	Width, Height                            uint16
	BitmapData                               []byte
}

// DecodeSetSurfaceBits decodes a SetSurfaceBits/StreamSurfaceBits
// command body (the bytes after the 2-byte cmdType).
func DecodeSetSurfaceBits(body []byte) (SetSurfaceBitsCommand, error) {
	if len(body) < 20 {
		return SetSurfaceBitsCommand{}, fmt.Errorf("pdu: set surface bits command truncated")
	}
	cmd := SetSurfaceBitsCommand{
		DestLeft:   binary.LittleEndian.Uint16(body[0:2]),
		DestTop:    binary.LittleEndian.Uint16(body[2:4]),
		DestRight:  binary.LittleEndian.Uint16(body[4:6]),
		DestBottom: binary.LittleEndian.Uint16(body[6:8]),
		BPP:        body[8],
		Flags:      body[9],
		CodecID:    body[11],
		Width:      binary.LittleEndian.Uint16(body[12:14]),
		Height:     binary.LittleEndian.Uint16(body[14:16]),
	}
	bitmapDataLength := int(binary.LittleEndian.Uint32(body[16:20]))
	if len(body) < 20+bitmapDataLength {
		return SetSurfaceBitsCommand{}, fmt.Errorf("pdu: set surface bits data truncated")
	}
	cmd.BitmapData = body[20 : 20+bitmapDataLength]
	return cmd, nil
}

// FrameMarkerCommand is TS_FRAME_MARKER (MS-RDPBCGR 2.2.9.1.2.1.3):
// brackets a consistent set of surface updates the decoder must
// coalesce before reporting a dirty region.
type FrameMarkerCommand struct {
	Action  uint16
	FrameID uint32
}

// DecodeFrameMarker decodes a FrameMarker command body.
func DecodeFrameMarker(body []byte) (FrameMarkerCommand, error) {
	if len(body) < 6 {
		return FrameMarkerCommand{}, fmt.Errorf("pdu: frame marker command truncated")
	}
	return FrameMarkerCommand{
		Action:  binary.LittleEndian.Uint16(body[0:2]),
		FrameID: binary.LittleEndian.Uint32(body[2:6]),
	}, nil
}
