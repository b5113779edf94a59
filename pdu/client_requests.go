package pdu

import (
	"bytes"
	"encoding/binary"
)

// Client-to-server Share Data requests sent during the Active phase:
// Suppress Output, Refresh Rect, Shutdown Request and the slow-path
// Input Event PDU. These have no Deserialize pair -- the server never
// echoes them back.

const (
	// Type2RefreshRect PDUTYPE2_REFRESH_RECT
	Type2RefreshRect Type2 = 0x21

	// Type2SuppressOutput PDUTYPE2_SUPPRESS_OUTPUT
	Type2SuppressOutput Type2 = 0x23

	// Type2ShutdownRequest PDUTYPE2_SHUTDOWN_REQUEST
	Type2ShutdownRequest Type2 = 0x24
)

// InclusiveRectangle represents TS_RECTANGLE16 (MS-RDPBCGR 2.2.11.1),
// with right/bottom inclusive.
type InclusiveRectangle struct {
	Left   uint16
	Top    uint16
	Right  uint16
	Bottom uint16
}

// Serialize encodes the rectangle to wire format.
func (r InclusiveRectangle) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, r.Left)
	_ = binary.Write(buf, binary.LittleEndian, r.Top)
	_ = binary.Write(buf, binary.LittleEndian, r.Right)
	_ = binary.Write(buf, binary.LittleEndian, r.Bottom)

	return buf.Bytes()
}

// SuppressOutputPDUData represents the TS_SUPPRESS_OUTPUT_PDU structure
// (MS-RDPBCGR 2.2.11.3.1).
type SuppressOutputPDUData struct {
	AllowDisplayUpdates bool
	DesktopRect         InclusiveRectangle
}

// NewSuppressOutput creates a Suppress Output PDU. When allow is true
// the desktop rectangle names the region the client wants repainted.
func NewSuppressOutput(shareID uint32, userID uint16, allow bool, rect InclusiveRectangle) *Data {
	return &Data{
		ShareDataHeader: *newShareDataHeader(shareID, userID, TypeData, Type2SuppressOutput),
		SuppressOutputPDUData: &SuppressOutputPDUData{
			AllowDisplayUpdates: allow,
			DesktopRect:         rect,
		},
	}
}

// Serialize encodes the PDU data to wire format.
func (pdu *SuppressOutputPDUData) Serialize() []byte {
	buf := new(bytes.Buffer)

	allow := uint8(0) // ALLOW_DISPLAY_UPDATES absent
	if pdu.AllowDisplayUpdates {
		allow = 1
	}
	buf.WriteByte(allow)
	buf.Write([]byte{0, 0, 0}) // pad3Octets

	// desktopRect is present only when updates are re-enabled.
	if pdu.AllowDisplayUpdates {
		buf.Write(pdu.DesktopRect.Serialize())
	}

	return buf.Bytes()
}

// RefreshRectPDUData represents the TS_REFRESH_RECT_PDU structure
// (MS-RDPBCGR 2.2.11.2.1).
type RefreshRectPDUData struct {
	Areas []InclusiveRectangle
}

// NewRefreshRect creates a Refresh Rect PDU asking the server to
// repaint the given regions.
func NewRefreshRect(shareID uint32, userID uint16, areas []InclusiveRectangle) *Data {
	return &Data{
		ShareDataHeader:    *newShareDataHeader(shareID, userID, TypeData, Type2RefreshRect),
		RefreshRectPDUData: &RefreshRectPDUData{Areas: areas},
	}
}

// Serialize encodes the PDU data to wire format.
func (pdu *RefreshRectPDUData) Serialize() []byte {
	buf := new(bytes.Buffer)

	buf.WriteByte(uint8(len(pdu.Areas))) // #nosec G115
	buf.Write([]byte{0, 0, 0})           // pad3Octets

	for _, area := range pdu.Areas {
		buf.Write(area.Serialize())
	}

	return buf.Bytes()
}

// ShutdownRequestPDUData represents the TS_SHUTDOWN_REQ_PDU structure
// (MS-RDPBCGR 2.2.2.1); the body is empty.
type ShutdownRequestPDUData struct{}

// NewShutdownRequest creates a Shutdown Request PDU announcing the
// client wants to end the session.
func NewShutdownRequest(shareID uint32, userID uint16) *Data {
	return &Data{
		ShareDataHeader:        *newShareDataHeader(shareID, userID, TypeData, Type2ShutdownRequest),
		ShutdownRequestPDUData: &ShutdownRequestPDUData{},
	}
}

// Serialize encodes the PDU data to wire format.
func (pdu *ShutdownRequestPDUData) Serialize() []byte {
	return nil
}

// Slow-path input event message types (MS-RDPBCGR 2.2.8.1.1.3.1.1).
const (
	InputMessageTypeSync     uint16 = 0x0000
	InputMessageTypeScanCode uint16 = 0x0004
	InputMessageTypeUnicode  uint16 = 0x0005
	InputMessageTypeMouse    uint16 = 0x8001
	InputMessageTypeMouseX   uint16 = 0x8002
)

// SlowPathInputEvent represents one TS_INPUT_EVENT (MS-RDPBCGR
// 2.2.8.1.1.3.1.1): a fixed 12-byte slot regardless of message type.
type SlowPathInputEvent struct {
	EventTime   uint32
	MessageType uint16
	DeviceFlags uint16
	Param1      uint16
	Param2      uint16
}

// Serialize encodes the input event to wire format.
func (e SlowPathInputEvent) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, e.EventTime)
	_ = binary.Write(buf, binary.LittleEndian, e.MessageType)
	_ = binary.Write(buf, binary.LittleEndian, e.DeviceFlags)
	_ = binary.Write(buf, binary.LittleEndian, e.Param1)
	_ = binary.Write(buf, binary.LittleEndian, e.Param2)

	return buf.Bytes()
}

// InputEventPDUData represents the TS_INPUT_PDU_DATA structure
// (MS-RDPBCGR 2.2.8.1.1.3.1): the slow-path input path used when the
// server's Input Capability Set does not advertise fast-path input.
type InputEventPDUData struct {
	Events []SlowPathInputEvent
}

// NewInputEventPDU creates a slow-path Input Event PDU.
func NewInputEventPDU(shareID uint32, userID uint16, events []SlowPathInputEvent) *Data {
	return &Data{
		ShareDataHeader:   *newShareDataHeader(shareID, userID, TypeData, Type2Input),
		InputEventPDUData: &InputEventPDUData{Events: events},
	}
}

// Serialize encodes the PDU data to wire format.
func (pdu *InputEventPDUData) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, uint16(len(pdu.Events))) // #nosec G115
	_ = binary.Write(buf, binary.LittleEndian, uint16(0))               // pad2Octets

	for _, e := range pdu.Events {
		buf.Write(e.Serialize())
	}

	return buf.Bytes()
}
