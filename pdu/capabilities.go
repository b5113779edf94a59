package pdu

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// CapabilitySetType identifies the payload carried by a TS_CAPS_SET entry
// (MS-RDPBCGR 2.2.1.13.1.1.1, capabilitySetType field).
type CapabilitySetType uint16

const (
	CapabilitySetTypeGeneral              CapabilitySetType = 0x0001
	CapabilitySetTypeBitmap               CapabilitySetType = 0x0002
	CapabilitySetTypeOrder                CapabilitySetType = 0x0003
	CapabilitySetTypeBitmapCache          CapabilitySetType = 0x0004
	CapabilitySetTypeControl              CapabilitySetType = 0x0005
	CapabilitySetTypeActivation           CapabilitySetType = 0x0007
	CapabilitySetTypePointer              CapabilitySetType = 0x0008
	CapabilitySetTypeShare                CapabilitySetType = 0x0009
	CapabilitySetTypeColorCache           CapabilitySetType = 0x000A
	CapabilitySetTypeSound                CapabilitySetType = 0x000C
	CapabilitySetTypeInput                CapabilitySetType = 0x000D
	CapabilitySetTypeFont                 CapabilitySetType = 0x000E
	CapabilitySetTypeBrush                CapabilitySetType = 0x000F
	CapabilitySetTypeGlyphCache           CapabilitySetType = 0x0010
	CapabilitySetTypeOffscreenBitmapCache CapabilitySetType = 0x0011
	CapabilitySetTypeBitmapCacheHostSupport CapabilitySetType = 0x0012
	CapabilitySetTypeBitmapCacheRev2      CapabilitySetType = 0x0013
	CapabilitySetTypeVirtualChannel       CapabilitySetType = 0x0014
	CapabilitySetTypeDrawNineGridCache    CapabilitySetType = 0x0015
	CapabilitySetTypeDrawGDIPlus          CapabilitySetType = 0x0016
	CapabilitySetTypeRail                 CapabilitySetType = 0x0017
	CapabilitySetTypeWindow               CapabilitySetType = 0x0018
	CapabilitySetTypeCompDesk             CapabilitySetType = 0x0019
	CapabilitySetTypeMultifragmentUpdate  CapabilitySetType = 0x001A
	CapabilitySetTypeLargePointer         CapabilitySetType = 0x001B
	CapabilitySetTypeSurfaceCommands      CapabilitySetType = 0x001C
	CapabilitySetTypeBitmapCodecs         CapabilitySetType = 0x001D
	CapabilitySetTypeFrameAcknowledge     CapabilitySetType = 0x001E
)

// CapabilitySet is one TS_CAPS_SET entry (MS-RDPBCGR 2.2.1.13.1.1.1): a
// 4-byte capabilitySetType/lengthCapability header followed by a
// type-specific body. Exactly one of the pointer fields below is
// populated at a time, selected by CapabilitySetType.
type CapabilitySet struct {
	CapabilitySetType CapabilitySetType

	GeneralCapabilitySet                *GeneralCapabilitySet
	BitmapCapabilitySet                 *BitmapCapabilitySet
	OrderCapabilitySet                  *OrderCapabilitySet
	BitmapCacheCapabilitySetRev1        *BitmapCacheCapabilitySetRev1
	ControlCapabilitySet                *ControlCapabilitySet
	WindowActivationCapabilitySet       *WindowActivationCapabilitySet
	PointerCapabilitySet                *PointerCapabilitySet
	ShareCapabilitySet                  *ShareCapabilitySet
	ColorCacheCapabilitySet             *ColorCacheCapabilitySet
	SoundCapabilitySet                  *SoundCapabilitySet
	InputCapabilitySet                  *InputCapabilitySet
	FontCapabilitySet                   *FontCapabilitySet
	BrushCapabilitySet                  *BrushCapabilitySet
	GlyphCacheCapabilitySet             *GlyphCacheCapabilitySet
	OffscreenBitmapCacheCapabilitySet   *OffscreenBitmapCacheCapabilitySet
	BitmapCacheHostSupportCapabilitySet *BitmapCacheHostSupportCapabilitySet
	BitmapCacheCapabilitySetRev2        *BitmapCacheCapabilitySetRev2
	VirtualChannelCapabilitySet         *VirtualChannelCapabilitySet
	DrawNineGridCacheCapabilitySet      *DrawNineGridCacheCapabilitySet
	DrawGDIPlusCapabilitySet            *DrawGDIPlusCapabilitySet
	RailCapabilitySet                   *RailCapabilitySet
	WindowListCapabilitySet             *WindowListCapabilitySet
	DesktopCompositionCapabilitySet     *DesktopCompositionCapabilitySet
	MultifragmentUpdateCapabilitySet    *MultifragmentUpdateCapabilitySet
	LargePointerCapabilitySet           *LargePointerCapabilitySet
	SurfaceCommandsCapabilitySet        *SurfaceCommandsCapabilitySet
	BitmapCodecsCapabilitySet           *BitmapCodecsCapabilitySet
	FrameAcknowledgeCapabilitySet       *FrameAcknowledgeCapabilitySet
}

func (s *CapabilitySet) body() []byte {
	switch {
	case s.GeneralCapabilitySet != nil:
		return s.GeneralCapabilitySet.Serialize()
	case s.BitmapCapabilitySet != nil:
		return s.BitmapCapabilitySet.Serialize()
	case s.OrderCapabilitySet != nil:
		return s.OrderCapabilitySet.Serialize()
	case s.BitmapCacheCapabilitySetRev1 != nil:
		return s.BitmapCacheCapabilitySetRev1.Serialize()
	case s.ControlCapabilitySet != nil:
		return s.ControlCapabilitySet.Serialize()
	case s.WindowActivationCapabilitySet != nil:
		return s.WindowActivationCapabilitySet.Serialize()
	case s.PointerCapabilitySet != nil:
		return s.PointerCapabilitySet.Serialize()
	case s.ShareCapabilitySet != nil:
		return s.ShareCapabilitySet.Serialize()
	case s.ColorCacheCapabilitySet != nil:
		return s.ColorCacheCapabilitySet.Serialize()
	case s.SoundCapabilitySet != nil:
		return s.SoundCapabilitySet.Serialize()
	case s.InputCapabilitySet != nil:
		return s.InputCapabilitySet.Serialize()
	case s.FontCapabilitySet != nil:
		return s.FontCapabilitySet.Serialize()
	case s.BrushCapabilitySet != nil:
		return s.BrushCapabilitySet.Serialize()
	case s.GlyphCacheCapabilitySet != nil:
		return s.GlyphCacheCapabilitySet.Serialize()
	case s.OffscreenBitmapCacheCapabilitySet != nil:
		return s.OffscreenBitmapCacheCapabilitySet.Serialize()
	case s.BitmapCacheCapabilitySetRev2 != nil:
		return s.BitmapCacheCapabilitySetRev2.Serialize()
	case s.VirtualChannelCapabilitySet != nil:
		return s.VirtualChannelCapabilitySet.Serialize()
	case s.DrawNineGridCacheCapabilitySet != nil:
		return s.DrawNineGridCacheCapabilitySet.Serialize()
	case s.DrawGDIPlusCapabilitySet != nil:
		return s.DrawGDIPlusCapabilitySet.Serialize()
	case s.RailCapabilitySet != nil:
		return s.RailCapabilitySet.Serialize()
	case s.WindowListCapabilitySet != nil:
		return s.WindowListCapabilitySet.Serialize()
	case s.MultifragmentUpdateCapabilitySet != nil:
		return s.MultifragmentUpdateCapabilitySet.Serialize()
	case s.SurfaceCommandsCapabilitySet != nil:
		return s.SurfaceCommandsCapabilitySet.Serialize()
	case s.BitmapCodecsCapabilitySet != nil:
		return s.BitmapCodecsCapabilitySet.Serialize()
	case s.FrameAcknowledgeCapabilitySet != nil:
		return s.FrameAcknowledgeCapabilitySet.Serialize()
	default:
		return nil
	}
}

// Serialize encodes the TS_CAPS_SET header and body to wire format.
func (s *CapabilitySet) Serialize() []byte {
	body := s.body()

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, uint16(s.CapabilitySetType))
	_ = binary.Write(buf, binary.LittleEndian, uint16(4+len(body))) // #nosec G115
	buf.Write(body)

	return buf.Bytes()
}

// Deserialize decodes one TS_CAPS_SET entry, dispatching on its
// capabilitySetType. Unrecognized types are accepted with their body
// skipped, since a server is free to advertise capability sets a
// client does not implement.
func (s *CapabilitySet) Deserialize(wire io.Reader) error {
	var capType, lengthCapability uint16
	if err := binary.Read(wire, binary.LittleEndian, &capType); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &lengthCapability); err != nil {
		return err
	}
	if lengthCapability < 4 {
		return fmt.Errorf("pdu: capability set length %d shorter than header", lengthCapability)
	}
	s.CapabilitySetType = CapabilitySetType(capType)
	body := io.LimitReader(wire, int64(lengthCapability-4))

	switch s.CapabilitySetType {
	case CapabilitySetTypeGeneral:
		s.GeneralCapabilitySet = &GeneralCapabilitySet{}
		return s.GeneralCapabilitySet.Deserialize(body)
	case CapabilitySetTypeBitmap:
		s.BitmapCapabilitySet = &BitmapCapabilitySet{}
		return s.BitmapCapabilitySet.Deserialize(body)
	case CapabilitySetTypeOrder:
		s.OrderCapabilitySet = &OrderCapabilitySet{}
		return s.OrderCapabilitySet.Deserialize(body)
	case CapabilitySetTypeBitmapCache:
		s.BitmapCacheCapabilitySetRev1 = &BitmapCacheCapabilitySetRev1{}
		return s.BitmapCacheCapabilitySetRev1.Deserialize(body)
	case CapabilitySetTypeControl:
		s.ControlCapabilitySet = &ControlCapabilitySet{}
		return s.ControlCapabilitySet.Deserialize(body)
	case CapabilitySetTypeActivation:
		s.WindowActivationCapabilitySet = &WindowActivationCapabilitySet{}
		return s.WindowActivationCapabilitySet.Deserialize(body)
	case CapabilitySetTypePointer:
		s.PointerCapabilitySet = &PointerCapabilitySet{lengthCapability: lengthCapability}
		return s.PointerCapabilitySet.Deserialize(body)
	case CapabilitySetTypeShare:
		s.ShareCapabilitySet = &ShareCapabilitySet{}
		return s.ShareCapabilitySet.Deserialize(body)
	case CapabilitySetTypeColorCache:
		s.ColorCacheCapabilitySet = &ColorCacheCapabilitySet{}
		return s.ColorCacheCapabilitySet.Deserialize(body)
	case CapabilitySetTypeSound:
		s.SoundCapabilitySet = &SoundCapabilitySet{}
		return s.SoundCapabilitySet.Deserialize(body)
	case CapabilitySetTypeInput:
		s.InputCapabilitySet = &InputCapabilitySet{}
		return s.InputCapabilitySet.Deserialize(body)
	case CapabilitySetTypeFont:
		s.FontCapabilitySet = &FontCapabilitySet{}
		return s.FontCapabilitySet.Deserialize(body)
	case CapabilitySetTypeBrush:
		s.BrushCapabilitySet = &BrushCapabilitySet{}
		return s.BrushCapabilitySet.Deserialize(body)
	case CapabilitySetTypeGlyphCache:
		s.GlyphCacheCapabilitySet = &GlyphCacheCapabilitySet{}
		return s.GlyphCacheCapabilitySet.Deserialize(body)
	case CapabilitySetTypeOffscreenBitmapCache:
		s.OffscreenBitmapCacheCapabilitySet = &OffscreenBitmapCacheCapabilitySet{}
		return s.OffscreenBitmapCacheCapabilitySet.Deserialize(body)
	case CapabilitySetTypeBitmapCacheHostSupport:
		s.BitmapCacheHostSupportCapabilitySet = &BitmapCacheHostSupportCapabilitySet{}
		return s.BitmapCacheHostSupportCapabilitySet.Deserialize(body)
	case CapabilitySetTypeBitmapCacheRev2:
		s.BitmapCacheCapabilitySetRev2 = &BitmapCacheCapabilitySetRev2{}
		return s.BitmapCacheCapabilitySetRev2.Deserialize(body)
	case CapabilitySetTypeVirtualChannel:
		s.VirtualChannelCapabilitySet = &VirtualChannelCapabilitySet{}
		return s.VirtualChannelCapabilitySet.Deserialize(body)
	case CapabilitySetTypeDrawNineGridCache:
		s.DrawNineGridCacheCapabilitySet = &DrawNineGridCacheCapabilitySet{}
		return s.DrawNineGridCacheCapabilitySet.Deserialize(body)
	case CapabilitySetTypeDrawGDIPlus:
		s.DrawGDIPlusCapabilitySet = &DrawGDIPlusCapabilitySet{}
		return s.DrawGDIPlusCapabilitySet.Deserialize(body)
	case CapabilitySetTypeRail:
		s.RailCapabilitySet = &RailCapabilitySet{}
		return s.RailCapabilitySet.Deserialize(body)
	case CapabilitySetTypeWindow:
		s.WindowListCapabilitySet = &WindowListCapabilitySet{}
		return s.WindowListCapabilitySet.Deserialize(body)
	case CapabilitySetTypeCompDesk:
		s.DesktopCompositionCapabilitySet = &DesktopCompositionCapabilitySet{}
		return s.DesktopCompositionCapabilitySet.Deserialize(body)
	case CapabilitySetTypeMultifragmentUpdate:
		s.MultifragmentUpdateCapabilitySet = &MultifragmentUpdateCapabilitySet{}
		return s.MultifragmentUpdateCapabilitySet.Deserialize(body)
	case CapabilitySetTypeLargePointer:
		s.LargePointerCapabilitySet = &LargePointerCapabilitySet{}
		return s.LargePointerCapabilitySet.Deserialize(body)
	case CapabilitySetTypeSurfaceCommands:
		s.SurfaceCommandsCapabilitySet = &SurfaceCommandsCapabilitySet{}
		return s.SurfaceCommandsCapabilitySet.Deserialize(body)
	case CapabilitySetTypeBitmapCodecs:
		s.BitmapCodecsCapabilitySet = &BitmapCodecsCapabilitySet{}
		return s.BitmapCodecsCapabilitySet.Deserialize(body)
	case CapabilitySetTypeFrameAcknowledge:
		s.FrameAcknowledgeCapabilitySet = &FrameAcknowledgeCapabilitySet{}
		return s.FrameAcknowledgeCapabilitySet.Deserialize(body)
	default:
		_, err := io.Copy(io.Discard, body)
		return err
	}
}

// DeserializeQuick reads only the TS_CAPS_SET header, discarding the
// body without allocating a type-specific struct. Used where only the
// capabilitySetType matters, e.g. scanning a Demand Active PDU for a
// single capability set without paying to decode all of them.
func (s *CapabilitySet) DeserializeQuick(wire io.Reader) error {
	var capType, lengthCapability uint16
	if err := binary.Read(wire, binary.LittleEndian, &capType); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &lengthCapability); err != nil {
		return err
	}
	if lengthCapability < 4 {
		return fmt.Errorf("pdu: capability set length %d shorter than header", lengthCapability)
	}
	s.CapabilitySetType = CapabilitySetType(capType)
	_, err := io.CopyN(io.Discard, wire, int64(lengthCapability-4))
	return err
}

// ServerDemandActive represents the Demand Active PDU (MS-RDPBCGR 2.2.1.13.1),
// the server's announcement of its share id and supported capabilities.
type ServerDemandActive struct {
	ShareID        uint32
	CapabilitySets []CapabilitySet
}

// Deserialize decodes the Demand Active PDU from wire format.
func (d *ServerDemandActive) Deserialize(wire io.Reader) error {
	var header ShareControlHeader
	if err := header.Deserialize(wire); err != nil {
		return err
	}
	if !header.PDUType.IsDemandActive() {
		return fmt.Errorf("pdu: expected demand active pdu, got type %#x", uint16(header.PDUType))
	}

	if err := binary.Read(wire, binary.LittleEndian, &d.ShareID); err != nil {
		return err
	}

	var lengthSourceDescriptor, lengthCombinedCapabilities uint16
	if err := binary.Read(wire, binary.LittleEndian, &lengthSourceDescriptor); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &lengthCombinedCapabilities); err != nil {
		return err
	}

	sourceDescriptor := make([]byte, lengthSourceDescriptor)
	if _, err := io.ReadFull(wire, sourceDescriptor); err != nil {
		return err
	}

	var numberCapabilities, pad uint16
	if err := binary.Read(wire, binary.LittleEndian, &numberCapabilities); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &pad); err != nil {
		return err
	}

	d.CapabilitySets = make([]CapabilitySet, numberCapabilities)
	for i := range d.CapabilitySets {
		if err := d.CapabilitySets[i].Deserialize(wire); err != nil {
			return err
		}
	}

	var sessionID uint32
	if err := binary.Read(wire, binary.LittleEndian, &sessionID); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// confirmActiveOriginatorID is the fixed originatorId a client sends in
// the Confirm Active PDU (MS-RDPBCGR 2.2.1.13.2.1, always MCS_GLOBAL_CHANNEL_ID 0x03EA).
const confirmActiveOriginatorID = 0x03EA

// ClientConfirmActive represents the Confirm Active PDU (MS-RDPBCGR 2.2.1.13.2),
// the client's reply accepting a share id and advertising its own capabilities.
type ClientConfirmActive struct {
	ShareID        uint32
	userID         uint16
	CapabilitySets []CapabilitySet
}

// NewClientConfirmActive builds the standard client capability set list:
// General, Bitmap, Order, BitmapCache (Rev2), Pointer, Input, Brush,
// GlyphCache, OffscreenBitmapCache, VirtualChannel, Sound and
// MultifragmentUpdate, plus Rail/WindowList when remoteApp is requested.
// Surface Commands and Bitmap Codecs are appended by the caller once
// the codec set has been negotiated.
func NewClientConfirmActive(shareID uint32, userID uint16, desktopWidth, desktopHeight uint16, remoteApp bool) *ClientConfirmActive {
	sets := []CapabilitySet{
		NewGeneralCapabilitySet(),
		NewBitmapCapabilitySet(desktopWidth, desktopHeight),
		NewOrderCapabilitySet(),
		*NewBitmapCacheCapabilitySetRev2(),
		NewPointerCapabilitySet(),
		NewInputCapabilitySet(),
		NewBrushCapabilitySet(),
		NewGlyphCacheCapabilitySet(),
		NewOffscreenBitmapCacheCapabilitySet(),
		NewVirtualChannelCapabilitySet(),
		NewSoundCapabilitySet(),
		NewMultifragmentUpdateCapabilitySet(),
	}
	if remoteApp {
		sets = append(sets, NewRailCapabilitySet(), NewWindowListCapabilitySet())
	}

	return &ClientConfirmActive{
		ShareID:        shareID,
		userID:         userID,
		CapabilitySets: sets,
	}
}

// Serialize encodes the Confirm Active PDU to wire format.
func (c *ClientConfirmActive) Serialize() []byte {
	capBuf := new(bytes.Buffer)
	for i := range c.CapabilitySets {
		capBuf.Write(c.CapabilitySets[i].Serialize())
	}

	body := new(bytes.Buffer)
	_ = binary.Write(body, binary.LittleEndian, c.ShareID)
	_ = binary.Write(body, binary.LittleEndian, uint16(confirmActiveOriginatorID))
	_ = binary.Write(body, binary.LittleEndian, uint16(0))                        // lengthSourceDescriptor
	_ = binary.Write(body, binary.LittleEndian, uint16(4+capBuf.Len())) // #nosec G115
	_ = binary.Write(body, binary.LittleEndian, uint16(len(c.CapabilitySets)))     // #nosec G115
	_ = binary.Write(body, binary.LittleEndian, uint16(0))                        // pad2Octets
	body.Write(capBuf.Bytes())

	header := newShareControlHeader(TypeConfirmActive, c.userID)
	header.TotalLength = uint16(6 + body.Len()) // #nosec G115

	buf := new(bytes.Buffer)
	buf.Write(header.Serialize())
	buf.Write(body.Bytes())

	return buf.Bytes()
}

// Deserialize decodes the Confirm Active PDU from wire format.
func (c *ClientConfirmActive) Deserialize(wire io.Reader) error {
	var header ShareControlHeader
	if err := header.Deserialize(wire); err != nil {
		return err
	}
	if !header.PDUType.IsConfirmActive() {
		return fmt.Errorf("pdu: expected confirm active pdu, got type %#x", uint16(header.PDUType))
	}
	c.userID = header.PDUSource

	if err := binary.Read(wire, binary.LittleEndian, &c.ShareID); err != nil {
		return err
	}

	var originatorID, lengthSourceDescriptor, lengthCombinedCapabilities uint16
	if err := binary.Read(wire, binary.LittleEndian, &originatorID); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &lengthSourceDescriptor); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &lengthCombinedCapabilities); err != nil {
		return err
	}

	sourceDescriptor := make([]byte, lengthSourceDescriptor)
	if _, err := io.ReadFull(wire, sourceDescriptor); err != nil {
		return err
	}

	var numberCapabilities, pad uint16
	if err := binary.Read(wire, binary.LittleEndian, &numberCapabilities); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &pad); err != nil {
		return err
	}

	c.CapabilitySets = make([]CapabilitySet, numberCapabilities)
	for i := range c.CapabilitySets {
		if err := c.CapabilitySets[i].Deserialize(wire); err != nil {
			return err
		}
	}

	return nil
}
