package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// MultifragmentUpdateCapabilitySet represents the Multifragment Update Capability Set (MS-RDPBCGR 2.2.7.2.6).
type MultifragmentUpdateCapabilitySet struct {
	MaxRequestSize uint32
}

// NewMultifragmentUpdateCapabilitySet creates a Multifragment Update Capability Set with default values.
func NewMultifragmentUpdateCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType:                CapabilitySetTypeMultifragmentUpdate,
		MultifragmentUpdateCapabilitySet: &MultifragmentUpdateCapabilitySet{},
	}
}

// Serialize encodes the capability set to wire format.
func (s *MultifragmentUpdateCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, &s.MaxRequestSize)

	return buf.Bytes()
}

// Deserialize decodes the capability set from wire format.
func (s *MultifragmentUpdateCapabilitySet) Deserialize(wire io.Reader) error {
	return binary.Read(wire, binary.LittleEndian, &s.MaxRequestSize)
}

// LargePointerCapabilitySet represents the Large Pointer Capability Set (MS-RDPBCGR 2.2.7.2.7).
type LargePointerCapabilitySet struct {
	LargePointerSupportFlags uint16
}

// Deserialize decodes the capability set from wire format.
func (s *LargePointerCapabilitySet) Deserialize(wire io.Reader) error {
	return binary.Read(wire, binary.LittleEndian, &s.LargePointerSupportFlags)
}

// DesktopCompositionCapabilitySet represents the Desktop Composition Capability Set (MS-RDPBCGR 2.2.7.2.8).
type DesktopCompositionCapabilitySet struct {
	CompDeskSupportLevel uint16
}

// Deserialize decodes the capability set from wire format.
func (s *DesktopCompositionCapabilitySet) Deserialize(wire io.Reader) error {
	return binary.Read(wire, binary.LittleEndian, &s.CompDeskSupportLevel)
}

// SurfaceCommandsCapabilitySet represents the Surface Commands Capability Set (MS-RDPBCGR 2.2.7.2.9).
type SurfaceCommandsCapabilitySet struct {
	CmdFlags uint32
}

// Surface command flags (MS-RDPBCGR 2.2.7.2.9).
const (
	// SurfCmdSetSurfaceBits indicates support for Set Surface Bits Command.
	SurfCmdSetSurfaceBits uint32 = 0x00000002
	// SurfCmdFrameMarker indicates support for Frame Marker Command.
	SurfCmdFrameMarker uint32 = 0x00000010
	// SurfCmdStreamSurfBits indicates support for Stream Surface Bits Command.
	SurfCmdStreamSurfBits uint32 = 0x00000040
)

// NewSurfaceCommandsCapabilitySet creates a Surface Commands Capability Set with default values.
func NewSurfaceCommandsCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType: CapabilitySetTypeSurfaceCommands,
		SurfaceCommandsCapabilitySet: &SurfaceCommandsCapabilitySet{
			CmdFlags: SurfCmdSetSurfaceBits | SurfCmdFrameMarker | SurfCmdStreamSurfBits,
		},
	}
}

// Serialize encodes the capability set to wire format.
func (s *SurfaceCommandsCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, s.CmdFlags)
	_ = binary.Write(buf, binary.LittleEndian, uint32(0)) // reserved
	return buf.Bytes()
}

// Deserialize decodes the capability set from wire format.
func (s *SurfaceCommandsCapabilitySet) Deserialize(wire io.Reader) error {
	var (
		reserved uint32
		err      error
	)

	err = binary.Read(wire, binary.LittleEndian, &s.CmdFlags)
	if err != nil {
		return err
	}

	err = binary.Read(wire, binary.LittleEndian, &reserved)
	if err != nil {
		return err
	}

	return nil
}

// BitmapCodec represents a bitmap codec entry (MS-RDPBCGR 2.2.7.2.10.1).
type BitmapCodec struct {
	CodecGUID       [16]byte
	CodecID         uint8
	CodecProperties []byte
}

// Deserialize decodes the bitmap codec from wire format.
func (c *BitmapCodec) Deserialize(wire io.Reader) error {
	var err error

	err = binary.Read(wire, binary.LittleEndian, &c.CodecGUID)
	if err != nil {
		return err
	}

	err = binary.Read(wire, binary.LittleEndian, &c.CodecID)
	if err != nil {
		return err
	}

	var codecPropertiesLength uint16

	err = binary.Read(wire, binary.LittleEndian, &codecPropertiesLength)
	if err != nil {
		return err
	}

	c.CodecProperties = make([]byte, codecPropertiesLength)

	_, err = wire.Read(c.CodecProperties)
	if err != nil {
		return err
	}

	return nil
}

// BitmapCodecsCapabilitySet represents the Bitmap Codecs Capability Set (MS-RDPBCGR 2.2.7.2.10).
type BitmapCodecsCapabilitySet struct {
	BitmapCodecArray []BitmapCodec
}

// Deserialize decodes the capability set from wire format.
func (s *BitmapCodecsCapabilitySet) Deserialize(wire io.Reader) error {
	var (
		bitmapCodecCount uint8
		err              error
	)

	err = binary.Read(wire, binary.LittleEndian, &bitmapCodecCount)
	if err != nil {
		return err
	}

	s.BitmapCodecArray = make([]BitmapCodec, bitmapCodecCount)

	for i := range s.BitmapCodecArray {
		err = s.BitmapCodecArray[i].Deserialize(wire)
		if err != nil {
			return err
		}
	}

	return nil
}

// NSCodecGUID is the GUID for NSCodec (CA8D1BB9-000F-154F-589F-AE2D1A87E2D6).
// Stored in little-endian format as per MS-RDPBCGR.
var NSCodecGUID = [16]byte{
	0xB9, 0x1B, 0x8D, 0xCA, 0x0F, 0x00, 0x4F, 0x15,
	0x58, 0x9F, 0xAE, 0x2D, 0x1A, 0x87, 0xE2, 0xD6,
}

// NSCodecCapabilitySet represents the NSCodec-specific properties
type NSCodecCapabilitySet struct {
	FAllowDynamicFidelity uint8
	FAllowSubsampling     uint8
	ColorLossLevel        uint8
}

// Serialize encodes the NSCodec properties to wire format.
func (c *NSCodecCapabilitySet) Serialize() []byte {
	return []byte{
		c.FAllowDynamicFidelity,
		c.FAllowSubsampling,
		c.ColorLossLevel,
	}
}

// Serialize encodes the bitmap codec to wire format.
func (c *BitmapCodec) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, c.CodecGUID)
	_ = binary.Write(buf, binary.LittleEndian, c.CodecID)
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(c.CodecProperties)))
	buf.Write(c.CodecProperties)

	return buf.Bytes()
}

// Serialize encodes the capability set to wire format.
func (s *BitmapCodecsCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, uint8(len(s.BitmapCodecArray)))

	for _, codec := range s.BitmapCodecArray {
		buf.Write(codec.Serialize())
	}

	return buf.Bytes()
}

// NewBitmapCodecsCapabilitySet creates a capability set advertising NSCodec support
func NewBitmapCodecsCapabilitySet() CapabilitySet {
	nscodecProps := NSCodecCapabilitySet{
		FAllowDynamicFidelity: 1, // Allow dynamic fidelity
		FAllowSubsampling:     1, // Allow chroma subsampling
		ColorLossLevel:        3, // Moderate color loss (1=lossless, 7=max loss)
	}

	return CapabilitySet{
		CapabilitySetType: CapabilitySetTypeBitmapCodecs,
		BitmapCodecsCapabilitySet: &BitmapCodecsCapabilitySet{
			BitmapCodecArray: []BitmapCodec{
				{
					CodecGUID:       NSCodecGUID,
					CodecID:         1, // Will be assigned by server
					CodecProperties: nscodecProps.Serialize(),
				},
			},
		},
	}
}

// RemoteFXGUID is the GUID for RemoteFX (76772F12-BD72-4463-AFB3-B73C9C6F7886),
// stored little-endian the same way NSCodecGUID is (MS-RDPRFX 2.2.1.1).
var RemoteFXGUID = [16]byte{
	0x12, 0x2F, 0x77, 0x76, 0x72, 0xBD, 0x63, 0x44,
	0xAF, 0xB3, 0xB7, 0x3C, 0x9C, 0x6F, 0x78, 0x86,
}

// rfxClientCapsContainer builds the TS_RFX_CLIENT_CAPS_CONTAINER
// advertising one TS_RFX_ICAP entry for RLGR1 at the standard 64x64
// tile size (MS-RDPRFX 2.2.1.1.1, codecId assigned by the server).
func rfxClientCapsContainer() []byte {
	const (
		cbyCaps    = 0xCBC0
		cbyCapset  = 0xCBC1
		clyCapset  = 0xCFC0
		entropyRLGR1 = 0x01
	)

	icap := new(bytes.Buffer)
	_ = binary.Write(icap, binary.LittleEndian, uint16(0x0100)) // version CLW_VERSION_1_0
	_ = binary.Write(icap, binary.LittleEndian, uint16(0x0040)) // tileSize 64x64
	_ = binary.Write(icap, binary.LittleEndian, uint8(0))       // flags
	_ = binary.Write(icap, binary.LittleEndian, uint8(1))       // colConvBits: RLGR1 YCbCr
	_ = binary.Write(icap, binary.LittleEndian, uint8(1))       // transformBits: RLGR1 DWT
	_ = binary.Write(icap, binary.LittleEndian, uint8(entropyRLGR1))

	capset := new(bytes.Buffer)
	_ = binary.Write(capset, binary.LittleEndian, uint8(1))              // codecId, reassigned by the server
	_ = binary.Write(capset, binary.LittleEndian, uint16(clyCapset))     // capsetType
	_ = binary.Write(capset, binary.LittleEndian, uint16(1))             // numIcaps
	_ = binary.Write(capset, binary.LittleEndian, uint16(icap.Len()))    // icapLen
	capset.Write(icap.Bytes())

	capsetHeader := new(bytes.Buffer)
	_ = binary.Write(capsetHeader, binary.LittleEndian, uint16(cbyCapset))
	_ = binary.Write(capsetHeader, binary.LittleEndian, uint32(6+capset.Len())) // #nosec G115
	capsetHeader.Write(capset.Bytes())

	caps := new(bytes.Buffer)
	_ = binary.Write(caps, binary.LittleEndian, uint16(cbyCaps))
	_ = binary.Write(caps, binary.LittleEndian, uint32(6+2+capsetHeader.Len())) // #nosec G115
	_ = binary.Write(caps, binary.LittleEndian, uint16(1))                     // numCapsets
	caps.Write(capsetHeader.Bytes())

	container := new(bytes.Buffer)
	_ = binary.Write(container, binary.LittleEndian, uint32(0))          // captureFlags: CAPTURE_FLAG_NONE
	_ = binary.Write(container, binary.LittleEndian, uint32(caps.Len())) // lengthCapsData
	container.Write(caps.Bytes())

	return container.Bytes()
}

// NewBitmapCodecsWithRFXCapabilitySet creates a Bitmap Codecs Capability
// Set advertising both NSCodec and RemoteFX, for clients that have
// RemoteFX graphics enabled (MS-RDPBCGR 2.2.7.2.10).
func NewBitmapCodecsWithRFXCapabilitySet() CapabilitySet {
	nscodecProps := NSCodecCapabilitySet{
		FAllowDynamicFidelity: 1,
		FAllowSubsampling:     1,
		ColorLossLevel:        3,
	}

	return CapabilitySet{
		CapabilitySetType: CapabilitySetTypeBitmapCodecs,
		BitmapCodecsCapabilitySet: &BitmapCodecsCapabilitySet{
			BitmapCodecArray: []BitmapCodec{
				{
					CodecGUID:       NSCodecGUID,
					CodecID:         1,
					CodecProperties: nscodecProps.Serialize(),
				},
				{
					CodecGUID:       RemoteFXGUID,
					CodecID:         2,
					CodecProperties: rfxClientCapsContainer(),
				},
			},
		},
	}
}

// ProgressiveGUID, QOIGUID, QOIZGUID, AVC420GUID and AVC444GUID
// identify the remaining codecs a client can self-assign an id for in
// its Bitmap Codecs Capability Set. Progressive reuses RemoteFX's
// tile/DWT wire format with an additional quality-refinement pass
// (MS-RDPRFX); QOI/QOIZ/AVC have no MS-RDPBCGR GUIDs of their own --
// this client mints its own codec identification GUIDs for them the
// same way a vendor-specific codec would, since the Bitmap Codecs
// mechanism is explicitly extensible (MS-RDPBCGR 2.2.7.2.10 notes
// CodecGUID values outside the documented set are valid as long as
// client and server agree on CodecID through this exchange).
var ProgressiveGUID = [16]byte{
	0x9C, 0x42, 0x51, 0xA2, 0x6B, 0xB4, 0x47, 0x44,
	0x83, 0x8C, 0xE2, 0x34, 0x2B, 0x1A, 0xD7, 0xA2,
}

var QOIGUID = [16]byte{
	0x51, 0x4F, 0x49, 0x2D, 0x31, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

var QOIZGUID = [16]byte{
	0x51, 0x4F, 0x49, 0x5A, 0x31, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

var AVC420GUID = [16]byte{
	0x41, 0x56, 0x43, 0x34, 0x32, 0x30, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

var AVC444GUID = [16]byte{
	0x41, 0x56, 0x43, 0x34, 0x34, 0x34, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// progressiveClientCapsContainer mirrors rfxClientCapsContainer but
// advertises RLGR3 (the entropy mode Progressive tiles use for their
// refinement passes) instead of RLGR1.
func progressiveClientCapsContainer() []byte {
	const (
		cbyCaps     = 0xCBC0
		clyCapset   = 0xCFC0
		entropyRLGR3 = 0x04
	)

	icap := new(bytes.Buffer)
	_ = binary.Write(icap, binary.LittleEndian, uint16(0x0100))
	_ = binary.Write(icap, binary.LittleEndian, uint16(0x0040))
	_ = binary.Write(icap, binary.LittleEndian, uint8(0))
	_ = binary.Write(icap, binary.LittleEndian, uint8(1))
	_ = binary.Write(icap, binary.LittleEndian, uint8(1))
	_ = binary.Write(icap, binary.LittleEndian, uint8(entropyRLGR3))

	capset := new(bytes.Buffer)
	_ = binary.Write(capset, binary.LittleEndian, uint8(1))
	_ = binary.Write(capset, binary.LittleEndian, uint16(clyCapset))
	_ = binary.Write(capset, binary.LittleEndian, uint16(1))
	_ = binary.Write(capset, binary.LittleEndian, uint16(icap.Len()))
	capset.Write(icap.Bytes())

	capsetHeader := new(bytes.Buffer)
	_ = binary.Write(capsetHeader, binary.LittleEndian, uint16(0xCBC1))
	_ = binary.Write(capsetHeader, binary.LittleEndian, uint32(6+capset.Len())) // #nosec G115
	capsetHeader.Write(capset.Bytes())

	caps := new(bytes.Buffer)
	_ = binary.Write(caps, binary.LittleEndian, uint16(cbyCaps))
	_ = binary.Write(caps, binary.LittleEndian, uint32(6+2+capsetHeader.Len())) // #nosec G115
	_ = binary.Write(caps, binary.LittleEndian, uint16(1))
	caps.Write(capsetHeader.Bytes())

	container := new(bytes.Buffer)
	_ = binary.Write(container, binary.LittleEndian, uint32(0))
	_ = binary.Write(container, binary.LittleEndian, uint32(caps.Len()))
	container.Write(caps.Bytes())

	return container.Bytes()
}

// codecGUIDFor maps a configured codec name (connector.Config.Codecs)
// to the GUID this client advertises for it, plus the codec properties
// blob the server needs to make sense of that GUID. AVC420/AVC444
// carry no properties at the Bitmap Codecs level (their negotiation
// detail lives in the H.264 bitstream itself); like QOI/QOIZ they are
// self-minted vendor GUIDs, so the server echoes their assigned codec
// id back in SetSurfaceBits the same as for every other entry.
func codecGUIDFor(name string) (guid [16]byte, props []byte, ok bool) {
	switch name {
	case "nscodec":
		return NSCodecGUID, (&NSCodecCapabilitySet{FAllowDynamicFidelity: 1, FAllowSubsampling: 1, ColorLossLevel: 3}).Serialize(), true
	case "remotefx":
		return RemoteFXGUID, rfxClientCapsContainer(), true
	case "progressive":
		return ProgressiveGUID, progressiveClientCapsContainer(), true
	case "qoi":
		return QOIGUID, nil, true
	case "qoiz":
		return QOIZGUID, nil, true
	case "avc420":
		return AVC420GUID, nil, true
	case "avc444":
		return AVC444GUID, nil, true
	default:
		return [16]byte{}, nil, false
	}
}

// NewBitmapCodecsCapabilitySetForCodecs builds a Bitmap Codecs
// Capability Set advertising one entry per name in codecs that this
// client can self-assign a GUID for. Codec ids are assigned
// sequentially starting at 1 in the order codecs names them; the
// returned map lets the caller remember which id the server will echo
// back in SetSurfaceBits.CodecID for each codec name.
func NewBitmapCodecsCapabilitySetForCodecs(codecs []string) (CapabilitySet, map[string]uint8) {
	var array []BitmapCodec
	ids := make(map[string]uint8, len(codecs))
	var nextID uint8 = 1
	for _, name := range codecs {
		guid, props, ok := codecGUIDFor(name)
		if !ok {
			continue
		}
		array = append(array, BitmapCodec{CodecGUID: guid, CodecID: nextID, CodecProperties: props})
		ids[name] = nextID
		nextID++
	}
	return CapabilitySet{
		CapabilitySetType:         CapabilitySetTypeBitmapCodecs,
		BitmapCodecsCapabilitySet: &BitmapCodecsCapabilitySet{BitmapCodecArray: array},
	}, ids
}

// RailCapabilitySet represents the Remote Programs Capability Set (MS-RDPBCGR 2.2.7.2.4).
type RailCapabilitySet struct {
	RailSupportLevel uint32
}

// NewRailCapabilitySet creates a Remote Programs Capability Set with default values.
func NewRailCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType: CapabilitySetTypeRail,
		RailCapabilitySet: &RailCapabilitySet{
			RailSupportLevel: 1, // TS_RAIL_LEVEL_SUPPORTED
		},
	}
}

// Serialize encodes the capability set to wire format.
func (s *RailCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, s.RailSupportLevel)

	return buf.Bytes()
}

// Deserialize decodes the capability set from wire format.
func (s *RailCapabilitySet) Deserialize(wire io.Reader) error {
	return binary.Read(wire, binary.LittleEndian, &s.RailSupportLevel)
}

// WindowListCapabilitySet represents the Window List Capability Set (MS-RDPBCGR 2.2.7.2.5).
type WindowListCapabilitySet struct {
	WndSupportLevel     uint32
	NumIconCaches       uint8
	NumIconCacheEntries uint16
}

// NewWindowListCapabilitySet creates a Window List Capability Set with default values.
func NewWindowListCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType: CapabilitySetTypeWindow,
		WindowListCapabilitySet: &WindowListCapabilitySet{
			WndSupportLevel: 0, // TS_WINDOW_LEVEL_NOT_SUPPORTED
		},
	}
}

// Serialize encodes the capability set to wire format.
func (s *WindowListCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, s.WndSupportLevel)
	_ = binary.Write(buf, binary.LittleEndian, s.NumIconCaches)
	_ = binary.Write(buf, binary.LittleEndian, s.NumIconCacheEntries)

	return buf.Bytes()
}

// Deserialize decodes the capability set from wire format.
func (s *WindowListCapabilitySet) Deserialize(wire io.Reader) error {
	var err error

	if err = binary.Read(wire, binary.LittleEndian, &s.WndSupportLevel); err != nil {
		return err
	}
	if err = binary.Read(wire, binary.LittleEndian, &s.NumIconCaches); err != nil {
		return err
	}
	return binary.Read(wire, binary.LittleEndian, &s.NumIconCacheEntries)
}
