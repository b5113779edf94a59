// Package rdpdr implements the Device Redirection Virtual Channel
// Extension (MS-RDPEFS) wire format exchanged over the static "rdpdr"
// channel: the RDPDR_HEADER-framed PDU set covering the Server/Client
// Announce handshake, Core Capability exchange and Device List
// announce/remove.
package rdpdr

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ChannelName is the static virtual channel name MS-RDPEFS reserves.
const ChannelName = "rdpdr"

// Component identifies the RDPDR_HEADER's Component field (MS-RDPEFS 2.2.1).
const (
	ComponentCore    uint16 = 0x4472 // RDPDR_CTYP_CORE
	ComponentPrinter uint16 = 0x5052 // RDPDR_CTYP_PRT
)

// PacketID identifies the RDPDR_HEADER's PacketId field (MS-RDPEFS 2.2.1).
const (
	PacketServerAnnounce      uint16 = 0x496E
	PacketClientAnnounceReply uint16 = 0x4343
	PacketClientNameRequest   uint16 = 0x434E
	PacketServerCapability    uint16 = 0x5350
	PacketClientCapability    uint16 = 0x4350
	PacketDeviceListAnnounce  uint16 = 0x4441
	PacketDeviceReply         uint16 = 0x6472
	PacketDeviceIORequest     uint16 = 0x4952
	PacketDeviceIOCompletion  uint16 = 0x4943
	PacketDeviceListRemove    uint16 = 0x444D
	PacketUserLoggedOn        uint16 = 0x554C
)

// Device types (MS-RDPEFS 2.2.1.3, DeviceType field of DEVICE_ANNOUNCE).
const (
	DeviceTypeSerial     uint32 = 0x00000001
	DeviceTypeParallel   uint32 = 0x00000002
	DeviceTypePrint      uint32 = 0x00000004
	DeviceTypeFilesystem uint32 = 0x00000008
	DeviceTypeSmartcard  uint32 = 0x00000020
)

// Header is RDPDR_HEADER (MS-RDPEFS 2.2.1): every PDU's common prefix.
type Header struct {
	Component uint16
	PacketID  uint16
}

func (h *Header) Serialize() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], h.Component)
	binary.LittleEndian.PutUint16(buf[2:4], h.PacketID)
	return buf
}

// ParseHeader decodes the 4-byte RDPDR_HEADER prefix off data.
func ParseHeader(data []byte) (Header, []byte, error) {
	if len(data) < 4 {
		return Header{}, nil, fmt.Errorf("rdpdr: header truncated")
	}
	return Header{
		Component: binary.LittleEndian.Uint16(data[0:2]),
		PacketID:  binary.LittleEndian.Uint16(data[2:4]),
	}, data[4:], nil
}

func buildPDU(packetID uint16, body []byte) []byte {
	h := Header{Component: ComponentCore, PacketID: packetID}
	return append(h.Serialize(), body...)
}

// padNDR4 pads b to the next 4-byte boundary with zero bytes, the NDR
// alignment rule MS-RDPEFS strings and arrays are serialized under.
func padNDR4(b []byte) []byte {
	if rem := len(b) % 4; rem != 0 {
		b = append(b, make([]byte, 4-rem)...)
	}
	return b
}

// ServerAnnounce is the Server Announce Request body (MS-RDPEFS 2.2.2.2).
type ServerAnnounce struct {
	VersionMajor uint16
	VersionMinor uint16
	ClientID     uint32
}

// DecodeServerAnnounce decodes a Server Announce Request body.
func DecodeServerAnnounce(body []byte) (ServerAnnounce, error) {
	if len(body) < 8 {
		return ServerAnnounce{}, fmt.Errorf("rdpdr: server announce truncated")
	}
	return ServerAnnounce{
		VersionMajor: binary.LittleEndian.Uint16(body[0:2]),
		VersionMinor: binary.LittleEndian.Uint16(body[2:4]),
		ClientID:     binary.LittleEndian.Uint32(body[4:8]),
	}, nil
}

// BuildClientAnnounceReply builds the Client Announce Reply (MS-RDPEFS
// 2.2.2.3), echoing the server's ClientID.
func BuildClientAnnounceReply(clientID uint32) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:2], 1)  // VersionMajor, fixed at 1
	binary.LittleEndian.PutUint16(buf[2:4], 12) // VersionMinor
	binary.LittleEndian.PutUint32(buf[4:8], clientID)
	return buildPDU(PacketClientAnnounceReply, buf)
}

// BuildClientNameRequest builds the Client Name Request (MS-RDPEFS
// 2.2.2.4) announcing computerName in ASCII (UnicodeFlag 0), NDR
// 4-byte padded per MS-RDPEFS's NDR alignment rules.
func BuildClientNameRequest(computerName string) []byte {
	name := append([]byte(computerName), 0) // NUL-terminated
	name = padNDR4(name)

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, uint32(0))            // UnicodeFlag: ASCII
	_ = binary.Write(buf, binary.LittleEndian, uint32(0))            // CodePage
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(name)))    // ComputerNameLen
	buf.Write(name)
	return buildPDU(PacketClientNameRequest, buf.Bytes())
}

// GeneralCapabilitySet is the General Capability Set (MS-RDPEFS
// 2.2.2.7.1), the one capability set this core negotiates on the
// client side.
type GeneralCapabilitySet struct {
	OSType               uint32
	OSVersion            uint32
	ProtocolMajorVersion uint16
	ProtocolMinorVersion uint16
	IOCode1              uint32
	ExtendedPDU          uint32
	ExtraFlags1          uint32
	SpecialTypeDeviceCap uint32
}

const (
	capHeaderSize         = 8  // capabilityType(2) + capabilityLength(2) + version(4)
	generalCapBodySize    = 36 // fixed body per MS-RDPEFS 2.2.2.7.1 (version 2)
	capTypeGeneral uint16 = 0x0001
)

// BuildClientCapability builds the Client Core Capability Response
// (MS-RDPEFS 2.2.2.7) carrying a single General Capability Set.
func BuildClientCapability(caps GeneralCapabilitySet) []byte {
	body := new(bytes.Buffer)
	_ = binary.Write(body, binary.LittleEndian, caps.OSType)
	_ = binary.Write(body, binary.LittleEndian, caps.OSVersion)
	_ = binary.Write(body, binary.LittleEndian, uint16(1)) // protocolMajorVersion
	_ = binary.Write(body, binary.LittleEndian, uint16(13)) // protocolMinorVersion
	_ = binary.Write(body, binary.LittleEndian, uint32(0))  // ioCode1 (no special I/O advertised)
	_ = binary.Write(body, binary.LittleEndian, uint32(0))  // ioCode2, reserved
	_ = binary.Write(body, binary.LittleEndian, caps.ExtendedPDU)
	_ = binary.Write(body, binary.LittleEndian, caps.ExtraFlags1)
	_ = binary.Write(body, binary.LittleEndian, uint32(0))  // Extraflags2, reserved
	_ = binary.Write(body, binary.LittleEndian, caps.SpecialTypeDeviceCap)

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // numCapabilities
	_ = binary.Write(buf, binary.LittleEndian, uint16(0)) // pad
	_ = binary.Write(buf, binary.LittleEndian, capTypeGeneral)
	_ = binary.Write(buf, binary.LittleEndian, uint16(capHeaderSize+body.Len())) // #nosec G115
	_ = binary.Write(buf, binary.LittleEndian, uint32(2))                         // version
	buf.Write(body.Bytes())
	return buildPDU(PacketClientCapability, buf.Bytes())
}

// Device is one DEVICE_ANNOUNCE entry (MS-RDPEFS 2.2.1.3).
type Device struct {
	Type           uint32
	ID             uint32
	PreferredName  string // max 8 bytes, NUL-padded, ASCII
	Data           []byte
}

// BuildDeviceListAnnounce builds the Client Device List Announce
// Request (MS-RDPEFS 2.2.2.9) for devices. An empty list is valid --
// this core redirects no local devices unless the caller supplies
// some through a future Device port.
func BuildDeviceListAnnounce(devices []Device) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(devices))) // #nosec G115
	for _, d := range devices {
		name := make([]byte, 8)
		copy(name, d.PreferredName)
		_ = binary.Write(buf, binary.LittleEndian, d.Type)
		_ = binary.Write(buf, binary.LittleEndian, d.ID)
		buf.Write(name)
		_ = binary.Write(buf, binary.LittleEndian, uint32(len(d.Data))) // #nosec G115
		buf.Write(d.Data)
	}
	return buildPDU(PacketDeviceListAnnounce, buf.Bytes())
}

// BuildDeviceListRemove builds the Client Drive Device List Remove
// (MS-RDPEFS 2.2.3.2) for deviceIDs, used to announce device removal
// (e.g. a redirected drive being unplugged) after the session is up.
func BuildDeviceListRemove(deviceIDs []uint32) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(deviceIDs))) // #nosec G115
	for _, id := range deviceIDs {
		_ = binary.Write(buf, binary.LittleEndian, id)
	}
	return buildPDU(PacketDeviceListRemove, buf.Bytes())
}

// DeviceReply is the Server Device Announce Response body (MS-RDPEFS
// 2.2.2.1): one per announced device, correlated by DeviceID.
type DeviceReply struct {
	DeviceID   uint32
	ResultCode uint32
}

// DecodeDeviceReply decodes a Server Device Announce Response body.
func DecodeDeviceReply(body []byte) (DeviceReply, error) {
	if len(body) < 8 {
		return DeviceReply{}, fmt.Errorf("rdpdr: device reply truncated")
	}
	return DeviceReply{
		DeviceID:   binary.LittleEndian.Uint32(body[0:4]),
		ResultCode: binary.LittleEndian.Uint32(body[4:8]),
	}, nil
}
