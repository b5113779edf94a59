package pdu

import (
	"bytes"
	"encoding/binary"

)

// Client Info flags (MS-RDPBCGR 2.2.1.11.1.1 TS_INFO_PACKET.flags).
const (
	InfoMouse               uint32 = 0x00000001
	InfoDisableCtrlAltDel    uint32 = 0x00000002
	InfoAutologon           uint32 = 0x00000008
	InfoUnicode             uint32 = 0x00000010
	InfoMaximizeShell       uint32 = 0x00000020
	InfoLogonNotify         uint32 = 0x00000040
	InfoCompression         uint32 = 0x00000080
	InfoEnableWindowsKey    uint32 = 0x00000100
	InfoLogonErrors         uint32 = 0x00000400
	InfoMouseHasWheel       uint32 = 0x00000800
	InfoPasswordIsScPin     uint32 = 0x00001000
	InfoNoAudioPlayback     uint32 = 0x00002000
	InfoUsingSavedCreds     uint32 = 0x00004000
	InfoAudioCapture        uint32 = 0x00008000
	InfoVideoDisable        uint32 = 0x00010000
	InfoRail                uint32 = 0x00200000 // InfoFlagRail, RemoteApp
	InfoCompressionTypeMask uint32 = 0x00001E00
)

// ExtendedInfoFlags (TS_EXTENDED_INFO_PACKET.flags / performanceFlags of
// MS-RDPBCGR 2.2.1.11.1.1.1, used here for the client's perfFlags field).
const (
	PerfDisableWallpaper    uint32 = 0x00000001
	PerfDisableFullWindowDrag uint32 = 0x00000002
	PerfDisableMenuAnimations uint32 = 0x00000004
	PerfDisableTheming      uint32 = 0x00000008
	PerfEnableFontSmoothing uint32 = 0x00000080
	PerfEnableDesktopComposition uint32 = 0x00000100
)

// ClientInfo is the TS_INFO_PACKET the client sends during the Secure
// Settings Exchange (MS-RDPBCGR 2.2.1.11). It carries credentials, the
// working directory/alternate shell, the client timezone and an
// autologon blob when configured.
type ClientInfo struct {
	Flags          uint32
	Domain         string
	UserName       string
	Password       string
	AlternateShell string
	WorkingDir     string

	ClientAddress string // the client's local socket address; servers typically ignore it
	ClientDir     string

	TimezoneBias     int32
	TimezoneStdName  string
	TimezoneDstName  string

	PerfFlags uint32

	AutoReconnectCookie []byte
}

// Serialize encodes the Client Info PDU. When useEnhancedSecurity is
// true (TLS/HYBRID in effect) no RDP Standard Security header is
// written, per MS-RDPBCGR 2.2.1.11.1.1: "the security header MUST NOT
// be present when Enhanced RDP Security is in effect".
func (c *ClientInfo) Serialize(useEnhancedSecurity bool) []byte {
	flags := c.Flags | InfoUnicode | InfoMouse | InfoLogonNotify | InfoMaximizeShell | InfoEnableWindowsKey

	body := new(bytes.Buffer)
	writeUnicodeLenPrefixed(body, c.Domain)
	writeUnicodeLenPrefixed(body, c.UserName)
	writeUnicodeLenPrefixed(body, c.Password)
	writeUnicodeLenPrefixed(body, c.AlternateShell)
	writeUnicodeLenPrefixed(body, c.WorkingDir)

	ext := new(bytes.Buffer)
	writeFixedUnicode(ext, c.ClientAddress, 0)
	writeFixedUnicode(ext, c.ClientDir, 0)
	writeTimezone(ext, c.TimezoneBias, c.TimezoneStdName, c.TimezoneDstName)
	_ = binary.Write(ext, binary.LittleEndian, uint32(0)) // clientSessionId, reserved
	_ = binary.Write(ext, binary.LittleEndian, c.PerfFlags)
	_ = binary.Write(ext, binary.LittleEndian, uint16(len(c.AutoReconnectCookie)))
	ext.Write(c.AutoReconnectCookie)
	_ = binary.Write(ext, binary.LittleEndian, uint16(0)) // cbDynamicDSTTimeZoneKeyName
	_ = binary.Write(ext, binary.LittleEndian, uint16(0)) // dynamicDaylightTimeDisabled

	out := new(bytes.Buffer)
	if !useEnhancedSecurity {
		out.Write(WrapSecurityFlag(0x0040, nil)) // SEC_INFO_PKT, no payload appended by Wrap itself
	}
	_ = binary.Write(out, binary.LittleEndian, uint32(0)) // codePage
	_ = binary.Write(out, binary.LittleEndian, flags)
	_ = binary.Write(out, binary.LittleEndian, uint16(len(EncodeUTF16(c.Domain))))
	_ = binary.Write(out, binary.LittleEndian, uint16(len(EncodeUTF16(c.UserName))))
	_ = binary.Write(out, binary.LittleEndian, uint16(len(EncodeUTF16(c.Password))))
	_ = binary.Write(out, binary.LittleEndian, uint16(len(EncodeUTF16(c.AlternateShell))))
	_ = binary.Write(out, binary.LittleEndian, uint16(len(EncodeUTF16(c.WorkingDir))))
	out.Write(body.Bytes())
	out.Write(ext.Bytes())

	return out.Bytes()
}

func writeUnicodeLenPrefixed(buf *bytes.Buffer, s string) {
	buf.Write(EncodeUTF16(s))
	buf.Write([]byte{0, 0}) // NUL terminator
}

func writeFixedUnicode(buf *bytes.Buffer, s string, _ int) {
	enc := EncodeUTF16(s)
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(enc)+2))
	buf.Write(enc)
	buf.Write([]byte{0, 0})
}

// writeTimezone encodes a minimal TS_TIME_ZONE_INFORMATION: bias plus
// the standard/daylight name fields (64 UTF-16 code units each, as
// MS-RDPBCGR 2.2.1.11.1.1.1 requires), with zero-filled
// StandardDate/DaylightDate/StandardBias/DaylightBias since this core
// does not track DST transition rules itself.
func writeTimezone(buf *bytes.Buffer, bias int32, std, dst string) {
	_ = binary.Write(buf, binary.LittleEndian, bias)
	writeFixed64UTF16(buf, std)
	buf.Write(make([]byte, 16)) // TS_SYSTEMTIME StandardDate
	_ = binary.Write(buf, binary.LittleEndian, int32(0)) // StandardBias
	writeFixed64UTF16(buf, dst)
	buf.Write(make([]byte, 16)) // TS_SYSTEMTIME DaylightDate
	_ = binary.Write(buf, binary.LittleEndian, int32(0)) // DaylightBias
}

func writeFixed64UTF16(buf *bytes.Buffer, s string) {
	enc := EncodeUTF16(s)
	fixed := make([]byte, 64)
	copy(fixed, enc)
	buf.Write(fixed)
}
