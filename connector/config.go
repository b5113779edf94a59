// Package connector implements the Connector: a sans-I/O finite state
// machine that drives the RDP connection sequence from the first
// X.224 byte through the Capabilities Exchange and into the Active
// phase. It owns no socket; the caller feeds it bytes via Step and
// drains the bytes/events it produces.
package connector

import "github.com/vantage-sec/rdpcore/pdu"

// SecurityProtocol is a requested/negotiated RDP security protocol,
// mirroring pdu.NegotiationProtocol's bit values.
type SecurityProtocol = pdu.NegotiationProtocol

const (
	ProtocolRDP       = pdu.NegotiationProtocolRDP
	ProtocolSSL       = pdu.NegotiationProtocolSSL
	ProtocolHybrid    = pdu.NegotiationProtocolHybrid
	ProtocolHybridEx  = pdu.NegotiationProtocolHybridEx
)

// Credentials is the Connection Configuration's credential surface:
// username is required, password/domain optional.
// This core has no smartcard/SSO path: an empty password is passed to
// NTLM as is.
type Credentials struct {
	Username string
	Password string
	Domain   string
}

// Profile holds values from the optional on-disk profile. The
// Connector does not read it: nothing in this package applies these
// values to the other Config fields.
type Profile struct {
	ClientName string `yaml:"client_name"`
	Timezone   string `yaml:"timezone"`
}

// Config is the Connection Configuration: everything the
// caller supplies before constructing a Connector.
type Config struct {
	Credentials Credentials

	// ClientName, Build and KeyboardLayout identify this client to the
	// server (TS_UD_CS_CORE fields); a zero value keeps the core data's
	// default, and ClientName is cut to 15 UTF-16 code units.
	ClientName     string
	Build          uint32
	KeyboardLayout uint32
	DPI            int

	// SecurityFloor/SecurityCeiling bound the negotiated protocol:
	// floor is the weakest protocol this client will accept, ceiling
	// the strongest it will request. Both are drawn from
	// {ProtocolRDP, ProtocolSSL, ProtocolHybrid, ProtocolHybridEx}.
	SecurityFloor   SecurityProtocol
	SecurityCeiling SecurityProtocol

	DesktopWidth, DesktopHeight uint16
	DesktopScaleFactor          uint32
	ColorDepth                  int

	Codecs        []string
	SVCChannels   []string // requested static virtual channel names, e.g. "cliprdr", "rdpdr"
	EnableRemoteApp bool

	Compression      bool
	CompressionLevel int // 0-3

	EnableServerPointer      bool
	EnableAudioPlayback      bool
	EnableClipboard          bool
	EnableDeviceRedirection  bool

	PreConnectionBlob string

	MultitransportFlags uint16

	Timezone string

	AlternateShell string
	WorkDir        string

	Autologon bool

	KdcProxyURL string

	// LocalAddress is injected into the Client Info PDU's client
	// address field. Servers typically ignore the field, and the core
	// never owns the socket to resolve an address itself, so the
	// caller supplies its own local endpoint here.
	LocalAddress string

	Profile Profile
}

// cookie returns the X.224 routing cookie derived from the
// pre-connection blob, or the username when no blob is set (the
// mstshash convention).
func (c *Config) cookie() string {
	if c.PreConnectionBlob != "" {
		return c.PreConnectionBlob
	}
	return c.Credentials.Username
}

// SessionState is the Negotiated Session State: the
// Connector's output on success, and the Active Stage's input.
type SessionState struct {
	DesktopWidth, DesktopHeight uint16
	IOChannelID                 uint16
	UserChannelID                uint16
	SVCChannels                  map[string]uint16 // name -> channel id
	Codecs                       []string
	CompressionType              uint16
	DesktopScaleFactor            uint32
	ServerCapabilities            []pdu.CapabilitySet
	ShareID                       uint32
	RemoteApp                     bool

	// CodecIDs maps each negotiated codec name (as in Codecs) to the
	// id this client self-assigned for it in its Bitmap Codecs
	// Capability Set -- the same id the server echoes back in
	// SetSurfaceBits.CodecID, which the Active Stage needs to route a
	// surface command to the right decoder.
	CodecIDs map[string]uint8
}
