package connector

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vantage-sec/rdpcore/auth"
	"github.com/vantage-sec/rdpcore/bulkcomp"
	"github.com/vantage-sec/rdpcore/framing"
	"github.com/vantage-sec/rdpcore/gcc"
	"github.com/vantage-sec/rdpcore/license"
	"github.com/vantage-sec/rdpcore/mcsmux"
	"github.com/vantage-sec/rdpcore/pdu"
	"github.com/vantage-sec/rdpcore/rdperror"
)

// credsspVersion is the CredSSP protocol version this core declares.
// Version 4 is the last version that never requires a clientNonce/hash
// scheme for pubKeyAuth binding (added in version 5), keeping the
// NTLMv2 path above free of the extra round trip that scheme needs.
const credsspVersion = 4

// CredsspSecurity is the GSS-API-shaped sealing/signing context a
// completed NTLM or Kerberos exchange hands back: everything the
// Connector needs to finish CredSSP once the negotiation token
// exchange is done. *auth.Security (NTLMv2) satisfies this directly;
// an eventual auth/kerberos adapter satisfies it too.
type CredsspSecurity interface {
	GssEncrypt(data []byte) []byte
	GssDecrypt(data []byte) []byte
}

// Connector is the sans-I/O connection-sequence FSM. Zero value is
// not usable; construct with New.
type Connector struct {
	cfg   *Config
	cache license.Cache

	state   State
	started bool
	buf     []byte

	useEnhancedSecurity bool
	selectedProtocol    SecurityProtocol

	ntlm       *auth.NTLMv2
	security   CredsspSecurity
	serverPubKey []byte

	userID      uint16
	ioChannelID uint16
	svcChannelIDs []uint16
	joinPlan    []uint16
	joinIdx     int

	shareID    uint32
	serverCaps []pdu.CapabilitySet
	codecIDs   map[string]uint8

	pendingHWID string

	session *SessionState
}

// New constructs a Connector for cfg, backed by cache for license blob
// persistence (use license.NewMemCache for a process-lifetime cache).
func New(cfg *Config, cache license.Cache) *Connector {
	return &Connector{cfg: cfg, cache: cache, state: StateConnectionInitiation}
}

// State reports the Connector's current state.
func (c *Connector) State() State { return c.state }

// Step feeds newly-received bytes into the Connector and drains
// whatever output bytes and events it produces. It never blocks: a
// partial frame is buffered internally and Step returns immediately.
func (c *Connector) Step(in []byte) ([]byte, []Event, error) {
	if c.state == StateFailed {
		return nil, nil, rdperror.New(rdperror.StateViolation, "connector already failed")
	}

	c.buf = append(c.buf, in...)

	var out []byte
	var events []Event

	if !c.started {
		c.started = true
		out = append(out, c.sendConnectionRequest()...)
	}

	for {
		switch c.state {
		case StateWaitTLSUpgrade, StateWaitCredsspToken:
			return out, events, nil

		case StateCredsspNegotiate, StateCredsspAuth:
			if len(c.buf) == 0 {
				return out, events, nil
			}
			data := c.buf
			c.buf = nil
			o, ev, err := c.stepCredssp(data)
			out = append(out, o...)
			events = append(events, ev...)
			if err != nil {
				c.state = StateFailed
				return out, events, err
			}

		default:
			frame, consumed, ferr := framing.NextFrame(c.buf)
			if ferr != nil {
				if framing.NeedMore(ferr) > 0 {
					return out, events, nil
				}
				c.state = StateFailed
				return out, events, rdperror.Wrap(rdperror.Parse, "framing", ferr)
			}
			c.buf = c.buf[consumed:]

			o, ev, err := c.handleFrame(frame)
			out = append(out, o...)
			events = append(events, ev...)
			if err != nil {
				if k, ok := rdperror.KindOf(err); ok && !k.Fatal() {
					events = append(events, Event{Kind: EventWarning, Message: err.Error()})
					continue
				}
				c.state = StateFailed
				return out, events, err
			}
			if c.state == StateActive {
				return out, events, nil
			}
		}
	}
}

// ResumeAfterTLSUpgrade continues the handshake after the caller has
// wrapped the transport in TLS. serverPubKey is the SubjectPublicKey
// of the server's TLS leaf certificate (the content of the BIT STRING
// inside its SubjectPublicKeyInfo, without the unused-bits octet), which
// CredSSP's pubKeyAuth step binds the NLA exchange to (MS-CSSP 3.1.5).
// It is ignored when the negotiated protocol is plain TLS (SSL) with
// no CredSSP stage.
func (c *Connector) ResumeAfterTLSUpgrade(serverPubKey []byte) ([]byte, []Event, error) {
	if c.state != StateWaitTLSUpgrade {
		return nil, nil, rdperror.New(rdperror.StateViolation, "not waiting for a TLS upgrade")
	}
	c.serverPubKey = serverPubKey

	if c.selectedProtocol.IsSSL() {
		c.state = StateBasicSettingsExchange
		return c.sendConnectInitial(), nil, nil
	}

	// HYBRID / HYBRID_EX: CredSSP runs next, directly over the TLS
	// stream (no TPKT/X.224 framing -- MS-CSSP TSRequests are the
	// entire wire payload).
	if c.cfg.Credentials.Domain != "" && c.cfg.KdcProxyURL != "" {
		c.state = StateWaitCredsspToken
		return nil, []Event{{Kind: EventNeedCredsspToken}}, nil
	}

	c.ntlm = auth.NewNTLMv2(c.cfg.Credentials.Domain, c.cfg.Credentials.Username, c.cfg.Credentials.Password)
	negotiateMsg := c.ntlm.GetNegotiateMessage()
	ts := auth.EncodeTSRequestWithVersion(credsspVersion, [][]byte{negotiateMsg}, nil, nil, nil)
	c.state = StateCredsspNegotiate
	return ts, nil, nil
}

// SupplyCredsspToken resumes a Kerberos-backed CredSSP exchange: token
// is the AP-REQ (or subsequent SPNEGO) blob the caller's Kerberos
// provider produced, and sec is the GSS context that provider derived
// to seal/unseal the remainder of the exchange.
func (c *Connector) SupplyCredsspToken(token []byte, sec CredsspSecurity) ([]byte, []Event, error) {
	if c.state != StateWaitCredsspToken {
		return nil, nil, rdperror.New(rdperror.StateViolation, "not waiting for a CredSSP token")
	}
	c.security = sec
	ts := auth.EncodeTSRequestWithVersion(credsspVersion, [][]byte{token}, nil, nil, nil)
	c.state = StateCredsspAuth
	return ts, nil, nil
}

// --- Connection Initiation ---

func (c *Connector) sendConnectionRequest() []byte {
	req := &pdu.ClientConnectionRequest{
		Cookie:             c.cfg.cookie(),
		NegotiationRequest: pdu.NegotiationRequest{RequestedProtocols: c.cfg.SecurityCeiling},
	}
	cr := &framing.ConnectionRequest{CRCDT: 0xE0, UserData: req.Serialize()}
	return framing.WrapSlowPath(cr.Serialize())
}

// --- per-state frame handling ---

func (c *Connector) handleFrame(frame framing.Frame) ([]byte, []Event, error) {
	switch c.state {
	case StateConnectionInitiation:
		return c.handleConnectionConfirm(frame)
	case StateBasicSettingsExchange:
		return c.handleConnectResponse(frame)
	case StateChannelConnection:
		return c.handleChannelConnection(frame)
	case StateLicensing:
		return c.handleLicensing(frame)
	case StateCapabilitiesExchange:
		return c.handleCapabilities(frame)
	case StateConnectionFinalization:
		return c.handleFinalization(frame)
	default:
		return nil, nil, rdperror.New(rdperror.StateViolation, fmt.Sprintf("unexpected frame in state %d", c.state))
	}
}

func (c *Connector) handleConnectionConfirm(frame framing.Frame) ([]byte, []Event, error) {
	if frame.Kind != framing.KindSlowPath {
		return nil, nil, rdperror.New(rdperror.Parse, "expected slow-path Connection Confirm")
	}
	// The X.224 LI of a Connection Confirm covers the negotiation
	// response, so the response is read right after the fixed header.
	wire := bytes.NewReader(frame.Payload)
	var cc framing.ConnectionConfirm
	if err := cc.Deserialize(wire); err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Parse, "x.224 connection confirm", err)
	}
	var resp pdu.ServerConnectionConfirm
	if err := resp.Deserialize(wire); err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Parse, "rdp negotiation response", err)
	}
	if resp.Type.IsFailure() {
		return nil, nil, rdperror.New(rdperror.Negotiation, fmt.Sprintf("server rejected negotiation: %s", resp.FailureCode()))
	}

	c.selectedProtocol = resp.SelectedProtocol()
	if c.selectedProtocol.IsRDP() {
		// Standard RDP Security's RC4 transport is out of scope (see
		// license.go and client_info.go doc comments); a server that
		// downgrades this far can't be driven further.
		return nil, nil, rdperror.New(rdperror.Negotiation, "server selected RDP Standard Security, unsupported")
	}
	if c.selectedProtocol < c.cfg.SecurityFloor {
		return nil, nil, rdperror.New(rdperror.Negotiation, "server protocol below configured security floor")
	}

	c.useEnhancedSecurity = true
	c.state = StateWaitTLSUpgrade
	return nil, []Event{{Kind: EventNeedTLSUpgrade}}, nil
}

// --- CredSSP (NLA) ---

func (c *Connector) stepCredssp(data []byte) ([]byte, []Event, error) {
	ts, err := auth.DecodeTSRequest(data)
	if err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Credential, "decode ts request", err)
	}

	switch c.state {
	case StateCredsspNegotiate:
		if len(ts.NegoTokens) == 0 {
			return nil, nil, rdperror.New(rdperror.Credential, "server sent no challenge token")
		}
		authMsg, sec := c.ntlm.GetAuthenticateMessage(ts.NegoTokens[0].Data)
		if sec == nil {
			return nil, nil, rdperror.New(rdperror.Credential, "ntlm challenge rejected")
		}
		c.security = sec

		pubKeyAuth := auth.ComputeClientPubKeyAuth(credsspVersion, c.serverPubKey, nil)
		wrapped := sec.GssEncrypt(pubKeyAuth)
		out := auth.EncodeTSRequestWithVersion(credsspVersion, [][]byte{authMsg}, nil, wrapped, nil)
		c.state = StateCredsspAuth
		return out, nil, nil

	case StateCredsspAuth:
		if len(ts.PubKeyAuth) == 0 {
			return nil, nil, rdperror.New(rdperror.Credential, "server sent no pubKeyAuth")
		}
		decrypted := c.security.GssDecrypt(ts.PubKeyAuth)
		clientPubKeyAuth := auth.ComputeClientPubKeyAuth(credsspVersion, c.serverPubKey, nil)
		if !auth.VerifyServerPubKeyAuth(credsspVersion, decrypted, clientPubKeyAuth, nil) {
			return nil, nil, rdperror.New(rdperror.Credential, "server pubKeyAuth verification failed")
		}

		var domain, user, pass []byte
		if c.ntlm != nil {
			domain, user, pass = c.ntlm.GetCredSSPCredentials()
		} else {
			domain = []byte(c.cfg.Credentials.Domain)
			user = []byte(c.cfg.Credentials.Username)
			pass = []byte(c.cfg.Credentials.Password)
		}
		creds := auth.EncodeCredentials(domain, user, pass)
		authInfo := c.security.GssEncrypt(creds)
		final := auth.EncodeTSRequestWithVersion(credsspVersion, nil, authInfo, nil, nil)

		c.state = StateBasicSettingsExchange
		return append(final, c.sendConnectInitial()...), nil, nil

	default:
		return nil, nil, rdperror.New(rdperror.StateViolation, "unexpected credssp step")
	}
}

// --- Basic Settings Exchange ---

func wrapX224Data(payload []byte) []byte {
	d := &framing.Data{LI: 2, DTROA: 0xF0, NREOT: 0x80, UserData: payload}
	return d.Serialize()
}

func (c *Connector) sendConnectInitial() []byte {
	uds := pdu.NewClientUserDataSet(uint32(c.selectedProtocol), c.cfg.DesktopWidth, c.cfg.DesktopHeight, c.cfg.ColorDepth, c.cfg.SVCChannels)
	core := uds.ClientCoreData
	if c.cfg.Build != 0 {
		core.ClientBuild = c.cfg.Build
	}
	if c.cfg.KeyboardLayout != 0 {
		core.KeyboardLayout = c.cfg.KeyboardLayout
	}
	if c.cfg.ClientName != "" {
		core.ClientName = [32]byte{}
		copy(core.ClientName[:30], pdu.EncodeUTF16(c.cfg.ClientName))
	}
	req := gcc.NewConferenceCreateRequest(uds.Serialize())
	initial := mcsmux.EncodeConnectInitial(req.Serialize())
	return framing.WrapSlowPath(wrapX224Data(initial))
}

func (c *Connector) handleConnectResponse(frame framing.Frame) ([]byte, []Event, error) {
	if frame.Kind != framing.KindSlowPath {
		return nil, nil, rdperror.New(rdperror.Parse, "expected slow-path MCS Connect-Response")
	}
	_, body, err := framing.ParseSlowPathPDU(frame.Payload)
	if err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Parse, "x.224 data tpdu", err)
	}
	gccUserData, err := mcsmux.DecodeConnectResponse(body)
	if err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Parse, "mcs connect response", err)
	}

	r := bytes.NewReader(gccUserData)
	var resp gcc.ConferenceCreateResponse
	if err := resp.Deserialize(r); err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Parse, "gcc conference create response", err)
	}
	// The server's GCC user data blocks (ServerCoreData, ServerSecurityData,
	// ServerNetworkData, ...) immediately follow in the same reader.
	var serverData pdu.ServerUserData
	if err := serverData.Deserialize(r); err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Parse, "gcc server user data", err)
	}
	if serverData.ServerNetworkData == nil {
		return nil, nil, rdperror.New(rdperror.Parse, "server user data missing network data")
	}
	c.ioChannelID = serverData.ServerNetworkData.MCSChannelId
	c.svcChannelIDs = serverData.ServerNetworkData.ChannelIdArray

	out := framing.WrapSlowPath(wrapX224Data(mcsmux.EncodeErectDomainRequest()))
	out = append(out, framing.WrapSlowPath(wrapX224Data(mcsmux.EncodeAttachUserRequest()))...)
	c.state = StateChannelConnection
	return out, nil, nil
}

// --- Channel Connection ---

func (c *Connector) handleChannelConnection(frame framing.Frame) ([]byte, []Event, error) {
	if frame.Kind != framing.KindSlowPath {
		return nil, nil, rdperror.New(rdperror.Parse, "expected slow-path MCS domain PDU")
	}
	_, body, err := framing.ParseSlowPathPDU(frame.Payload)
	if err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Parse, "x.224 data tpdu", err)
	}

	if c.joinPlan == nil {
		userID, err := mcsmux.DecodeAttachUserConfirm(body)
		if err != nil {
			return nil, nil, rdperror.Wrap(rdperror.Parse, "attach user confirm", err)
		}
		c.userID = userID
		c.joinPlan = append([]uint16{userID, c.ioChannelID}, c.svcChannelIDs...)
		c.joinIdx = 0
		return framing.WrapSlowPath(wrapX224Data(mcsmux.EncodeChannelJoinRequest(c.userID, c.joinPlan[0]))), nil, nil
	}

	if _, err := mcsmux.DecodeChannelJoinConfirm(body); err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Channel, "channel join confirm", err)
	}
	c.joinIdx++
	if c.joinIdx < len(c.joinPlan) {
		return framing.WrapSlowPath(wrapX224Data(mcsmux.EncodeChannelJoinRequest(c.userID, c.joinPlan[c.joinIdx]))), nil, nil
	}

	// All channels joined; send Client Info to start Secure Settings
	// Exchange, then fall straight into Licensing.
	info := &pdu.ClientInfo{
		Domain:         c.cfg.Credentials.Domain,
		UserName:       c.cfg.Credentials.Username,
		Password:       c.cfg.Credentials.Password,
		AlternateShell: c.cfg.AlternateShell,
		WorkingDir:     c.cfg.WorkDir,
		ClientAddress:  c.cfg.LocalAddress,
		ClientDir:      "C:\\Windows\\System32\\mstscax.dll",
	}
	if c.cfg.Autologon {
		info.Flags |= pdu.InfoAutologon
	}
	out := c.sendIOChannel(info.Serialize(c.useEnhancedSecurity))
	c.state = StateLicensing
	return out, nil, nil
}

func (c *Connector) sendIOChannel(payload []byte) []byte {
	return framing.WrapSlowPath(wrapX224Data(mcsmux.EncodeSendDataRequest(c.userID, c.ioChannelID, payload)))
}

// readApplicationPDU unwraps the MCS Send Data Indication/Request
// every post-join server message arrives as, returning its raw bytes.
func (c *Connector) readApplicationPDU(frame framing.Frame) ([]byte, error) {
	if frame.Kind != framing.KindSlowPath {
		return nil, rdperror.New(rdperror.Parse, "expected slow-path application PDU")
	}
	_, body, err := framing.ParseSlowPathPDU(frame.Payload)
	if err != nil {
		return nil, rdperror.Wrap(rdperror.Parse, "x.224 data tpdu", err)
	}
	if mcsmux.IsDisconnectUltimatum(body) {
		return nil, rdperror.New(rdperror.StateViolation, "server sent disconnect ultimatum")
	}
	sd, err := mcsmux.DecodeSendData(body)
	if err != nil {
		return nil, rdperror.Wrap(rdperror.Parse, "mcs send data", err)
	}
	return sd.Payload, nil
}

// --- Licensing ---

// looksLikeLicensePDU distinguishes a licensing message from a Server
// Demand Active sharing the same Send Data channel: every licensing
// message is preceded by a 4-byte RDP Security Header whose second
// pair of bytes (flagsHi) is always zero (pdu.WrapSecurityFlag
// never sets it), while a Share Control Header's corresponding bytes
// are its PDUType field (0x0011 for Demand Active and never zero).
func looksLikeLicensePDU(body []byte) bool {
	if len(body) < 4 {
		return false
	}
	flags := binary.LittleEndian.Uint16(body[0:2])
	flagsHi := binary.LittleEndian.Uint16(body[2:4])
	const secLicensePkt = 0x0080
	return flagsHi == 0 && flags&secLicensePkt != 0
}

func (c *Connector) handleLicensing(frame framing.Frame) ([]byte, []Event, error) {
	payload, err := c.readApplicationPDU(frame)
	if err != nil {
		return nil, nil, err
	}
	if !looksLikeLicensePDU(payload) {
		// Server skipped licensing entirely; this is already the
		// Server Demand Active.
		return c.handleDemandActive(payload)
	}

	r := bytes.NewReader(payload)
	if _, err := skipSecurityHeader(r); err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Parse, "license security header", err)
	}
	var preamble pdu.LicensingPreamble
	if err := preamble.Deserialize(r); err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Parse, "license preamble", err)
	}

	switch preamble.MsgType {
	case pdu.MsgTypeLicenseRequest:
		var req pdu.ServerLicenseRequest
		if err := req.Deserialize(r); err != nil {
			return nil, nil, rdperror.Wrap(rdperror.Parse, "server license request", err)
		}
		hwid := req.HWID()
		c.pendingHWID = hwid
		events := []Event{{Kind: EventLicenseCacheLookup, HWID: hwid}}
		if blob, ok := c.cache.Lookup(hwid); ok {
			events[0].Hit = true
			return c.sendIOChannel(pdu.EncodeClientLicenseInfo(blob)), events, nil
		}
		return c.sendIOChannel(pdu.EncodeClientNewLicenseRequest(c.cfg.Credentials.Username, c.cfg.ClientName)), events, nil

	case pdu.MsgTypePlatformChallenge:
		// The platform challenge response's MAC is keyed from the
		// Standard RDP Security master secret this core never
		// derives (see client_info.go); replying with an empty
		// CLIENT_LICENSE_INFO blob is enough to keep xrdp and most
		// test servers moving forward to issuing a fresh license.
		events := []Event{{Kind: EventWarning, Message: "license platform challenge not implemented, replying empty"}}
		return c.sendIOChannel(pdu.EncodeClientLicenseInfo(nil)), events, nil

	case pdu.MsgTypeNewLicense, pdu.MsgTypeUpgradeLicense:
		var lic pdu.ServerUpgradeOrNewLicense
		if err := lic.Deserialize(r); err != nil {
			return nil, nil, rdperror.Wrap(rdperror.Parse, "server new/upgrade license", err)
		}
		c.cache.Store(c.pendingHWID, lic.EncryptedLicenseInfo.BlobData)
		c.state = StateCapabilitiesExchange
		return nil, []Event{{Kind: EventLicenseCacheStore, HWID: c.pendingHWID}}, nil

	case pdu.MsgTypeErrorAlert:
		var msg pdu.LicensingErrorMessage
		if err := msg.Deserialize(r); err != nil {
			return nil, nil, rdperror.Wrap(rdperror.Parse, "license error message", err)
		}
		const statusValidClient = 0x00000007
		if msg.ErrorCode == statusValidClient {
			c.state = StateCapabilitiesExchange
			return nil, nil, nil
		}
		return nil, nil, rdperror.New(rdperror.Credential, fmt.Sprintf("license error code 0x%08x", msg.ErrorCode))

	default:
		return nil, nil, rdperror.New(rdperror.Parse, fmt.Sprintf("unexpected license message type 0x%02x", preamble.MsgType))
	}
}

func skipSecurityHeader(r *bytes.Reader) (uint16, error) {
	var flags, flagsHi uint16
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return 0, err
	}
	if err := binary.Read(r, binary.LittleEndian, &flagsHi); err != nil {
		return 0, err
	}
	return flags, nil
}

// --- Capabilities Exchange ---

func (c *Connector) handleCapabilities(frame framing.Frame) ([]byte, []Event, error) {
	payload, err := c.readApplicationPDU(frame)
	if err != nil {
		return nil, nil, err
	}
	return c.handleDemandActive(payload)
}

func (c *Connector) handleDemandActive(payload []byte) ([]byte, []Event, error) {
	var demand pdu.ServerDemandActive
	if err := demand.Deserialize(bytes.NewReader(payload)); err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Capability, "server demand active", err)
	}
	c.shareID = demand.ShareID
	c.serverCaps = demand.CapabilitySets

	confirm := pdu.NewClientConfirmActive(demand.ShareID, c.userID, c.cfg.DesktopWidth, c.cfg.DesktopHeight, c.cfg.EnableRemoteApp)

	codecs := c.cfg.Codecs
	if len(codecs) == 0 {
		codecs = []string{"nscodec", "remotefx"}
	}
	bitmapCodecs, codecIDs := pdu.NewBitmapCodecsCapabilitySetForCodecs(codecs)
	c.codecIDs = codecIDs
	confirm.CapabilitySets = append(confirm.CapabilitySets,
		pdu.NewSurfaceCommandsCapabilitySet(),
		bitmapCodecs,
	)
	for i, cs := range confirm.CapabilitySets {
		if cs.CapabilitySetType == pdu.CapabilitySetTypeMultifragmentUpdate && cs.MultifragmentUpdateCapabilitySet != nil {
			// Large enough for a full-desktop RemoteFX/Progressive tile
			// burst in one Surface Command.
			confirm.CapabilitySets[i].MultifragmentUpdateCapabilitySet.MaxRequestSize = 0x200000
		}
	}

	out := c.sendIOChannel(confirm.Serialize())
	out = append(out, c.sendIOChannel(pdu.NewSynchronize(c.shareID, c.userID).Serialize())...)
	out = append(out, c.sendIOChannel(pdu.NewControl(c.shareID, c.userID, pdu.ControlActionCooperate).Serialize())...)
	out = append(out, c.sendIOChannel(pdu.NewControl(c.shareID, c.userID, pdu.ControlActionRequestControl).Serialize())...)
	out = append(out, c.sendIOChannel(pdu.NewFontList(c.shareID, c.userID).Serialize())...)

	c.state = StateConnectionFinalization
	return out, nil, nil
}

// --- Connection Finalization ---

func (c *Connector) handleFinalization(frame framing.Frame) ([]byte, []Event, error) {
	payload, err := c.readApplicationPDU(frame)
	if err != nil {
		return nil, nil, err
	}

	var d pdu.Data
	if err := d.Deserialize(bytes.NewReader(payload)); err != nil {
		if errors.Is(err, pdu.ErrDeactivateAll) {
			return nil, nil, rdperror.New(rdperror.StateViolation, "server deactivated session during finalization")
		}
		return nil, nil, rdperror.Wrap(rdperror.Parse, "finalization share data pdu", err)
	}

	if d.FontMapPDUData == nil {
		// Synchronize/Control echoes: nothing to do yet.
		return nil, nil, nil
	}

	session := &SessionState{
		DesktopWidth:       c.cfg.DesktopWidth,
		DesktopHeight:      c.cfg.DesktopHeight,
		IOChannelID:        c.ioChannelID,
		UserChannelID:      c.userID,
		SVCChannels:        c.svcChannelMap(),
		Codecs:             c.cfg.Codecs,
		CompressionType:    c.negotiatedCompressionType(),
		DesktopScaleFactor: c.cfg.DesktopScaleFactor,
		ServerCapabilities: c.serverCaps,
		ShareID:            c.shareID,
		RemoteApp:          c.cfg.EnableRemoteApp,
		CodecIDs:           c.codecIDs,
	}
	c.session = session
	c.state = StateActive
	return nil, []Event{{Kind: EventConnected, Session: session}}, nil
}

func (c *Connector) svcChannelMap() map[string]uint16 {
	m := make(map[string]uint16, len(c.cfg.SVCChannels))
	for i, name := range c.cfg.SVCChannels {
		if i < len(c.svcChannelIDs) {
			m[name] = c.svcChannelIDs[i]
		}
	}
	return m
}

func (c *Connector) negotiatedCompressionType() uint16 {
	if !c.cfg.Compression {
		return uint16(bulkcomp.TypeNone)
	}
	switch c.cfg.CompressionLevel {
	case 1:
		return uint16(bulkcomp.TypeMPPC64K)
	case 2:
		return uint16(bulkcomp.TypeNCRUSH)
	case 3:
		return uint16(bulkcomp.TypeXCRUSH)
	default:
		return uint16(bulkcomp.TypeMPPC8K)
	}
}

// Session returns the Negotiated Session State once StateActive has
// been reached, or nil before then.
func (c *Connector) Session() *SessionState { return c.session }
