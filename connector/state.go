package connector

// State is the Connector's sans-I/O state. Transitions
// are strictly forward except into StateFailed, which is terminal.
type State int

const (
	// StateConnectionInitiation: client has sent (or is about to send)
	// the X.224 Connection Request and is waiting for the Connection
	// Confirm carrying the server's selected security protocol.
	StateConnectionInitiation State = iota

	// StateWaitTLSUpgrade: the server selected a protocol requiring
	// TLS. The Connector has emitted EventNeedTLSUpgrade and is
	// suspended until the caller performs the TLS handshake and calls
	// ResumeAfterTLSUpgrade.
	StateWaitTLSUpgrade

	// StateCredsspNegotiate: CredSSP (NLA) in progress, local NTLMv2 --
	// waiting for the server's NTLM Challenge message wrapped in a
	// TSRequest.
	StateCredsspNegotiate

	// StateCredsspAuth: NTLM Authenticate message sent; waiting for the
	// server's pubKeyAuth confirmation TSRequest.
	StateCredsspAuth

	// StateWaitCredsspToken: Kerberos is viable (domain credentials and
	// a configured KDC proxy). The Connector has emitted
	// EventNeedCredsspToken and is suspended until the caller calls
	// SupplyCredsspToken with the AP-REQ token and a Security adapter.
	StateWaitCredsspToken

	// StateBasicSettingsExchange: MCS Connect-Initial sent, waiting for
	// Connect-Response (carrying the GCC server data blocks).
	StateBasicSettingsExchange

	// StateChannelConnection: Erect Domain Request + Attach User
	// Request sent, waiting for Attach User Confirm, followed by the
	// per-channel Channel Join Request/Confirm loop.
	StateChannelConnection

	// StateLicensing: Client Info sent; processing the MS-RDPELE
	// licensing exchange (or, when the server skips licensing
	// entirely, the first frame here is already the Demand Active).
	StateLicensing

	// StateCapabilitiesExchange: licensing complete, waiting
	// specifically for the Server Demand Active.
	StateCapabilitiesExchange

	// StateConnectionFinalization: Confirm Active/Synchronize/
	// Control/Font List sent, waiting for the server's Font Map to
	// declare the handshake complete.
	StateConnectionFinalization

	// StateActive: handshake complete. Further server bytes go to the
	// Active Session Processor; a frame passed to Step in this state is
	// rejected as a StateViolation error.
	StateActive

	// StateFailed is terminal: a fatal error occurred and the
	// Connector will not process further input.
	StateFailed
)
