package cliprdr

import "fmt"

// State is the CLIPRDR handler's position in the channel handshake.
type State int

const (
	// StateInitialization: waiting for Server Monitor Ready (the server
	// may also send Capabilities/TemporaryDirectory during this phase;
	// both are tolerated without advancing state).
	StateInitialization State = iota
	// StateReady: capabilities and format list have been exchanged.
	StateReady
	// StateActive: at least one Format Data Request/Response round trip
	// has happened.
	StateActive
	// StateClosed: the channel was torn down.
	StateClosed
)

// ClipboardProvider supplies the local clipboard's current contents
// when the server requests it, and receives the server's announced
// format list. A nil provider makes this client an always-empty
// clipboard peer: it still completes the handshake but never offers
// or accepts data.
type ClipboardProvider interface {
	// FormatData returns the payload for formatID, or ok=false if this
	// client doesn't currently hold that format.
	FormatData(formatID uint32) (data []byte, ok bool)
	// FormatsAnnounced reports the formats the server just announced.
	FormatsAnnounced(formats []ShortFormat)
}

// Handler is the CLIPRDR channel handler: Server
// Monitor Ready -> Capabilities Exchange -> Format List -> Format Data
// Request/Response. It accepts TemporaryDirectory at any point without
// failing the channel.
type Handler struct {
	state    State
	provider ClipboardProvider

	tempDirectory string
	serverFormats []ShortFormat
}

// NewHandler creates a CLIPRDR handler. provider may be nil.
func NewHandler(provider ClipboardProvider) *Handler {
	return &Handler{provider: provider}
}

// State reports the handler's current position.
func (h *Handler) State() State { return h.state }

// HandleServerData processes one reassembled CLIPRDR message from the
// server and returns zero or more complete PDUs to send back.
func (h *Handler) HandleServerData(payload []byte) ([][]byte, error) {
	header, body, err := ParseHeader(payload)
	if err != nil {
		return nil, err
	}

	switch header.MsgType {
	case MsgMonitorReady:
		out := [][]byte{
			BuildClipCaps(GeneralCapabilitySet{Version: 2}),
			BuildFormatList(nil), // announce no local formats yet
		}
		h.state = StateReady
		return out, nil

	case MsgClipCaps:
		// Server capabilities: this client always negotiates the short
		// format name layout, so nothing further to react to.
		return nil, nil

	case MsgTempDirectory:
		// TS_CLIPRDR_TEMP_DIRECTORY: a fixed 520-byte UTF-16 path; kept
		// only for completeness, never acted on by this core.
		h.tempDirectory = string(body)
		return nil, nil

	case MsgFormatList:
		formats := parseShortFormats(body)
		if h.provider != nil {
			h.provider.FormatsAnnounced(formats)
		}
		h.serverFormats = formats
		h.state = StateReady
		return [][]byte{BuildFormatListResponse(true)}, nil

	case MsgFormatListResponse:
		return nil, nil

	case MsgFormatDataRequest:
		if len(body) < 4 {
			return nil, fmt.Errorf("cliprdr: format data request truncated")
		}
		formatID := uint32(body[0]) | uint32(body[1])<<8 | uint32(body[2])<<16 | uint32(body[3])<<24
		h.state = StateActive
		if h.provider == nil {
			return [][]byte{BuildFormatDataResponse(false, nil)}, nil
		}
		data, ok := h.provider.FormatData(formatID)
		return [][]byte{BuildFormatDataResponse(ok, data)}, nil

	case MsgFormatDataResponse:
		h.state = StateActive
		return nil, nil

	case MsgLockClipData, MsgUnlockClipData:
		return nil, nil

	case MsgFileContentsRequest:
		// File transfer is out of scope for this core; fail cleanly
		// rather than leaving the server waiting.
		return [][]byte{buildPDU(MsgFileContentsResponse, ResponseFail, nil)}, nil

	default:
		return nil, nil
	}
}

func parseShortFormats(body []byte) []ShortFormat {
	var out []ShortFormat
	const entrySize = 4 + shortFormatNameBytes
	for offset := 0; offset+entrySize <= len(body); offset += entrySize {
		id := uint32(body[offset]) | uint32(body[offset+1])<<8 | uint32(body[offset+2])<<16 | uint32(body[offset+3])<<24
		out = append(out, ShortFormat{FormatID: id, Name: decodeUTF16LE(body[offset+4 : offset+entrySize])})
	}
	return out
}

func decodeUTF16LE(b []byte) string {
	var runes []rune
	for i := 0; i+1 < len(b); i += 2 {
		u := uint16(b[i]) | uint16(b[i+1])<<8
		if u == 0 {
			break
		}
		runes = append(runes, rune(u))
	}
	return string(runes)
}
