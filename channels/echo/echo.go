// Package echo implements the Echo dynamic virtual channel: a trivial
// symmetric request/response protocol used to probe session liveness.
// Each message is an opaque payload the peer echoes back verbatim.
package echo

// ChannelName is the dynamic virtual channel name this core requests.
const ChannelName = "ECHO"

// State is the Echo handler's position in the channel lifecycle.
type State int

const (
	// StateInitialization: the DVC channel has just been created.
	StateInitialization State = iota
	// StateReady: at least one echo round trip has completed.
	StateReady
	// StateActive is identical to StateReady for this channel -- echo
	// has no further phase beyond request/response -- kept distinct so
	// callers inspecting State() see the same four-state vocabulary
	// every other channel handler exposes.
	StateActive
	// StateClosed: the DVC channel was closed.
	StateClosed
)

// Handler is the Echo channel handler: whatever the server sends is
// handed back unchanged, and the client can originate its own probes.
type Handler struct {
	state State
}

// NewHandler creates an Echo handler.
func NewHandler() *Handler { return &Handler{state: StateInitialization} }

// State reports the handler's current position.
func (h *Handler) State() State { return h.state }

// HandleServerData processes one message from the server and returns
// the same bytes to echo back.
func (h *Handler) HandleServerData(payload []byte) ([][]byte, error) {
	h.state = StateReady
	echoed := make([]byte, len(payload))
	copy(echoed, payload)
	return [][]byte{echoed}, nil
}

// Probe builds a client-originated liveness probe carrying payload.
func (h *Handler) Probe(payload []byte) []byte {
	h.state = StateActive
	out := make([]byte, len(payload))
	copy(out, payload)
	return out
}
