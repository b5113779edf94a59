package rail

import "fmt"

// State is the RAIL handler's position in the channel handshake.
type State int

const (
	// StateInitialization: waiting for the server's Handshake.
	StateInitialization State = iota
	// StateReady: handshake done, Execute sent.
	StateReady
	// StateActive: the server acknowledged the Execute.
	StateActive
	// StateClosed: the channel was torn down.
	StateClosed
)

// Handler drives the RAIL channel: server Handshake -> client
// Handshake + ClientStatus + Execute -> ExecResult. Window and
// notification orders after that are ignored: HandleServerData returns
// no replies for them and does not pass them on.
type Handler struct {
	state State

	app     string
	workDir string
	args    string

	lastExecResult *ExecResult
}

// NewHandler creates a RAIL handler that will ask the server to launch
// app (with workDir/args) once the handshake completes.
func NewHandler(app, workDir, args string) *Handler {
	return &Handler{app: app, workDir: workDir, args: args}
}

// State reports the handler's current position.
func (h *Handler) State() State { return h.state }

// LastExecResult returns the most recent Execute acknowledgement, or
// nil before the server replied.
func (h *Handler) LastExecResult() *ExecResult { return h.lastExecResult }

// clientBuildNumber is the build number sent in the client Handshake.
const clientBuildNumber = 0x00001DB0

// HandleServerData processes one reassembled RAIL PDU and returns zero
// or more PDUs to send back.
func (h *Handler) HandleServerData(payload []byte) ([][]byte, error) {
	header, body, err := ParseHeader(payload)
	if err != nil {
		return nil, err
	}

	switch header.OrderType {
	case OrderHandshake, OrderHandshakeEx:
		if h.state != StateInitialization {
			return nil, nil // repeated handshake after reactivation, ignore
		}
		h.state = StateReady
		return [][]byte{
			BuildHandshake(clientBuildNumber),
			BuildClientStatus(StatusAllowLocalMoveSize),
			BuildClientExecute(h.app, h.workDir, h.args),
		}, nil

	case OrderExecResult:
		result, err := ParseExecResult(body)
		if err != nil {
			return nil, fmt.Errorf("rail: exec result: %w", err)
		}
		h.lastExecResult = &result
		if result.ExecResult == ExecResultOK {
			h.state = StateActive
		}
		return nil, nil

	case OrderSysParam:
		// Server system parameters (high-contrast, caret width, ...):
		// informational only.
		return nil, nil

	default:
		return nil, nil
	}
}
