package dispctl

import (
	"bytes"
	"fmt"
)

// State is the DisplayControl handler's position in the small state
// machine every channel handler here follows.
type State int

const (
	// StateInitialization: waiting for the server's DISPLAYCONTROL_CAPS_PDU.
	StateInitialization State = iota
	// StateReady: caps received; the client may request layout changes.
	StateReady
	// StateActive: at least one layout change has been requested.
	StateActive
	// StateClosed: the DVC channel was closed.
	StateClosed
)

// Handler is the DisplayControl channel handler:
// carries monitor layout updates over its DVC channel. The server's
// caps bound how many monitors and how large a combined area the
// client may request.
type Handler struct {
	state State
	caps  CapsPDU
}

// NewHandler creates a DisplayControl handler.
func NewHandler() *Handler { return &Handler{} }

// State reports the handler's current position.
func (h *Handler) State() State { return h.state }

// Caps reports the server's last-announced capabilities.
func (h *Handler) Caps() CapsPDU { return h.caps }

// HandleServerData processes one DVC message from the server.
func (h *Handler) HandleServerData(payload []byte) error {
	pduType, err := ParsePDUType(payload)
	if err != nil {
		return fmt.Errorf("dispctl: %w", err)
	}
	switch pduType {
	case PDUTypeCaps:
		var c CapsPDU
		if err := c.Deserialize(bytes.NewReader(payload)); err != nil {
			return fmt.Errorf("dispctl: caps: %w", err)
		}
		h.caps = c
		h.state = StateReady
		return nil
	default:
		return fmt.Errorf("dispctl: unexpected server pdu type %#x", pduType)
	}
}

// RequestLayout builds a single-primary-monitor layout request,
// clamped to the server's announced caps, and transitions to Active.
func (h *Handler) RequestLayout(width, height uint32) []byte {
	if h.caps.MaxMonitorAreaSize > 0 && width*height > h.caps.MaxMonitorAreaSize {
		scale := h.caps.MaxMonitorAreaSize / (width * height / 100)
		width = width * scale / 100
		height = height * scale / 100
	}
	h.state = StateActive
	return NewSingleMonitorLayout(width, height).Serialize()
}
