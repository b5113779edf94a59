package rdpdr

import "fmt"

// State is the RDPDR handler's position in the small state machine
// every channel handler here follows.
type State int

const (
	// StateInitialization: waiting for Server Announce Request.
	StateInitialization State = iota
	// StateReady: Client Announce Reply/Name Request and the Core
	// Capability exchange have both completed; the client has
	// announced its device list.
	StateReady
	// StateActive: at least one device reply or USER_LOGGEDON has
	// arrived.
	StateActive
	// StateClosed: the channel was torn down.
	StateClosed
)

// Handler is the RDPDR channel handler: Server Announce
// -> Client Announce -> Core Capability Exchange -> Device List.
// Supports USER_LOGGEDON and device removal.
type Handler struct {
	state State

	clientName string
	devices    []Device
	nextID     uint32

	capExchanged bool
}

// NewHandler creates an RDPDR handler announcing clientName and an
// initial set of redirected devices (may be empty -- this core
// redirects no local devices by default).
func NewHandler(clientName string, devices []Device) *Handler {
	h := &Handler{clientName: clientName, devices: devices}
	for _, d := range devices {
		if d.ID >= h.nextID {
			h.nextID = d.ID + 1
		}
	}
	return h
}

// State reports the handler's current position.
func (h *Handler) State() State { return h.state }

// HandleServerData processes one reassembled RDPDR message from the
// server and returns zero or more complete PDUs to send back.
func (h *Handler) HandleServerData(payload []byte) ([][]byte, error) {
	header, body, err := ParseHeader(payload)
	if err != nil {
		return nil, err
	}
	if header.Component != ComponentCore {
		// Printer-component traffic (RDPDR_CTYP_PRT): no printer
		// redirection in this core, drop silently.
		return nil, nil
	}

	switch header.PacketID {
	case PacketServerAnnounce:
		announce, err := DecodeServerAnnounce(body)
		if err != nil {
			return nil, fmt.Errorf("rdpdr: %w", err)
		}
		out := [][]byte{
			BuildClientAnnounceReply(announce.ClientID),
			BuildClientNameRequest(h.clientName),
		}
		return out, nil

	case PacketServerCapability:
		h.capExchanged = true
		caps := BuildClientCapability(GeneralCapabilitySet{
			OSType:               0, // RDPDR_OSTYPE is ignored by servers per MS-RDPEFS note
			ProtocolMajorVersion: 1,
			ProtocolMinorVersion: 13,
		})
		out := [][]byte{caps}
		if len(h.devices) > 0 || h.capExchanged {
			out = append(out, BuildDeviceListAnnounce(h.devices))
			h.state = StateReady
		}
		return out, nil

	case PacketDeviceReply:
		reply, err := DecodeDeviceReply(body)
		if err != nil {
			return nil, fmt.Errorf("rdpdr: %w", err)
		}
		_ = reply // no per-device I/O to drive in this core
		h.state = StateActive
		return nil, nil

	case PacketUserLoggedOn:
		h.state = StateActive
		return nil, nil

	case PacketDeviceIORequest:
		// Device I/O without a backing redirected filesystem/printer:
		// this core announces no devices by default, so the server
		// should never target one; tolerate it as a no-op rather than
		// fail the channel.
		return nil, nil

	default:
		return nil, nil
	}
}

// RemoveDevice announces deviceID as removed (e.g. a redirected drive
// unplugged) and drops it from the tracked device set.
func (h *Handler) RemoveDevice(deviceID uint32) []byte {
	for i, d := range h.devices {
		if d.ID == deviceID {
			h.devices = append(h.devices[:i], h.devices[i+1:]...)
			break
		}
	}
	return BuildDeviceListRemove([]uint32{deviceID})
}

// AddDevice registers a new redirected device after the initial
// handshake (e.g. hot-plugged media), assigning it the next free
// DeviceID and returning the announce PDU to send.
func (h *Handler) AddDevice(deviceType uint32, preferredName string, data []byte) []byte {
	d := Device{Type: deviceType, ID: h.nextID, PreferredName: preferredName, Data: data}
	h.nextID++
	h.devices = append(h.devices, d)
	return BuildDeviceListAnnounce([]Device{d})
}
