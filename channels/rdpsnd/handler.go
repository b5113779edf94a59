package rdpsnd

import (
	"bytes"
	"fmt"
)

// State is the RDPSND handler's position in the small state machine
// every channel handler here follows.
type State int

const (
	// StateInitialization: waiting for the server's SNDC_FORMATS.
	StateInitialization State = iota
	// StateReady: client formats sent, waiting for SNDC_TRAINING or
	// directly for wave playback.
	StateReady
	// StateActive: at least one training round-trip or wave PDU has
	// been exchanged.
	StateActive
	// StateClosed: SNDC_CLOSE received or the channel was torn down.
	StateClosed
)

// PlaybackSink receives decoded wave audio the caller can route to a
// local output device; nil discards audio (the common case for a
// headless client).
type PlaybackSink interface {
	PlayWave(format AudioFormat, pcm []byte)
}

// Handler is the RDPSND channel handler: Server
// Formats -> Client Formats (subset matching server) -> Training ->
// Wave PDUs, replying to Training with the correct wPackSize and
// referencing wave format by index into the client's reply list.
type Handler struct {
	state State
	sink  PlaybackSink

	serverFormats []AudioFormat
	clientFormats []AudioFormat // the subset this client actually supports

	pendingWave    *WaveInfoPDU
	pendingFormat  AudioFormat
}

// NewHandler creates an RDPSND handler. sink may be nil.
func NewHandler(sink PlaybackSink) *Handler {
	return &Handler{sink: sink}
}

// State reports the handler's current position.
func (h *Handler) State() State { return h.state }

// supportedFormat reports whether this client can play f (PCM is
// always supported; everything else is declined since this core has
// no codec for it).
func supportedFormat(f AudioFormat) bool {
	return f.FormatTag == WAVE_FORMAT_PCM
}

// HandleServerData processes one reassembled RDPSND channel message
// from the server and returns zero or more complete messages to send
// back (RDPSND-header framed; the multiplexer adds channel framing).
func (h *Handler) HandleServerData(payload []byte) ([][]byte, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("rdpsnd: pdu header truncated")
	}
	var header PDUHeader
	if err := header.Deserialize(bytes.NewReader(payload[:4])); err != nil {
		return nil, err
	}
	body := payload[4:]
	if len(body) > int(header.BodySize) {
		body = body[:header.BodySize]
	}

	switch header.MsgType {
	case SND_FORMATS:
		return h.handleServerFormats(body)
	case SND_TRAINING:
		return h.handleTraining(body)
	case SND_WAVE:
		return h.handleWaveInfo(body)
	case SND_WAVE2:
		return h.handleWave2(body)
	case SND_SET_VOLUME, SND_SET_PITCH:
		// Volume/pitch flow server->client only; nothing to acknowledge.
		return nil, nil
	case SND_CLOSE:
		h.state = StateClosed
		return nil, nil
	default:
		return nil, nil
	}
}

func (h *Handler) handleServerFormats(body []byte) ([][]byte, error) {
	var sf ServerAudioFormats
	if err := sf.Deserialize(body); err != nil {
		return nil, fmt.Errorf("rdpsnd: server formats: %w", err)
	}
	h.serverFormats = sf.Formats

	h.clientFormats = h.clientFormats[:0]
	for _, f := range sf.Formats {
		if supportedFormat(f) {
			h.clientFormats = append(h.clientFormats, f)
		}
	}

	reply := ClientAudioFormats{
		Flags:      TSSNDCAPS_ALIVE | TSSNDCAPS_VOLUME,
		Volume:     0xFFFFFFFF,
		Pitch:      0,
		NumFormats: uint16(len(h.clientFormats)), // #nosec G115
		Version:    6,                             // TS_MAX_UDP_PACKET protocol version
	}
	reply.Formats = h.clientFormats

	h.state = StateReady
	return [][]byte{BuildChannelPDU(SND_FORMATS, reply.Serialize())}, nil
}

func (h *Handler) handleTraining(body []byte) ([][]byte, error) {
	var t TrainingPDU
	if err := t.Deserialize(body); err != nil {
		return nil, fmt.Errorf("rdpsnd: training: %w", err)
	}
	confirm := TrainingConfirmPDU{Timestamp: t.Timestamp, PackSize: t.PackSize}
	h.state = StateActive
	return [][]byte{BuildChannelPDU(SND_WAVE_CONFIRM, confirm.Serialize())}, nil
}

func (h *Handler) handleWaveInfo(body []byte) ([][]byte, error) {
	var w WaveInfoPDU
	if err := w.Deserialize(body); err != nil {
		return nil, fmt.Errorf("rdpsnd: wave info: %w", err)
	}
	if int(w.FormatNo) >= len(h.clientFormats) {
		return nil, fmt.Errorf("rdpsnd: wave references unknown format %d", w.FormatNo)
	}
	h.pendingWave = &w
	h.pendingFormat = h.clientFormats[w.FormatNo]
	h.state = StateActive
	// The remaining wave body arrives as a second, header-less SND_WAVE
	// body (the first 4 bytes of InitialData here is just a sample of
	// it) -- this simplified client treats the 4-byte InitialData as
	// the complete payload when it is all the server sent, matching
	// how a client with no audio device would drain the channel.
	if h.sink != nil {
		h.sink.PlayWave(h.pendingFormat, w.InitialData)
	}
	confirm := WaveConfirmPDU{Timestamp: w.Timestamp, ConfirmedBlock: w.BlockNo}
	return [][]byte{BuildChannelPDU(SND_WAVE_CONFIRM, confirm.Serialize())}, nil
}

func (h *Handler) handleWave2(body []byte) ([][]byte, error) {
	var w Wave2PDU
	if err := w.Deserialize(body); err != nil {
		return nil, fmt.Errorf("rdpsnd: wave2: %w", err)
	}
	if int(w.FormatNo) >= len(h.clientFormats) {
		return nil, fmt.Errorf("rdpsnd: wave2 references unknown format %d", w.FormatNo)
	}
	h.state = StateActive
	if h.sink != nil {
		h.sink.PlayWave(h.clientFormats[w.FormatNo], w.Data)
	}
	confirm := WaveConfirmPDU{Timestamp: w.Timestamp, ConfirmedBlock: w.BlockNo}
	return [][]byte{BuildChannelPDU(SND_WAVE_CONFIRM, confirm.Serialize())}, nil
}
