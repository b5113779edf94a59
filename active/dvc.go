package active

import (
	"bytes"
	"fmt"

	"github.com/vantage-sec/rdpcore/channels/dispctl"
	"github.com/vantage-sec/rdpcore/channels/drdynvc"
	"github.com/vantage-sec/rdpcore/channels/echo"
)

// dvcChannel is one row of the DVC table: the state of a single
// dynamic virtual channel created over DRDYNVC.
type dvcChannel struct {
	id   uint32
	name string
	open bool

	reassembling bool
	declaredLen  int
	buf          []byte

	dispctl *dispctl.Handler
	echo    *echo.Handler
}

// dvcTable multiplexes DRDYNVC's sub-channels: the version negotiated
// in Capabilities, the known channel names this core knows how to
// drive, and the per-channel fragment reassembly DYNVC_DATA_FIRST/
// DYNVC_DATA pairs require.
type dvcTable struct {
	capsVersion uint16
	capsDone    bool

	channels map[uint32]*dvcChannel
	zgfx     *drdynvc.ZGFXDecompressor
}

func newDVCTable() *dvcTable {
	return &dvcTable{
		channels: make(map[uint32]*dvcChannel),
		zgfx:     drdynvc.NewZGFXDecompressor(),
	}
}

// newDVCChannel builds an open table row for channel id, attaching the
// DisplayControl or Echo handler when name is one this core services.
func newDVCChannel(id uint32, name string) *dvcChannel {
	ch := &dvcChannel{id: id, name: name, open: true}
	switch name {
	case dispctl.ChannelName:
		ch.dispctl = dispctl.NewHandler()
	case echo.ChannelName:
		ch.echo = echo.NewHandler()
	}
	return ch
}

// handleMessage processes one fully SVC-reassembled DRDYNVC-layer
// message (already stripped of CHANNEL_PDU_HEADER by the Mux) and
// returns the raw DRDYNVC reply messages to send back over the
// "drdynvc" SVC, plus any caller-facing events.
func (t *dvcTable) handleMessage(raw []byte) ([][]byte, []Event, error) {
	if len(raw) < 1 {
		return nil, nil, fmt.Errorf("active: empty drdynvc message")
	}
	var hdr drdynvc.Header
	hdr.Deserialize(raw[0])
	body := raw[1:]

	switch hdr.Cmd {
	case drdynvc.CmdCapability:
		var caps drdynvc.CapsPDU
		if err := caps.Deserialize(bytes.NewReader(raw)); err != nil {
			return nil, nil, fmt.Errorf("active: drdynvc caps: %w", err)
		}
		t.capsVersion = caps.Version
		t.capsDone = true
		reply := drdynvc.CapsPDU{Version: caps.Version}
		return [][]byte{reply.Serialize()}, nil, nil

	case drdynvc.CmdCreate:
		if !t.capsDone {
			// Create before Capabilities: operate at version 2, the
			// highest level that needs no priority-charge handling.
			t.capsVersion = drdynvc.CapsVersion2
			t.capsDone = true
		}
		var req drdynvc.CreateRequestPDU
		if err := req.Deserialize(body, hdr.CbChID); err != nil {
			return nil, nil, fmt.Errorf("active: drdynvc create request: %w", err)
		}
		resp := drdynvc.CreateResponsePDU{ChannelID: req.ChannelID}
		switch req.ChannelName {
		case dispctl.ChannelName, echo.ChannelName:
			t.channels[req.ChannelID] = newDVCChannel(req.ChannelID, req.ChannelName)
			resp.CreationCode = drdynvc.CreateResultOK
		default:
			resp.CreationCode = drdynvc.CreateResultNoListener
		}
		return [][]byte{resp.Serialize()}, nil, nil

	case drdynvc.CmdClose:
		channelID, _, err := drdynvc.ReadChannelID(body, hdr.CbChID)
		if err != nil {
			return nil, nil, fmt.Errorf("active: drdynvc close: %w", err)
		}
		delete(t.channels, channelID)
		return nil, nil, nil

	case drdynvc.CmdDataFirst, drdynvc.CmdData:
		return t.handleData(hdr, body, false)

	case drdynvc.CmdDataFirstCmp, drdynvc.CmdDataCmp:
		return t.handleData(hdr, body, true)

	case drdynvc.CmdSoftSync:
		// Transport soft-sync (RDP8 UDP/TCP transition): not
		// implemented by this core, which never negotiates a UDP
		// transport leg. Tolerated as a no-op.
		return nil, nil, nil

	default:
		return nil, nil, nil
	}
}

func (t *dvcTable) handleData(hdr drdynvc.Header, body []byte, compressed bool) ([][]byte, []Event, error) {
	var channelID uint32
	var payload []byte

	first := hdr.Cmd == drdynvc.CmdDataFirst || hdr.Cmd == drdynvc.CmdDataFirstCmp
	var declaredLen int
	if first {
		var d drdynvc.DataFirstPDU
		if err := d.Deserialize(body, hdr.CbChID, hdr.Sp); err != nil {
			return nil, nil, fmt.Errorf("active: drdynvc data-first: %w", err)
		}
		channelID, payload = d.ChannelID, d.Data
		declaredLen = int(d.Length)
	} else {
		var d drdynvc.DataPDU
		if err := d.Deserialize(body, hdr.CbChID); err != nil {
			return nil, nil, fmt.Errorf("active: drdynvc data: %w", err)
		}
		channelID, payload = d.ChannelID, d.Data
	}

	if compressed {
		decoded, err := t.zgfx.Decompress(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("active: drdynvc zgfx: %w", err)
		}
		payload = decoded
	}

	ch, ok := t.channels[channelID]
	if !ok {
		return nil, nil, nil // unknown/already-closed channel, drop
	}

	if first {
		ch.reassembling = true
		ch.declaredLen = declaredLen
		ch.buf = append([]byte(nil), payload...)
		if len(ch.buf) < ch.declaredLen {
			return nil, nil, nil
		}
		// Degenerate DATA_FIRST carrying the whole payload.
		payload = ch.buf
		ch.buf = nil
		ch.reassembling = false
		return t.dispatch(ch, payload)
	}
	if ch.reassembling {
		ch.buf = append(ch.buf, payload...)
		if len(ch.buf) < ch.declaredLen {
			return nil, nil, nil
		}
		payload = ch.buf
		ch.buf = nil
		ch.reassembling = false
	}

	return t.dispatch(ch, payload)
}

func (t *dvcTable) dispatch(ch *dvcChannel, payload []byte) ([][]byte, []Event, error) {
	switch ch.name {
	case dispctl.ChannelName:
		if err := ch.dispctl.HandleServerData(payload); err != nil {
			return nil, []Event{{Kind: EventWarning, Message: err.Error()}}, nil
		}
		return nil, nil, nil

	case echo.ChannelName:
		replies, err := ch.echo.HandleServerData(payload)
		if err != nil {
			return nil, []Event{{Kind: EventWarning, Message: err.Error()}}, nil
		}
		out := make([][]byte, 0, len(replies))
		for _, r := range replies {
			data := drdynvc.DataPDU{ChannelID: ch.id, Data: r}
			out = append(out, data.Serialize())
		}
		return out, []Event{{Kind: EventDvcData, DvcID: ch.id, DvcName: ch.name, Payload: payload}}, nil

	default:
		return nil, []Event{{Kind: EventDvcData, DvcID: ch.id, DvcName: ch.name, Payload: payload}}, nil
	}
}

// requestDisplayLayout builds a DisplayControl monitor layout request
// for the named channel if it's open, or nil if DisplayControl hasn't
// been created yet.
func (t *dvcTable) requestDisplayLayout(width, height uint32) []byte {
	for _, ch := range t.channels {
		if ch.name == dispctl.ChannelName && ch.dispctl != nil {
			payload := ch.dispctl.RequestLayout(width, height)
			data := drdynvc.DataPDU{ChannelID: ch.id, Data: payload}
			return data.Serialize()
		}
	}
	return nil
}
