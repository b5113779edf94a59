// Package active implements the Active Stage: a sans-I/O state
// machine consuming server PDUs once the Connector has
// handed off a SessionState. It decodes Fast-Path and slow-path
// traffic, routes Static/Dynamic Virtual Channel payloads to the
// channel handlers in channels/*, feeds the graphics pipeline, and
// maintains the Decoded Image surface -- mirroring the Connector's own
// Step(in) -> (out, events, err) shape so a caller drives both engines
// identically.
package active

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/vantage-sec/rdpcore/bulkcomp"
	"github.com/vantage-sec/rdpcore/channels/cliprdr"
	"github.com/vantage-sec/rdpcore/channels/rail"
	"github.com/vantage-sec/rdpcore/channels/rdpdr"
	"github.com/vantage-sec/rdpcore/channels/rdpsnd"
	"github.com/vantage-sec/rdpcore/connector"
	"github.com/vantage-sec/rdpcore/framing"
	"github.com/vantage-sec/rdpcore/graphics"
	"github.com/vantage-sec/rdpcore/mcsmux"
	"github.com/vantage-sec/rdpcore/pdu"
	"github.com/vantage-sec/rdpcore/rdpemt"
	"github.com/vantage-sec/rdpcore/rdperror"
)

// codecNameToID maps the negotiated codec names (connector.Config.Codecs
// / pdu.NewBitmapCodecsCapabilitySetForCodecs) to the graphics.CodecID
// the Pipeline dispatches on.
var codecNameToID = map[string]graphics.CodecID{
	"nscodec":     graphics.CodecNSCodec,
	"remotefx":    graphics.CodecRemoteFX,
	"progressive": graphics.CodecProgressive,
	"qoi":         graphics.CodecQOI,
	"qoiz":        graphics.CodecQOIZ,
	"avc420":      graphics.CodecAVC420,
	"avc444":      graphics.CodecAVC444,
}

// Processor is the Active Stage. One Processor is constructed per
// session immediately after connector.EventConnected, from the
// SessionState that event carries.
type Processor struct {
	session *connector.SessionState
	state   State

	buf []byte

	mux      *mcsmux.Mux
	pipeline *graphics.Pipeline
	dvc      *dvcTable

	codecIDToName map[uint8]graphics.CodecID

	cliprdr *cliprdr.Handler
	rdpdr   *rdpdr.Handler
	rdpsnd  *rdpsnd.Handler

	// Fast-Path update fragment reassembly: a single logical update
	// (e.g. one large bitmap) can be split FIRST/NEXT.../LAST across
	// several TS_FP_UPDATE entries.
	fpFragActive bool
	fpFragCode   pdu.FastPathUpdateCode
	fpFragBuf    []byte

	// fpHistory is the bulk-compression sliding window for Fast-Path
	// output updates; MS-RDPBCGR keeps it separate from the per-channel
	// SVC histories the Mux owns.
	fpHistory *bulkcomp.History

	// reactW/reactH cache the most recent reactivation Demand Active's
	// advertised desktop size, surfaced on EventReactivated once Font
	// Map closes the sequence.
	reactW, reactH uint16

	rail *rail.Handler
}

// NewProcessor creates a Processor over session. img is the Decoded
// Image surface the caller owns; it's sized from session's desktop
// dimensions by the caller (typically graphics.NewImage(session.
// DesktopWidth, session.DesktopHeight)).
func NewProcessor(session *connector.SessionState, img *graphics.Image) *Processor {
	mux := mcsmux.New()
	mux.SetCompressionType(bulkcomp.Type(session.CompressionType))
	for name, id := range session.SVCChannels {
		mux.AddChannel(mcsmux.Descriptor{Name: name, ID: id})
	}

	codecIDToName := make(map[uint8]graphics.CodecID, len(session.CodecIDs))
	for name, id := range session.CodecIDs {
		if cid, ok := codecNameToID[name]; ok {
			codecIDToName[id] = cid
		}
	}

	return &Processor{
		session:       session,
		state:         StateRunning,
		mux:           mux,
		pipeline:      graphics.NewPipeline(img),
		dvc:           newDVCTable(),
		codecIDToName: codecIDToName,
		fpHistory:     bulkcomp.NewHistory(bulkcomp.HistoryCapacity(bulkcomp.Type(session.CompressionType))),
	}
}

// Image returns the Decoded Image surface the Pipeline composites
// into; the caller reads pixels from it after draining a
// GraphicsUpdate event.
func (p *Processor) Image() *graphics.Image { return p.pipeline.Image }

// State reports the Processor's current position.
func (p *Processor) State() State { return p.state }

// SetH264Decoder injects the AVC420/AVC444 NAL decoder port.
func (p *Processor) SetH264Decoder(d graphics.H264Decoder) { p.pipeline.SetH264Decoder(d) }

// SetAVC444Cutoff overrides the AVC444 chroma-reconstruction cutoff.
func (p *Processor) SetAVC444Cutoff(cutoff uint8) { p.pipeline.SetAVC444Cutoff(cutoff) }

// EnableClipboard activates the CLIPRDR handler for this session
// (no-op if "cliprdr" wasn't negotiated as a static channel).
func (p *Processor) EnableClipboard(provider cliprdr.ClipboardProvider) {
	if _, ok := p.session.SVCChannels["cliprdr"]; ok {
		p.cliprdr = cliprdr.NewHandler(provider)
	}
}

// EnableDeviceRedirection activates the RDPDR handler, announcing
// devices (may be empty -- this core redirects no local devices by
// default).
func (p *Processor) EnableDeviceRedirection(clientName string, devices []rdpdr.Device) {
	if _, ok := p.session.SVCChannels["rdpdr"]; ok {
		p.rdpdr = rdpdr.NewHandler(clientName, devices)
	}
}

// EnableAudioPlayback activates the RDPSND handler.
func (p *Processor) EnableAudioPlayback(sink rdpsnd.PlaybackSink) {
	if _, ok := p.session.SVCChannels["rdpsnd"]; ok {
		p.rdpsnd = rdpsnd.NewHandler(sink)
	}
}

// EnableRemoteApp activates the RAIL handler, asking the server to
// launch app once the channel handshake completes (no-op unless the
// session was negotiated with RemoteApp and a "rail" channel).
func (p *Processor) EnableRemoteApp(app, workDir, args string) {
	if _, ok := p.session.SVCChannels[rail.ChannelName]; ok && p.session.RemoteApp {
		p.rail = rail.NewHandler(app, workDir, args)
	}
}

// Process feeds newly-received bytes into the Processor and drains
// whatever output bytes and events it produces. It
// never blocks: NextFrame's NeedMore condition just stops the loop
// until more bytes arrive.
func (p *Processor) Process(in []byte) ([]byte, []Event, error) {
	if p.state == StateTerminated {
		return nil, nil, rdperror.New(rdperror.StateViolation, "active stage already terminated")
	}

	p.buf = append(p.buf, in...)

	var out []byte
	var events []Event

	for {
		frame, consumed, err := framing.NextFrame(p.buf)
		if err != nil {
			if framing.NeedMore(err) > 0 {
				break
			}
			return out, events, p.fail(err)
		}
		p.buf = p.buf[consumed:]

		var fOut []byte
		var fEvents []Event
		var ferr error
		if frame.Kind == framing.KindFastPath {
			fOut, fEvents, ferr = p.handleFastPath(frame)
		} else {
			fOut, fEvents, ferr = p.handleSlowPath(frame)
		}
		out = append(out, fOut...)
		events = append(events, fEvents...)
		if ferr != nil {
			return out, events, p.fail(ferr)
		}
		if p.state == StateTerminated {
			break
		}
	}

	return out, events, nil
}

func (p *Processor) fail(err error) error {
	p.state = StateTerminated
	return err
}

// Terminate marks the session ended without a protocol-level cause
// (e.g. the caller's transport dropped); callers should still report
// EventTerminated themselves if they want it surfaced downstream.
func (p *Processor) Terminate(reason string) {
	p.state = StateTerminated
}

// --- Fast-Path output ---

func (p *Processor) handleFastPath(frame framing.Frame) ([]byte, []Event, error) {
	updates, err := pdu.DecodeFastPathUpdates(frame.Payload)
	if err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Parse, "fast-path updates", err)
	}

	var events []Event
	for _, u := range updates {
		data := u.Data
		if u.Compressed {
			decompressed, derr := p.decompressUpdate(u.CompType, data)
			if derr != nil {
				events = append(events, Event{Kind: EventWarning, Message: derr.Error()})
				continue
			}
			data = decompressed
		}

		switch u.Fragmentation {
		case pdu.FragFirst:
			p.fpFragActive = true
			p.fpFragCode = u.Code
			p.fpFragBuf = append([]byte(nil), data...)
			continue
		case pdu.FragNext:
			if p.fpFragActive {
				p.fpFragBuf = append(p.fpFragBuf, data...)
			}
			continue
		case pdu.FragLast:
			if p.fpFragActive {
				p.fpFragBuf = append(p.fpFragBuf, data...)
				data = p.fpFragBuf
				u = pdu.FastPathUpdate{Code: p.fpFragCode, Data: data}
			}
			p.fpFragActive = false
			p.fpFragBuf = nil
		}

		evs, err := p.applyFastPathUpdate(u.Code, data)
		if err != nil {
			events = append(events, Event{Kind: EventWarning, Message: err.Error()})
			continue
		}
		events = append(events, evs...)
	}
	return nil, events, nil
}

// decompressUpdate applies the compressor the update's own
// compressionFlags named, continuing p.fpHistory's sliding window
// across updates.
func (p *Processor) decompressUpdate(compType uint8, data []byte) ([]byte, error) {
	switch bulkcomp.Type(compType) {
	case bulkcomp.TypeMPPC8K, bulkcomp.TypeMPPC64K:
		return bulkcomp.DecompressMPPC(data, p.fpHistory)
	case bulkcomp.TypeNCRUSH:
		return bulkcomp.DecompressNCRUSH(data, p.fpHistory)
	case bulkcomp.TypeXCRUSH:
		return bulkcomp.DecompressXCRUSH(data, p.fpHistory)
	default:
		return data, nil
	}
}

func (p *Processor) applyFastPathUpdate(code pdu.FastPathUpdateCode, data []byte) ([]Event, error) {
	switch code {
	case pdu.FastPathUpdateSurfCmds:
		return p.applySurfaceCommands(data)

	case pdu.FastPathUpdateBitmap:
		// Classic bitmap update (non-surface-command path): reuses the
		// same TS_UPDATE_BITMAP body the slow-path Update PDU carries.
		return p.applyBitmapUpdate(data)

	case pdu.FastPathUpdatePalette:
		return nil, nil // palette-mapped 8bpp not modeled by this core's RGBA-only Image.

	case pdu.FastPathUpdateSynchronize:
		return nil, nil

	case pdu.FastPathUpdatePtrNull, pdu.FastPathUpdatePtrDefault:
		return []Event{{Kind: EventPointerHidden}}, nil

	case pdu.FastPathUpdatePtrPosition:
		pos, err := pdu.DecodePointerPositionUpdate(data)
		if err != nil {
			return nil, err
		}
		return []Event{{Kind: EventPointerPosition, X: int(pos.X), Y: int(pos.Y)}}, nil

	case pdu.FastPathUpdateColor:
		u, err := pdu.DecodeColorPointerUpdate(data)
		if err != nil {
			return nil, err
		}
		return []Event{cursorEvent(u)}, nil

	case pdu.FastPathUpdatePointer:
		u, err := pdu.DecodeNewPointerUpdate(data)
		if err != nil {
			return nil, err
		}
		return []Event{cursorEvent(u)}, nil

	case pdu.FastPathUpdateCached:
		_, err := pdu.DecodeCachedPointerUpdate(data)
		if err != nil {
			return nil, err
		}
		return nil, nil // no client-side pointer cache kept; server always resends color pointer first.

	case pdu.FastPathUpdateOrders:
		// Primary/secondary drawing orders: this client renders only
		// the bitmap/codec surface path, not the order-based GDI
		// replay path; surfaced as a non-fatal warning.
		return []Event{{Kind: EventWarning, Message: "drawing orders not implemented"}}, nil

	default:
		return []Event{{Kind: EventWarning, Message: fmt.Sprintf("unknown fast-path update code %d", code)}}, nil
	}
}

func cursorEvent(u pdu.ColorPointerUpdate) Event {
	rgba := graphics.DecodeCursor(int(u.Width), int(u.Height), u.XorBpp, u.AndMaskData, u.XorMaskData)
	return Event{
		Kind: EventPointerSet,
		Cursor: &graphics.Cursor{
			Width: int(u.Width), Height: int(u.Height),
			HotSpotX: int(u.HotSpotX), HotSpotY: int(u.HotSpotY),
			RGBA: rgba,
		},
	}
}

func (p *Processor) applySurfaceCommands(data []byte) ([]Event, error) {
	cmds, err := pdu.DecodeSurfaceCommands(data)
	if err != nil {
		return nil, rdperror.Wrap(rdperror.Parse, "surface commands", err)
	}

	var events []Event
	for _, cmd := range cmds {
		switch cmd.CmdType {
		case pdu.CmdTypeFrameMarker:
			fm, err := pdu.DecodeFrameMarker(cmd.Body)
			if err != nil {
				return events, rdperror.Wrap(rdperror.Parse, "frame marker", err)
			}
			if fm.Action == pdu.FrameActionBegin {
				p.pipeline.Image.BeginFrame()
			} else {
				p.pipeline.Image.EndFrame()
				if r, ok := p.pipeline.Image.DrainDirty(); ok {
					events = append(events, Event{Kind: EventGraphicsUpdate, Rect: r})
				}
			}

		case pdu.CmdTypeSetSurfaceBits, pdu.CmdTypeStreamSurfaceBits:
			sb, err := pdu.DecodeSetSurfaceBits(cmd.Body)
			if err != nil {
				return events, rdperror.Wrap(rdperror.Parse, "set surface bits", err)
			}
			codec, ok := p.codecIDToName[sb.CodecID]
			if !ok {
				events = append(events, Event{Kind: EventWarning, Message: fmt.Sprintf("active: unknown surface codec id %d", sb.CodecID)})
				continue
			}
			rect := graphics.Rect{
				X: int(sb.DestLeft), Y: int(sb.DestTop),
				W: int(sb.DestRight) - int(sb.DestLeft), H: int(sb.DestBottom) - int(sb.DestTop),
			}
			if err := p.pipeline.Apply(graphics.Update{Codec: codec, Dest: rect, BPP: graphics.BPP(sb.BPP), Data: sb.BitmapData}); err != nil {
				return events, rdperror.Wrap(rdperror.Codec, "surface bits decode", err)
			}
			if !p.pipeline.Image.InFrame() {
				if r, ok := p.pipeline.Image.DrainDirty(); ok {
					events = append(events, Event{Kind: EventGraphicsUpdate, Rect: r})
				}
			}
		}
	}
	return events, nil
}

// applyBitmapUpdate handles the classic (non-RDPEGFX) TS_UPDATE_BITMAP
// Fast-Path entry: a sequence of per-rectangle bitmap data bundles,
// uncompressed or interleaved-RLE, row-padded to a 4-byte boundary
// (per-row padding is stripped before the pixels reach the pipeline).
func (p *Processor) applyBitmapUpdate(data []byte) ([]Event, error) {
	rects, err := pdu.DecodeBitmapUpdateData(data)
	if err != nil {
		return nil, rdperror.Wrap(rdperror.Parse, "bitmap update", err)
	}
	var events []Event
	for _, r := range rects {
		codec := graphics.CodecInterleavedRLE
		data := r.BitmapData
		if !r.Compressed {
			codec = graphics.CodecUncompressedBitmap
			data = stripRowPadding(data, int(r.Width), int(r.Height), int(r.BitsPerPixel))
		}
		dest := graphics.Rect{X: int(r.DestLeft), Y: int(r.DestTop), W: int(r.Width), H: int(r.Height)}
		if err := p.pipeline.Apply(graphics.Update{Codec: codec, Dest: dest, BPP: graphics.BPP(r.BitsPerPixel), Data: data}); err != nil {
			events = append(events, Event{Kind: EventWarning, Message: err.Error()})
			continue
		}
	}
	if r, ok := p.pipeline.Image.DrainDirty(); ok {
		events = append(events, Event{Kind: EventGraphicsUpdate, Rect: r})
	}
	return events, nil
}

// stripRowPadding removes the per-row padding to a 4-byte boundary
// uncompressed TS_BITMAP_DATA streams carry, so the graphics pipeline
// only ever sees tightly-packed rows.
func stripRowPadding(data []byte, width, height, bpp int) []byte {
	bytesPerPixel := (bpp + 7) / 8
	rowBytes := width * bytesPerPixel
	paddedRow := (rowBytes + 3) &^ 3
	if paddedRow == rowBytes || len(data) < paddedRow*height {
		return data
	}
	out := make([]byte, 0, rowBytes*height)
	for y := 0; y < height; y++ {
		out = append(out, data[y*paddedRow:y*paddedRow+rowBytes]...)
	}
	return out
}

// --- Slow-path (Share Control / Share Data) ---

func (p *Processor) handleSlowPath(frame framing.Frame) ([]byte, []Event, error) {
	_, body, err := framing.ParseSlowPathPDU(frame.Payload)
	if err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Parse, "x.224 data tpdu", err)
	}
	if mcsmux.IsDisconnectUltimatum(body) {
		p.state = StateTerminated
		return nil, []Event{{Kind: EventTerminated, Reason: "server disconnected"}}, nil
	}

	sd, err := mcsmux.DecodeSendData(body)
	if err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Parse, "mcs send data", err)
	}

	if sd.ChannelID == p.session.IOChannelID {
		return p.handleShareControl(sd.Payload)
	}
	return p.handleSVCChannel(sd.ChannelID, sd.Payload)
}

// secTransportReq/secTransportRsp are the TS_SECURITY_HEADER flags
// bracketing the Initiate Multitransport Request/Response pair
// (MS-RDPBCGR 2.2.8.1.1.2.1). The request is recognized by peeking the
// first u16: a share-control header would carry its totalLength there,
// and no valid share-control PDU is 2 bytes long.
const (
	secTransportReq uint16 = 0x0002
	secTransportRsp uint16 = 0x0004
)

func (p *Processor) handleShareControl(payload []byte) ([]byte, []Event, error) {
	if len(payload) < 4 {
		return nil, nil, rdperror.New(rdperror.Parse, "share control payload too short")
	}

	if binary.LittleEndian.Uint16(payload[0:2]) == secTransportReq {
		return p.handleMultitransportRequest(payload[4:])
	}

	pduType := pdu.Type(binary.LittleEndian.Uint16(payload[2:4]) &^ 0xF000)

	switch {
	case pduType.IsDemandActive():
		// Deactivation-reactivation: the server has re-issued Demand
		// Active. SVC/DVC state
		// (p.mux, p.dvc, p.cliprdr/p.rdpdr/p.rdpsnd) is untouched.
		return p.handleReactivationDemand(payload)

	case pduType.IsDeactivateAll():
		p.state = StateReactivating
		return nil, []Event{{Kind: EventDeactivated}}, nil

	default:
		var d pdu.Data
		if err := d.Deserialize(bytes.NewReader(payload)); err != nil {
			return nil, nil, rdperror.Wrap(rdperror.Parse, "share data pdu", err)
		}
		return p.handleShareData(&d)
	}
}

func (p *Processor) handleShareData(d *pdu.Data) ([]byte, []Event, error) {
	switch {
	case d.ErrorInfoPDUData != nil:
		return nil, []Event{{Kind: EventErrorInfo, ErrorCode: d.ErrorInfoPDUData.ErrorInfo}}, nil

	case d.PlaySoundPDUData != nil:
		return nil, []Event{{Kind: EventPlaySound, DurationMS: d.PlaySoundPDUData.DurationMS, FrequencyHz: d.PlaySoundPDUData.FrequencyHz}}, nil

	case d.ShareDataHeader.PDUType2.IsSaveSessionInfo():
		return nil, []Event{{Kind: EventSessionSaveInfo}}, nil

	case d.ShareDataHeader.PDUType2.IsSynchronize(), d.ShareDataHeader.PDUType2.IsControl():
		// Server echoes of our own Synchronize/Control during a
		// reactivation handshake; nothing further to do.
		return nil, nil, nil

	case d.ShareDataHeader.PDUType2.IsFontmap():
		if p.state == StateReactivating {
			p.state = StateRunning
			return nil, []Event{{Kind: EventReactivated, DesktopWidth: p.reactW, DesktopHeight: p.reactH}}, nil
		}
		return nil, nil, nil

	default:
		return nil, []Event{{Kind: EventWarning, Message: fmt.Sprintf("unhandled share data pdu type2 0x%02x", d.ShareDataHeader.PDUType2)}}, nil
	}
}

// handleMultitransportRequest declines the server's Initiate
// Multitransport Request: only the negotiation is in scope here, the
// UDP data plane is not, so every request is answered with E_ABORT and
// surfaced to the caller as a warning.
func (p *Processor) handleMultitransportRequest(body []byte) ([]byte, []Event, error) {
	var req rdpemt.MultitransportRequest
	if err := req.Deserialize(body); err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Parse, "multitransport request", err)
	}

	respBody, err := rdpemt.NewDeclineResponse(req.RequestID).Serialize()
	if err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Parse, "multitransport response", err)
	}

	secHeader := make([]byte, 4)
	binary.LittleEndian.PutUint16(secHeader[0:2], secTransportRsp)
	out := p.wrapIOChannel(append(secHeader, respBody...))

	ev := Event{
		Kind:    EventWarning,
		Message: fmt.Sprintf("multitransport request %d (%s) declined: UDP transport not implemented", req.RequestID, rdpemt.ProtocolString(req.RequestedProtocol)),
	}
	return out, []Event{ev}, nil
}

func (p *Processor) handleReactivationDemand(payload []byte) ([]byte, []Event, error) {
	var demand pdu.ServerDemandActive
	if err := demand.Deserialize(bytes.NewReader(payload)); err != nil {
		return nil, nil, rdperror.Wrap(rdperror.Capability, "reactivation demand active", err)
	}
	p.session.ShareID = demand.ShareID
	p.session.ServerCapabilities = demand.CapabilitySets

	width, height := p.session.DesktopWidth, p.session.DesktopHeight
	for _, cs := range demand.CapabilitySets {
		if cs.CapabilitySetType == pdu.CapabilitySetTypeBitmap && cs.BitmapCapabilitySet != nil {
			width = cs.BitmapCapabilitySet.DesktopWidth
			height = cs.BitmapCapabilitySet.DesktopHeight
		}
	}
	if int(width) != p.pipeline.Image.Width || int(height) != p.pipeline.Image.Height {
		p.pipeline.Image.Resize(int(width), int(height))
		p.session.DesktopWidth, p.session.DesktopHeight = width, height
	}
	p.reactW, p.reactH = width, height

	confirm := pdu.NewClientConfirmActive(demand.ShareID, p.session.UserChannelID, width, height, p.session.RemoteApp)
	bitmapCodecs, codecIDs := pdu.NewBitmapCodecsCapabilitySetForCodecs(p.session.Codecs)
	p.session.CodecIDs = codecIDs
	p.codecIDToName = make(map[uint8]graphics.CodecID, len(codecIDs))
	for name, id := range codecIDs {
		if cid, ok := codecNameToID[name]; ok {
			p.codecIDToName[id] = cid
		}
	}
	confirm.CapabilitySets = append(confirm.CapabilitySets, pdu.NewSurfaceCommandsCapabilitySet(), bitmapCodecs)

	var out []byte
	out = append(out, p.wrapIOChannel(confirm.Serialize())...)
	out = append(out, p.wrapIOChannel(pdu.NewSynchronize(p.session.ShareID, p.session.UserChannelID).Serialize())...)
	out = append(out, p.wrapIOChannel(pdu.NewControl(p.session.ShareID, p.session.UserChannelID, pdu.ControlActionCooperate).Serialize())...)
	out = append(out, p.wrapIOChannel(pdu.NewControl(p.session.ShareID, p.session.UserChannelID, pdu.ControlActionRequestControl).Serialize())...)
	out = append(out, p.wrapIOChannel(pdu.NewFontList(p.session.ShareID, p.session.UserChannelID).Serialize())...)
	return out, nil, nil
}

func wrapX224Data(payload []byte) []byte {
	d := &framing.Data{LI: 2, DTROA: 0xF0, NREOT: 0x80, UserData: payload}
	return d.Serialize()
}

func (p *Processor) wrapIOChannel(payload []byte) []byte {
	return framing.WrapSlowPath(wrapX224Data(mcsmux.EncodeSendDataRequest(p.session.UserChannelID, p.session.IOChannelID, payload)))
}

func (p *Processor) wrapSVCChannel(channelID uint16, payload []byte) []byte {
	var out []byte
	for _, chunk := range p.mux.Outbound(channelID, payload) {
		out = append(out, framing.WrapSlowPath(wrapX224Data(mcsmux.EncodeSendDataRequest(p.session.UserChannelID, channelID, chunk)))...)
	}
	return out
}

// --- Static virtual channels ---

func (p *Processor) channelName(id uint16) (string, bool) {
	for name, cid := range p.session.SVCChannels {
		if cid == id {
			return name, true
		}
	}
	return "", false
}

func (p *Processor) handleSVCChannel(channelID uint16, chunk []byte) ([]byte, []Event, error) {
	reassembled, err := p.mux.Inbound(channelID, chunk)
	if err != nil {
		var unknown *mcsmux.ErrUnknownChannel
		if bytesErrorsAs(err, &unknown) {
			return nil, nil, rdperror.Wrap(rdperror.Channel, "unknown channel id", err)
		}
		return nil, nil, rdperror.Wrap(rdperror.Channel, "svc reassembly", err)
	}
	if reassembled == nil {
		return nil, nil, nil // still waiting on more fragments
	}

	name, _ := p.channelName(channelID)
	switch name {
	case "cliprdr":
		if p.cliprdr == nil {
			p.cliprdr = cliprdr.NewHandler(nil)
		}
		replies, err := p.cliprdr.HandleServerData(reassembled)
		if err != nil {
			return nil, []Event{{Kind: EventWarning, Message: err.Error()}}, nil
		}
		return p.wrapReplies(channelID, replies), nil, nil

	case "rdpdr":
		if p.rdpdr == nil {
			p.rdpdr = rdpdr.NewHandler("rdpcore", nil)
		}
		replies, err := p.rdpdr.HandleServerData(reassembled)
		if err != nil {
			return nil, []Event{{Kind: EventWarning, Message: err.Error()}}, nil
		}
		return p.wrapReplies(channelID, replies), nil, nil

	case "rdpsnd":
		if p.rdpsnd == nil {
			p.rdpsnd = rdpsnd.NewHandler(nil)
		}
		replies, err := p.rdpsnd.HandleServerData(reassembled)
		if err != nil {
			return nil, []Event{{Kind: EventWarning, Message: err.Error()}}, nil
		}
		return p.wrapReplies(channelID, replies), nil, nil

	case rail.ChannelName:
		if p.rail == nil {
			return nil, []Event{{Kind: EventSvcData, ChannelID: channelID, ChannelName: name, Payload: reassembled}}, nil
		}
		replies, err := p.rail.HandleServerData(reassembled)
		if err != nil {
			return nil, []Event{{Kind: EventWarning, Message: err.Error()}}, nil
		}
		return p.wrapReplies(channelID, replies), nil, nil

	case "drdynvc":
		replies, events, err := p.dvc.handleMessage(reassembled)
		if err != nil {
			return nil, []Event{{Kind: EventWarning, Message: err.Error()}}, nil
		}
		return p.wrapReplies(channelID, replies), events, nil

	default:
		return nil, []Event{{Kind: EventSvcData, ChannelID: channelID, ChannelName: name, Payload: reassembled}}, nil
	}
}

func (p *Processor) wrapReplies(channelID uint16, replies [][]byte) []byte {
	var out []byte
	for _, r := range replies {
		out = append(out, p.wrapSVCChannel(channelID, r)...)
	}
	return out
}

// bytesErrorsAs is a tiny errors.As wrapper kept local to avoid an
// extra import alias collision with this file's own err variables.
func bytesErrorsAs(err error, target **mcsmux.ErrUnknownChannel) bool {
	for err != nil {
		if e, ok := err.(*mcsmux.ErrUnknownChannel); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
