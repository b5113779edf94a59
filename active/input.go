package active

import (
	"github.com/vantage-sec/rdpcore/framing"
	"github.com/vantage-sec/rdpcore/graphics"
	"github.com/vantage-sec/rdpcore/pdu"
	"github.com/vantage-sec/rdpcore/rdperror"
)

// Inbound commands to the Active Stage: the caller
// translates its UI events into these and hands them to EncodeInput,
// which produces the bytes to write to the transport. Keyboard, mouse
// and sync-toggle commands become Fast-Path input events; the control
// commands (SuppressOutput, Resize, Shutdown) become their slow-path
// Share Data PDUs or DVC messages.

// Command is one inbound command. The closed set of implementations
// lives in this file.
type Command interface{ isCommand() }

// KeyEvent is a physical key press or release by scancode.
type KeyEvent struct {
	Scancode uint8
	Down     bool
	Extended bool
}

// UnicodeKeyEvent injects a character without a scancode mapping.
type UnicodeKeyEvent struct {
	Code uint16
	Down bool
}

// MouseMove repositions the pointer.
type MouseMove struct {
	X, Y uint16
}

// Mouse buttons accepted by MouseButton.
const (
	MouseButtonLeft = iota + 1
	MouseButtonRight
	MouseButtonMiddle
	MouseButtonX1
	MouseButtonX2
)

// MouseButton is a button press or release at a position.
type MouseButton struct {
	Button int
	Down   bool
	X, Y   uint16
}

// MouseWheel is a wheel rotation. Delta is in wheel units (positive
// away from the user), Horizontal selects the tilt wheel.
type MouseWheel struct {
	Delta      int16
	Horizontal bool
	X, Y       uint16
}

// SyncToggles reports the client's lock-key state after focus changes.
type SyncToggles struct {
	Caps, Num, Scroll, Kana bool
}

// SuppressOutput pauses (Allow=false) or resumes (Allow=true) server
// graphics output; on resume Rect names the region to repaint.
type SuppressOutput struct {
	Allow bool
	Rect  graphics.Rect
}

// RefreshRect asks the server to repaint a region.
type RefreshRect struct {
	Rect graphics.Rect
}

// Resize requests a desktop resize through the DisplayControl dynamic
// channel. Until the server has created that channel, EncodeInput
// rejects it with a NotImplemented error.
type Resize struct {
	Width, Height uint16
}

// Shutdown announces the client wants to end the session.
type Shutdown struct{}

func (KeyEvent) isCommand()        {}
func (UnicodeKeyEvent) isCommand() {}
func (MouseMove) isCommand()       {}
func (MouseButton) isCommand()     {}
func (MouseWheel) isCommand()      {}
func (SyncToggles) isCommand()     {}
func (SuppressOutput) isCommand()  {}
func (RefreshRect) isCommand()     {}
func (Resize) isCommand()          {}
func (Shutdown) isCommand()        {}

// fastPathInputBatch caps events per Fast-Path PDU so numEvents always
// fits the 4-bit header field.
const fastPathInputBatch = 15

// EncodeInput turns commands into wire bytes: consecutive input
// events are batched into Fast-Path
// input PDUs, control commands are emitted in place so relative order
// is preserved.
func (p *Processor) EncodeInput(commands []Command) ([]byte, error) {
	if p.state == StateTerminated {
		return nil, rdperror.New(rdperror.StateViolation, "active stage already terminated")
	}

	var out []byte
	var batch []byte
	batchCount := 0

	flush := func() {
		if batchCount > 0 {
			out = append(out, framing.WrapFastPathInput(batchCount, batch)...)
			batch = nil
			batchCount = 0
		}
	}

	for _, cmd := range commands {
		switch c := cmd.(type) {
		case KeyEvent:
			var flags uint8
			if !c.Down {
				flags |= pdu.KBDFlagsRelease
			}
			if c.Extended {
				flags |= pdu.KBDFlagsExtended
			}
			batch = append(batch, pdu.NewKeyboardEvent(flags, c.Scancode).Serialize()...)
			batchCount++

		case UnicodeKeyEvent:
			ev := pdu.NewUnicodeKeyboardEvent(c.Code)
			if c.Down {
				ev.EventFlags = 0
			}
			batch = append(batch, ev.Serialize()...)
			batchCount++

		case MouseMove:
			batch = append(batch, pdu.NewMouseEvent(pdu.PTRFlagsMove, c.X, c.Y).Serialize()...)
			batchCount++

		case MouseButton:
			ev, err := mouseButtonEvent(c)
			if err != nil {
				return nil, err
			}
			batch = append(batch, ev.Serialize()...)
			batchCount++

		case MouseWheel:
			batch = append(batch, mouseWheelEvent(c).Serialize()...)
			batchCount++

		case SyncToggles:
			var flags uint8
			if c.Scroll {
				flags |= pdu.SyncScrollLock
			}
			if c.Num {
				flags |= pdu.SyncNumLock
			}
			if c.Caps {
				flags |= pdu.SyncCapsLock
			}
			if c.Kana {
				flags |= pdu.SyncKanaLock
			}
			batch = append(batch, pdu.NewSynchronizeEvent(flags).Serialize()...)
			batchCount++

		case SuppressOutput:
			flush()
			data := pdu.NewSuppressOutput(p.session.ShareID, p.session.UserChannelID, c.Allow, inclusiveRect(c.Rect))
			out = append(out, p.wrapIOChannel(data.Serialize())...)

		case RefreshRect:
			flush()
			data := pdu.NewRefreshRect(p.session.ShareID, p.session.UserChannelID, []pdu.InclusiveRectangle{inclusiveRect(c.Rect)})
			out = append(out, p.wrapIOChannel(data.Serialize())...)

		case Resize:
			flush()
			msg := p.dvc.requestDisplayLayout(uint32(c.Width), uint32(c.Height))
			if msg == nil {
				return nil, rdperror.New(rdperror.NotImplemented, "display control channel not open")
			}
			channelID, ok := p.session.SVCChannels["drdynvc"]
			if !ok {
				return nil, rdperror.New(rdperror.Channel, "drdynvc channel not negotiated")
			}
			out = append(out, p.wrapSVCChannel(channelID, msg)...)

		case Shutdown:
			flush()
			data := pdu.NewShutdownRequest(p.session.ShareID, p.session.UserChannelID)
			out = append(out, p.wrapIOChannel(data.Serialize())...)

		default:
			return nil, rdperror.New(rdperror.NotImplemented, "unknown input command")
		}

		if batchCount == fastPathInputBatch {
			flush()
		}
	}
	flush()

	return out, nil
}

func mouseButtonEvent(c MouseButton) (*pdu.InputEvent, error) {
	switch c.Button {
	case MouseButtonLeft, MouseButtonRight, MouseButtonMiddle:
		var flags uint16
		switch c.Button {
		case MouseButtonLeft:
			flags = pdu.PTRFlagsButton1
		case MouseButtonRight:
			flags = pdu.PTRFlagsButton2
		case MouseButtonMiddle:
			flags = pdu.PTRFlagsButton3
		}
		if c.Down {
			flags |= pdu.PTRFlagsDown
		}
		return pdu.NewMouseEvent(flags, c.X, c.Y), nil

	case MouseButtonX1, MouseButtonX2:
		flags := pdu.PTRXFlagsButton1
		if c.Button == MouseButtonX2 {
			flags = pdu.PTRXFlagsButton2
		}
		if c.Down {
			flags |= pdu.PTRXFlagsDown
		}
		return pdu.NewExtendedMouseEvent(flags, c.X, c.Y), nil

	default:
		return nil, rdperror.New(rdperror.NotImplemented, "unknown mouse button")
	}
}

func mouseWheelEvent(c MouseWheel) *pdu.InputEvent {
	flags := pdu.PTRFlagsWheel
	if c.Horizontal {
		flags = pdu.PTRFlagsHWheel
	}
	delta := c.Delta
	if delta < 0 {
		flags |= pdu.PTRFlagsWheelNegative
		delta = -delta
	}
	// Rotation magnitude lives in the low 8 bits of pointerFlags.
	flags |= uint16(delta) & 0x00FF
	return pdu.NewMouseEvent(flags, c.X, c.Y)
}

// inclusiveRect converts a graphics.Rect (width/height) to the
// inclusive right/bottom encoding TS_RECTANGLE16 uses.
func inclusiveRect(r graphics.Rect) pdu.InclusiveRectangle {
	right := r.X + r.W - 1
	bottom := r.Y + r.H - 1
	if right < r.X {
		right = r.X
	}
	if bottom < r.Y {
		bottom = r.Y
	}
	return pdu.InclusiveRectangle{
		Left:   uint16(r.X),    // #nosec G115
		Top:    uint16(r.Y),    // #nosec G115
		Right:  uint16(right),  // #nosec G115
		Bottom: uint16(bottom), // #nosec G115
	}
}
