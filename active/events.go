package active

import "github.com/vantage-sec/rdpcore/graphics"

// EventKind enumerates the caller-facing outputs the Active Stage
// produces, mirroring the structural style of connector.EventKind/
// Event.
type EventKind int

const (
	// EventGraphicsUpdate: the surface's dirty rectangle has changed.
	// Rect names the touched region; the caller reads pixels from its
	// own handle on the Pipeline's Image.
	EventGraphicsUpdate EventKind = iota

	// EventPointerSet: the visible cursor image changed. Cursor carries
	// the decoded RGBA image and hotspot.
	EventPointerSet

	// EventPointerPosition: the cursor moved without changing image.
	EventPointerPosition

	// EventPointerHidden: the server asked for the cursor to be hidden
	// (FASTPATH_UPDATETYPE_PTR_NULL/PTR_DEFAULT).
	EventPointerHidden

	// EventSvcData: a reassembled static virtual channel payload
	// arrived. ChannelName/ChannelID/Payload identify it.
	EventSvcData

	// EventDvcData: a reassembled dynamic virtual channel payload
	// arrived. DvcID/DvcName/Payload identify it.
	EventDvcData

	// EventPlaySound: the server requested a simple system beep.
	EventPlaySound

	// EventSessionSaveInfo: the server sent Save Session Info (logon
	// errors, auto-reconnect cookie, etc. -- surfaced as a marker only,
	// since this core has no persistent profile store to act on it).
	EventSessionSaveInfo

	// EventErrorInfo: the server sent a Set Error Info PDU, usually
	// immediately before tearing the connection down.
	EventErrorInfo

	// EventDeactivated: the server sent Deactivate All; the Processor
	// has entered StateReactivating and SVC/DVC state is preserved.
	EventDeactivated

	// EventReactivated: reactivation finished (a new Demand Active was
	// confirmed and finalized); Session carries the possibly-resized
	// desktop dimensions.
	EventReactivated

	// EventTerminated: the Processor has stopped consuming input.
	// Reason explains why.
	EventTerminated

	// EventWarning: a non-fatal condition (NotImplemented feature,
	// unexpected PDU) the caller may want to log.
	EventWarning
)

// Event is the tagged union of every Active Stage output. Only the
// fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	Rect graphics.Rect

	Cursor     *graphics.Cursor
	X, Y       int

	ChannelName string
	ChannelID   uint16
	DvcID       uint32
	DvcName     string
	Payload     []byte

	DurationMS, FrequencyHz uint32

	ErrorCode uint32

	DesktopWidth, DesktopHeight uint16

	Reason  string
	Message string
}
