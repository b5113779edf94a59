package mcsmux

import (
	"encoding/binary"
	"fmt"

	"github.com/vantage-sec/rdpcore/bulkcomp"
)

// Channel PDU header flags (MS-RDPBCGR 2.2.6.1 CHANNEL_PDU_HEADER).
const (
	FlagFirst      uint32 = 0x00000001
	FlagLast       uint32 = 0x00000002
	FlagShowProto  uint32 = 0x00000010
	FlagSuspend    uint32 = 0x00000020
	FlagResume     uint32 = 0x00000040
	FlagCompressed uint32 = 0x00200000
	FlagAtFront    uint32 = 0x00400000
	FlagFlushed    uint32 = 0x00800000
	compressionTypeMask uint32 = 0x000f0000
)

// DefaultReassemblyQuota is the per-channel reassembly buffer bound
// (reassembly buffers must stay bounded); configurable
// via Mux.SetQuota.
const DefaultReassemblyQuota = 16 * 1024 * 1024

// Descriptor is a Channel Descriptor: a negotiated SVC's
// name, id and options.
type Descriptor struct {
	Name    string
	ID      uint16
	Options uint32
}

type channelState struct {
	desc Descriptor

	reassembling bool
	declaredLen  int
	buf          []byte

	history *bulkcomp.History
}

// Mux is the Channel Multiplexer. It owns per-channel
// SVC fragment reassembly state and the channel id/name table the
// Connector populates during Channel Join.
type Mux struct {
	channels map[uint16]*channelState
	byName   map[string]uint16
	quota    int
	compType bulkcomp.Type
}

// New creates an empty Mux with the default reassembly quota.
func New() *Mux {
	return &Mux{
		channels: make(map[uint16]*channelState),
		byName:   make(map[string]uint16),
		quota:    DefaultReassemblyQuota,
	}
}

// SetQuota overrides the per-channel reassembly buffer bound.
func (m *Mux) SetQuota(quota int) { m.quota = quota }

// SetCompressionType selects which bulk compressor decompresses
// FlagCompressed chunks, per the type negotiated in Client Info /
// Demand Active.
func (m *Mux) SetCompressionType(t bulkcomp.Type) { m.compType = t }

// AddChannel registers a channel id assigned during Channel Join. A
// channel id is immutable for the session once added.
func (m *Mux) AddChannel(d Descriptor) {
	m.channels[d.ID] = &channelState{desc: d, history: bulkcomp.NewHistory(bulkcomp.HistoryCapacity(m.compType))}
	m.byName[d.Name] = d.ID
}

// ChannelID looks up a registered channel's id by name.
func (m *Mux) ChannelID(name string) (uint16, bool) {
	id, ok := m.byName[name]
	return id, ok
}

// ErrUnknownChannel is returned by Inbound for an id never registered
// via AddChannel (unknown channel ids are rejected with a
// defined error").
type ErrUnknownChannel struct{ ChannelID uint16 }

func (e *ErrUnknownChannel) Error() string {
	return fmt.Sprintf("mcsmux: unknown channel id %d", e.ChannelID)
}

// ErrReassemblyQuotaExceeded is returned when a channel's reassembly
// buffer would grow past its quota.
type ErrReassemblyQuotaExceeded struct {
	ChannelID uint16
	Quota     int
}

func (e *ErrReassemblyQuotaExceeded) Error() string {
	return fmt.Sprintf("mcsmux: channel %d reassembly buffer exceeds quota %d bytes", e.ChannelID, e.Quota)
}

// Inbound processes one Send-Data chunk already extracted by
// DecodeSendData: it strips the CHANNEL_PDU_HEADER, reassembles FIRST/
// LAST fragments, decompresses when FlagCompressed is set, and returns
// the complete channel-layer message once LAST has been seen (nil,
// nil while still waiting on more fragments).
func (m *Mux) Inbound(channelID uint16, chunk []byte) ([]byte, error) {
	ch, ok := m.channels[channelID]
	if !ok {
		return nil, &ErrUnknownChannel{ChannelID: channelID}
	}

	if len(chunk) < 8 {
		return nil, fmt.Errorf("mcsmux: channel PDU header truncated")
	}
	declaredLen := binary.LittleEndian.Uint32(chunk[0:4])
	flags := binary.LittleEndian.Uint32(chunk[4:8])
	body := chunk[8:]

	if flags&FlagCompressed != 0 {
		decompressed, err := decompress(bulkcomp.Type((flags&compressionTypeMask)>>16), body, ch.history)
		if err != nil {
			return nil, fmt.Errorf("mcsmux: channel %d decompress: %w", channelID, err)
		}
		body = decompressed
	}

	if flags&FlagFirst != 0 {
		ch.reassembling = true
		ch.declaredLen = int(declaredLen)
		ch.buf = ch.buf[:0]
	}
	if !ch.reassembling {
		ch.reassembling = true
		ch.declaredLen = len(body)
		ch.buf = ch.buf[:0]
	}

	if len(ch.buf)+len(body) > m.quota {
		ch.reassembling = false
		ch.buf = nil
		return nil, &ErrReassemblyQuotaExceeded{ChannelID: channelID, Quota: m.quota}
	}
	ch.buf = append(ch.buf, body...)

	if flags&FlagLast == 0 {
		return nil, nil
	}

	out := ch.buf
	ch.buf = nil
	ch.reassembling = false
	return out, nil
}

func decompress(t bulkcomp.Type, body []byte, history *bulkcomp.History) ([]byte, error) {
	switch t {
	case bulkcomp.TypeMPPC8K, bulkcomp.TypeMPPC64K:
		return bulkcomp.DecompressMPPC(body, history)
	case bulkcomp.TypeNCRUSH:
		return bulkcomp.DecompressNCRUSH(body, history)
	case bulkcomp.TypeXCRUSH:
		return bulkcomp.DecompressXCRUSH(body, history)
	default:
		return body, nil
	}
}

// MaxChunkPayload is the largest body a single outbound Channel PDU
// chunk carries, leaving room for MCS/Security framing overhead within
// the negotiated MCS max PDU size.
const MaxChunkPayload = 1590

// Outbound splits payload into CHANNEL_PDU_HEADER-framed chunks for
// channelID, setting FIRST/LAST across the sequence. Compression is
// not applied on the client->server direction: the client only ever
// decompresses (RDP negotiates compression as server-to-client
// for server->client traffic; RDP clients do not compress channel data
// back).
func (m *Mux) Outbound(channelID uint16, payload []byte) [][]byte {
	if len(payload) == 0 {
		return [][]byte{encodeChunk(payload, uint32(len(payload)), FlagFirst|FlagLast)}
	}

	var chunks [][]byte
	for offset := 0; offset < len(payload); offset += MaxChunkPayload {
		end := offset + MaxChunkPayload
		if end > len(payload) {
			end = len(payload)
		}
		var flags uint32
		if offset == 0 {
			flags |= FlagFirst
		}
		if end == len(payload) {
			flags |= FlagLast
		}
		chunks = append(chunks, encodeChunk(payload[offset:end], uint32(len(payload)), flags)) // #nosec G115
	}
	return chunks
}

func encodeChunk(body []byte, totalLen uint32, flags uint32) []byte {
	out := make([]byte, 8+len(body))
	binary.LittleEndian.PutUint32(out[0:4], totalLen)
	binary.LittleEndian.PutUint32(out[4:8], flags)
	copy(out[8:], body)
	return out
}
