package rdpsnd

// BuildChannelPDU frames body behind an RDPSND PDU header. Static
// channel framing (CHANNEL_PDU_HEADER, chunking, compression) is
// applied by the channel multiplexer on the way out, so the bytes
// returned here are the complete message at this protocol's layer.
func BuildChannelPDU(msgType uint8, body []byte) []byte {
	header := PDUHeader{
		MsgType:  msgType,
		Reserved: 0,
		BodySize: uint16(len(body)), // #nosec G115
	}

	return append(header.Serialize(), body...)
}
