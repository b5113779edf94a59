// Package gcc implements Generic Conference Control (T.124) structures
// used in RDP connection sequence as specified in MS-RDPBCGR.
package gcc

import (
	"bytes"

	"github.com/vantage-sec/rdpcore/asn1"
)

var (
	t124_02_98_oid = [6]byte{0, 0, 20, 124, 0, 1}
	h221CSKey      = "Duca"
	h221SCKey      = "McDn"
)

type ConferenceCreateRequest struct {
	UserData []byte
}

func NewConferenceCreateRequest(userData []byte) *ConferenceCreateRequest {
	return &ConferenceCreateRequest{
		UserData: userData,
	}
}

func (r *ConferenceCreateRequest) Serialize() []byte {
	buf := new(bytes.Buffer)

	asn1.PerWriteChoice(0, buf)
	asn1.PerWriteObjectIdentifier(t124_02_98_oid, buf)
	asn1.PerWriteLength(uint16(14+len(r.UserData)), buf) // #nosec G115

	asn1.PerWriteChoice(0, buf)
	asn1.PerWriteSelection(0x08, buf)

	asn1.PerWriteNumericString("1", 1, buf)
	asn1.PerWritePadding(1, buf)
	asn1.PerWriteNumberOfSet(1, buf)
	asn1.PerWriteChoice(0xc0, buf)
	asn1.PerWriteOctetStream(h221CSKey, 4, buf)
	asn1.PerWriteOctetStream(string(r.UserData), 0, buf)

	return buf.Bytes()
}
