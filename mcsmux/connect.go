package mcsmux

import (
	"bytes"
	"errors"
	"io"

	"github.com/vantage-sec/rdpcore/asn1"
)

// T.125 application tags for the two BER-coded MCSPDUs exchanged
// before any PER-coded domain traffic: Connect-Initial and
// Connect-Response, encoded against T.125 §7's ASN.1.
const (
	tagConnectInitial  uint8 = 101
	tagConnectResponse uint8 = 102
)

// domainParameters is the MCS DomainParameters SEQUENCE sent three
// times in a Connect-Initial (target/minimum/maximum) -- values below
// match the de-facto constants every RDP client on the wire uses
// (FreeRDP's gcc_write_client_network_data neighbourhood), since the
// RDP server only ever validates that minimum <= target <= maximum.
type domainParameters struct {
	maxChannelIDs   int
	maxUserIDs      int
	maxTokenIDs     int
	numPriorities   int
	minThroughput   int
	maxHeight       int
	maxMCSPDUSize   int
	protocolVersion int
}

var (
	targetParameters = domainParameters{34, 2, 0, 1, 0, 1, 65535, 2}
	minParameters    = domainParameters{1, 1, 1, 1, 0, 1, 1056, 2}
	maxParameters    = domainParameters{4294967295 >> 1, 4294967295 >> 1, 4294967295 >> 1, 1, 4294967295 >> 1, 1, 4294967295 >> 1, 2}
)

func (p domainParameters) serialize(w io.Writer) {
	body := new(bytes.Buffer)
	asn1.BerWriteInteger(p.maxChannelIDs, body)
	asn1.BerWriteInteger(p.maxUserIDs, body)
	asn1.BerWriteInteger(p.maxTokenIDs, body)
	asn1.BerWriteInteger(p.numPriorities, body)
	asn1.BerWriteInteger(p.minThroughput, body)
	asn1.BerWriteInteger(p.maxHeight, body)
	asn1.BerWriteInteger(p.maxMCSPDUSize, body)
	asn1.BerWriteInteger(p.protocolVersion, body)
	asn1.BerWriteSequence(body.Bytes(), w)
}

func readDomainParameters(wire io.Reader) (domainParameters, error) {
	var p domainParameters
	if _, err := asn1.BerReadUniversalTag(asn1.TagSequence, true, wire); err != nil {
		return p, err
	}
	if _, err := asn1.BerReadLength(wire); err != nil {
		return p, err
	}
	var err error
	if p.maxChannelIDs, err = asn1.BerReadInteger(wire); err != nil {
		return p, err
	}
	if p.maxUserIDs, err = asn1.BerReadInteger(wire); err != nil {
		return p, err
	}
	if p.maxTokenIDs, err = asn1.BerReadInteger(wire); err != nil {
		return p, err
	}
	if p.numPriorities, err = asn1.BerReadInteger(wire); err != nil {
		return p, err
	}
	if p.minThroughput, err = asn1.BerReadInteger(wire); err != nil {
		return p, err
	}
	if p.maxHeight, err = asn1.BerReadInteger(wire); err != nil {
		return p, err
	}
	if p.maxMCSPDUSize, err = asn1.BerReadInteger(wire); err != nil {
		return p, err
	}
	p.protocolVersion, err = asn1.BerReadInteger(wire)
	return p, err
}

// EncodeConnectInitial wraps gccUserData (a GCC Conference-Create
// Request, already ASN.1-PER-encoded by the gcc package) in the
// BER-coded MCS Connect-Initial PDU.
func EncodeConnectInitial(gccUserData []byte) []byte {
	body := new(bytes.Buffer)
	asn1.BerWriteOctetString([]byte{0x01}, body) // callingDomainSelector
	asn1.BerWriteOctetString([]byte{0x01}, body) // calledDomainSelector
	asn1.BerWriteBoolean(true, body)              // upwardFlag
	targetParameters.serialize(body)
	minParameters.serialize(body)
	maxParameters.serialize(body)
	asn1.BerWriteOctetString(gccUserData, body) // userData

	out := new(bytes.Buffer)
	asn1.BerWriteApplicationTag(tagConnectInitial, body.Len(), out)
	out.Write(body.Bytes())
	return out.Bytes()
}

var errBadConnectResponseTag = errors.New("mcsmux: not a Connect-Response PDU")

// DecodeConnectResponse strips the BER Connect-Response envelope and
// returns the embedded GCC Conference-Create Response bytes.
func DecodeConnectResponse(data []byte) (gccUserData []byte, err error) {
	r := bytes.NewReader(data)

	tag, err := asn1.BerReadApplicationTag(r)
	if err != nil {
		return nil, err
	}
	if tag != tagConnectResponse {
		return nil, errBadConnectResponseTag
	}
	if _, err = asn1.BerReadLength(r); err != nil {
		return nil, err
	}
	if _, err = asn1.BerReadEnumerated(r); err != nil { // result
		return nil, err
	}
	if _, err = asn1.BerReadInteger(r); err != nil { // calledConnectId
		return nil, err
	}
	if _, err = readDomainParameters(r); err != nil {
		return nil, err
	}

	if _, err = asn1.BerReadUniversalTag(asn1.TagOctetString, false, r); err != nil { // userData OCTET STRING tag
		return nil, err
	}
	length, err := asn1.BerReadLength(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	if _, err = io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
