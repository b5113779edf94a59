package gcc

import (
	"errors"
	"io"

	"github.com/vantage-sec/rdpcore/asn1"
)

type ConferenceCreateResponse struct{}

func (r *ConferenceCreateResponse) Deserialize(wire io.Reader) error {
	_, err := asn1.PerReadChoice(wire)
	if err != nil {
		return err
	}

	var objectIdentifier bool

	objectIdentifier, err = asn1.PerReadObjectIdentifier(t124_02_98_oid, wire)
	if err != nil {
		return err
	}

	if !objectIdentifier {
		return errors.New("bad object identifier t124")
	}

	_, err = asn1.PerReadLength(wire)
	if err != nil {
		return err
	}

	_, err = asn1.PerReadChoice(wire)
	if err != nil {
		return err
	}

	_, err = asn1.PerReadInteger16(1001, wire)
	if err != nil {
		return err
	}

	_, err = asn1.PerReadInteger(wire)
	if err != nil {
		return err
	}

	_, err = asn1.PerReadEnumerates(wire)
	if err != nil {
		return err
	}

	_, err = asn1.PerReadNumberOfSet(wire)
	if err != nil {
		return err
	}

	_, err = asn1.PerReadChoice(wire)
	if err != nil {
		return err
	}

	var octetStream bool

	octetStream, err = asn1.PerReadOctetStream([]byte(h221SCKey), 4, wire)
	if err != nil {
		return err
	}

	if !octetStream {
		return errors.New("bad H221 SC_KEY")
	}

	_, err = asn1.PerReadLength(wire)
	if err != nil {
		return err
	}

	return nil
}
