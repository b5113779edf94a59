package graphics

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// QOIZ is QOI piped through DEFLATE with no additional container: the
// wire bytes are exactly what flate.NewWriter produces over an
// EncodeQOI buffer, and DecodeQOIZ is flate.NewReader followed by
// DecodeQOI. There is no separate QOIZ length prefix or magic; framing
// (how many compressed bytes belong to this update) is the caller's
// concern, same as every other codec in this package.

// EncodeQOIZ compresses an RGBA image as QOI then DEFLATE.
func EncodeQOIZ(rgba []byte, width, height int) ([]byte, error) {
	raw := EncodeQOI(rgba, width, height)

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("qoiz: new writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("qoiz: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("qoiz: flush: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeQOIZ inflates a QOIZ stream and decodes the resulting QOI image.
func DecodeQOIZ(data []byte, width, height int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("qoiz: inflate: %w", err)
	}
	return DecodeQOI(raw, width, height)
}
