package rdpsnd

import (
	"bytes"
	"testing"
)

func TestBuildChannelPDU(t *testing.T) {
	body := []byte{0x01, 0x02}
	result := BuildChannelPDU(SND_FORMATS, body)

	// PDU header (4) + body (2) = 6 bytes; no channel framing here,
	// the multiplexer adds that.
	if len(result) != 6 {
		t.Errorf("BuildChannelPDU() length = %d, want 6", len(result))
	}

	if result[0] != SND_FORMATS {
		t.Errorf("MsgType = %v, want %v", result[0], SND_FORMATS)
	}
	if result[1] != 0 {
		t.Errorf("Reserved = %v, want 0", result[1])
	}

	// BodySize excludes the header (MS-RDPEA 2.2.1).
	if result[2] != 0x02 || result[3] != 0x00 {
		t.Errorf("BodySize bytes = %v, want [0x02, 0x00]", result[2:4])
	}

	if !bytes.Equal(result[4:], body) {
		t.Errorf("Body = %v, want %v", result[4:], body)
	}
}

func TestBuildChannelPDU_EmptyBody(t *testing.T) {
	result := BuildChannelPDU(SND_CLOSE, nil)

	if len(result) != 4 {
		t.Errorf("BuildChannelPDU() length = %d, want 4", len(result))
	}
	if result[2] != 0 || result[3] != 0 {
		t.Errorf("BodySize bytes = %v, want [0x00, 0x00]", result[2:4])
	}
}
