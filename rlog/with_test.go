package rlog

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestWithPrefixesFields(t *testing.T) {
	var buf bytes.Buffer
	base := &Logger{level: LevelInfo, logger: log.New(&buf, "", 0)}

	l := base.With("session", 7, "channel", "cliprdr")
	l.Info("format list received")

	got := buf.String()
	if !strings.Contains(got, "session=7 channel=cliprdr format list received") {
		t.Errorf("unexpected log line: %q", got)
	}
}

func TestWithChainsAndInheritsLevel(t *testing.T) {
	var buf bytes.Buffer
	base := &Logger{level: LevelWarn, logger: log.New(&buf, "", 0)}

	l := base.With("a", 1).With("b", 2)
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info line should have been filtered, got %q", buf.String())
	}

	l.Warn("kept")
	if !strings.Contains(buf.String(), "a=1 b=2 kept") {
		t.Errorf("unexpected log line: %q", buf.String())
	}
}
