package logging

import (
	"bytes"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "info", Format: "json", Out: &buf})
	logger.WithField("task", "t1").Info("moved")

	out := buf.String()
	if !strings.Contains(out, `"task":"t1"`) || !strings.Contains(out, `"msg":"moved"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestNewUnknownLevelFallsBackToWarn(t *testing.T) {
	logger := New(Options{Level: "chatty"})
	if logger.GetLevel() != log.WarnLevel {
		t.Fatalf("expected warn, got %s", logger.GetLevel())
	}
}
