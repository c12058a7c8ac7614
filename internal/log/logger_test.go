package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigureAttachesServiceAndVersion(t *testing.T) {
	var buf bytes.Buffer
	Reconfigure(Config{Level: "debug", Output: &buf, Service: "powerstats-test", Version: "1.2.3"})

	Base().Info().Str(FieldEvent, "test.configure").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["service"] != "powerstats-test" {
		t.Errorf("service = %v, want powerstats-test", entry["service"])
	}
	if entry["version"] != "1.2.3" {
		t.Errorf("version = %v, want 1.2.3", entry["version"])
	}
	if entry["event"] != "test.configure" {
		t.Errorf("event = %v", entry["event"])
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Reconfigure(Config{Level: "debug", Output: &buf, Service: "powerstats-test"})

	WithComponent("poller").Info().Msg("tick")

	if !strings.Contains(buf.String(), `"component":"poller"`) {
		t.Fatalf("component field missing: %q", buf.String())
	}
}

func TestConfigureFirstCallWins(t *testing.T) {
	var first, second bytes.Buffer
	Reconfigure(Config{Level: "debug", Output: &first, Service: "a"})
	Configure(Config{Level: "debug", Output: &second, Service: "b"})

	Base().Info().Msg("routed")

	if first.Len() == 0 {
		t.Fatal("first configuration was not kept")
	}
	if second.Len() != 0 {
		t.Fatal("second Configure unexpectedly replaced the logger")
	}
}

func TestDerive(t *testing.T) {
	var buf bytes.Buffer
	Reconfigure(Config{Level: "debug", Output: &buf, Service: "powerstats-test"})

	l := Derive(func(ctx *zerolog.Context) {
		*ctx = ctx.Str(FieldBackend, "hal")
	})
	l.Info().Msg("derived")

	if !strings.Contains(buf.String(), `"backend":"hal"`) {
		t.Fatalf("derived field missing: %q", buf.String())
	}
}
