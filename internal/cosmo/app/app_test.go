package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cosmo-os/cosmo/internal/cosmo/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(&config.Config{
		Backend:      "ollama",
		DatabasePath: filepath.Join(t.TempDir(), "cosmo.db"),
		Timeout:      time.Second,
		ConfirmTTL:   300 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Stop)
	return a
}

func TestNew_WiresWithoutNetwork(t *testing.T) {
	// Construction opens the store and builds the provider but dials nothing.
	newTestApp(t)
}

func TestServe_ConfirmCommandsAreHandledLocally(t *testing.T) {
	a := newTestApp(t)

	var out strings.Builder
	in := strings.NewReader("/confirm nope\n/reject nope\n")
	if err := a.serve(context.Background(), in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output = %q", out.String())
	}
	// Unknown ids resolve to an error reply without a model round-trip.
	for _, line := range lines {
		if !strings.HasPrefix(line, "error:") {
			t.Errorf("line = %q, want error reply", line)
		}
	}
}

func TestHandleCommand_PlainTextIsNotACommand(t *testing.T) {
	a := newTestApp(t)
	if _, handled := a.handleCommand(context.Background(), "remind me to confirm the booking"); handled {
		t.Error("plain text treated as a slash command")
	}
	if _, handled := a.handleCommand(context.Background(), "/confirm"); handled {
		t.Error("bare /confirm treated as a command")
	}
}
