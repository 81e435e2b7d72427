package confirmation

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"mysql-dump-manager/internal/backup"
	"mysql-dump-manager/internal/display"
)

func newTestConfirmer(input io.Reader, signals chan os.Signal) (Confirmer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	printer := display.NewPrinter(&display.DisplayConfig{Theme: "dark", Writer: out}, out)
	if signals == nil {
		signals = make(chan os.Signal, 1)
	}
	return NewRestoreConfirmer(printer, WithInput(input), WithOutput(out), WithSignals(signals)), out
}

func testArtifact() *backup.Artifact {
	return &backup.Artifact{
		ID:         7,
		Filename:   "dump_7.sql.gz",
		Filepath:   "backups/dump_7.sql.gz",
		SizeMB:     2.25,
		BackupType: backup.BackupTypeFull,
		CreatedAt:  time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC),
	}
}

func TestConfirmRestore_Answers(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"yes", "y\n", true},
		{"yes long", "YES\n", true},
		{"no", "n\n", false},
		{"default is no", "\n", false},
		{"eof is no", "", false},
		{"no trailing newline", "y", true},
		{"invalid then yes", "maybe\ny\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestConfirmer(strings.NewReader(tt.input), nil)

			got, err := c.ConfirmRestore(testArtifact(), false)
			if err != nil {
				t.Fatalf("ConfirmRestore returned error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %v for input %q, got %v", tt.expected, tt.input, got)
			}
		})
	}
}

func TestConfirmRestore_InvalidInputReprompts(t *testing.T) {
	c, out := newTestConfirmer(strings.NewReader("maybe\nn\n"), nil)

	if _, err := c.ConfirmRestore(testArtifact(), false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Invalid input 'maybe'") {
		t.Errorf("expected invalid input message, got:\n%s", out.String())
	}
	if strings.Count(out.String(), "[y/N/d]") != 2 {
		t.Errorf("expected two prompts, got:\n%s", out.String())
	}
}

func TestConfirmRestore_Details(t *testing.T) {
	c, out := newTestConfirmer(strings.NewReader("d\ny\n"), nil)

	ok, err := c.ConfirmRestore(testArtifact(), false)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected approval after details")
	}
	for _, want := range []string{"dump_7.sql.gz", "2.25 MB", "2026-01-05 08:00:00"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("details missing %q:\n%s", want, out.String())
		}
	}
}

func TestConfirmRestore_AutoApprove(t *testing.T) {
	c, out := newTestConfirmer(strings.NewReader(""), nil)

	ok, err := c.ConfirmRestore(testArtifact(), true)
	if err != nil || !ok {
		t.Fatalf("expected auto approval, got %v, %v", ok, err)
	}
	if strings.Contains(out.String(), "[y/N/d]") {
		t.Error("auto approval should not prompt")
	}
	if !strings.Contains(out.String(), "replaces the tables") {
		t.Error("warning should still be printed")
	}
}

func TestConfirmRestore_Interrupted(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()
	signals := make(chan os.Signal, 1)
	signals <- os.Interrupt

	c, _ := newTestConfirmer(reader, signals)

	ok, err := c.ConfirmRestore(testArtifact(), false)
	if ok {
		t.Error("interrupted restore must not be approved")
	}
	if !errors.Is(err, ErrInterrupted) {
		t.Errorf("expected ErrInterrupted, got %v", err)
	}
}
