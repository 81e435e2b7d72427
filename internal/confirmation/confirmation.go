package confirmation

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mysql-dump-manager/internal/backup"
	"mysql-dump-manager/internal/display"
)

// ErrInterrupted is returned when the prompt is cancelled with a signal
var ErrInterrupted = errors.New("operation cancelled by user")

// Confirmer asks the operator to approve a destructive restore
type Confirmer interface {
	ConfirmRestore(artifact *backup.Artifact, autoApprove bool) (bool, error)
}

type restoreConfirmer struct {
	printer *display.Printer
	reader  *bufio.Reader
	out     io.Writer
	signals chan os.Signal
}

// Option configures a confirmer
type Option func(*restoreConfirmer)

// WithInput replaces stdin
func WithInput(r io.Reader) Option {
	return func(c *restoreConfirmer) { c.reader = bufio.NewReader(r) }
}

// WithOutput replaces stdout for the prompt itself
func WithOutput(w io.Writer) Option {
	return func(c *restoreConfirmer) { c.out = w }
}

// WithSignals makes the confirmer listen on ch instead of registering for
// SIGINT and SIGTERM
func WithSignals(ch chan os.Signal) Option {
	return func(c *restoreConfirmer) { c.signals = ch }
}

// NewRestoreConfirmer creates a confirmer that prints artifact details
// through printer
func NewRestoreConfirmer(printer *display.Printer, opts ...Option) Confirmer {
	c := &restoreConfirmer{
		printer: printer,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConfirmRestore warns that the live schema will be replaced and prompts
// with [y/N/d]. "d" prints the artifact and asks again.
func (c *restoreConfirmer) ConfirmRestore(artifact *backup.Artifact, autoApprove bool) (bool, error) {
	c.printer.Warning(fmt.Sprintf("Restoring backup %d (%s) replaces the tables it contains in the live database.", artifact.ID, artifact.Filename))

	if autoApprove {
		c.printer.Info("Auto-approving restore")
		return true, nil
	}

	signals := c.signals
	if signals == nil {
		signals = make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(signals)
	}

	for {
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			input, err := c.prompt()
			if err != nil {
				errCh <- err
				return
			}
			inputCh <- input
		}()

		var input string
		select {
		case <-signals:
			fmt.Fprintln(c.out)
			c.printer.Warning("Restore cancelled")
			return false, ErrInterrupted
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, fmt.Errorf("failed to read user input: %w", err)
		case input = <-inputCh:
		}

		switch strings.ToLower(input) {
		case "y", "yes":
			return true, nil
		case "n", "no", "":
			return false, nil
		case "d", "details":
			fmt.Fprintln(c.out)
			if err := c.printer.PrintArtifact(artifact); err != nil {
				return false, err
			}
			fmt.Fprintln(c.out)
		default:
			fmt.Fprintf(c.out, "Invalid input '%s'. Please enter 'y' for yes, 'n' for no, or 'd' for details.\n", input)
		}
	}
}

func (c *restoreConfirmer) prompt() (string, error) {
	fmt.Fprint(c.out, "Do you want to restore this backup? [y/N/d]: ")
	input, err := c.reader.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
