package display

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// SpinnerStyle defines the visual style of a spinner
type SpinnerStyle struct {
	Frames []string
	Delay  time.Duration
}

var (
	DotsSpinner = SpinnerStyle{
		Frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		Delay:  80 * time.Millisecond,
	}
	LineSpinner = SpinnerStyle{
		Frames: []string{"-", "\\", "|", "/"},
		Delay:  100 * time.Millisecond,
	}
)

// Spinner shows that a long operation such as a dump or restore is running.
// On writers that are not terminals it prints the message once instead of
// animating.
type Spinner struct {
	message string
	style   SpinnerStyle
	writer  io.Writer
	colors  ColorSystem
	animate bool

	mu     sync.Mutex
	active bool
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSpinner creates a stopped spinner
func NewSpinner(message string, writer io.Writer, colors ColorSystem, unicode bool) *Spinner {
	style := LineSpinner
	if unicode {
		style = DotsSpinner
	}
	return &Spinner{
		message: message,
		style:   style,
		writer:  writer,
		colors:  colors,
		animate: isTerminal(writer),
	}
}

// Start begins the animation
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}
	s.active = true

	if !s.animate {
		fmt.Fprintln(s.writer, s.message+"...")
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run(s.stopCh, s.doneCh)
}

// Stop ends the animation and prints finalMessage when it is not empty
func (s *Spinner) Stop(finalMessage string) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
		fmt.Fprint(s.writer, "\r\033[K")
	}
	if finalMessage != "" {
		fmt.Fprintln(s.writer, finalMessage)
	}
}

// Active reports whether the spinner is running
func (s *Spinner) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Spinner) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.style.Delay)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			text := s.style.Frames[frame%len(s.style.Frames)]
			if s.colors != nil {
				text = s.colors.Colorize(text, s.colors.Theme().Primary)
			}
			fmt.Fprintf(s.writer, "\r\033[K%s %s", text, s.message)
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
