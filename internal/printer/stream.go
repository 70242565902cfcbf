package printer

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Stream writes whole lines to a shared writer from many goroutines, each
// line optionally colored. Lines never interleave.
type Stream struct {
	mu      sync.Mutex
	w       io.Writer
	colored bool
	colors  map[color.Attribute]*color.Color
}

// NewStream returns a Stream over w. With colored false every line is
// written plain.
func NewStream(w io.Writer, colored bool) *Stream {
	return &Stream{w: w, colored: colored, colors: map[color.Attribute]*color.Color{}}
}

func (s *Stream) color(attr color.Attribute) *color.Color {
	c, ok := s.colors[attr]
	if !ok {
		c = color.New(attr)
		if s.colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		s.colors[attr] = c
	}
	return c
}

// Println writes the operands, concatenated without separators, as one line.
func (s *Stream) Println(attr color.Attribute, a ...any) {
	var b strings.Builder
	for _, v := range a {
		fmt.Fprint(&b, v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.color(attr).Fprintln(s.w, b.String())
}

// Printf writes one formatted line; a trailing newline is added if missing.
func (s *Stream) Printf(attr color.Attribute, format string, a ...any) {
	line := strings.TrimSuffix(fmt.Sprintf(format, a...), "\n")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.color(attr).Fprintln(s.w, line)
}

// Logf returns a printf-style function that writes through the stream in
// attr, for components that accept a log function.
func (s *Stream) Logf(attr color.Attribute) func(format string, a ...any) {
	return func(format string, a ...any) {
		s.Printf(attr, format, a...)
	}
}
