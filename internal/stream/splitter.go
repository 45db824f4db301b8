package stream

import (
	"strings"
	"unicode/utf8"
)

// MaxLineBytes bounds a single line. Output running longer without a boundary
// is emitted in MaxLineBytes pieces, cut on a rune boundary.
const MaxLineBytes = 64 * 1024

// Splitter frames a byte stream into lines. Both '\n' and '\r' end a line so
// that progress indicators redrawn with carriage returns yield one candidate
// line per frame. "\r\n" is two boundaries around an empty segment.
type Splitter struct {
	buf []byte
}

// Feed consumes one byte. It returns a line when b completes a non-empty,
// valid UTF-8 line after trimming.
func (s *Splitter) Feed(b byte) (string, bool) {
	if b != '\n' && b != '\r' {
		s.buf = append(s.buf, b)
		if len(s.buf) >= MaxLineBytes {
			return s.overflow()
		}
		return "", false
	}
	return s.take()
}

// overflow emits the buffered bytes as a line, keeping an incomplete trailing
// rune for the next piece.
func (s *Splitter) overflow() (string, bool) {
	cut := len(s.buf)
	for i := len(s.buf) - 1; i >= 0 && i > len(s.buf)-utf8.UTFMax; i-- {
		if utf8.RuneStart(s.buf[i]) {
			if !utf8.FullRune(s.buf[i:]) {
				cut = i
			}
			break
		}
	}
	rest := append([]byte(nil), s.buf[cut:]...)
	s.buf = s.buf[:cut]
	line, ok := s.take()
	s.buf = append(s.buf, rest...)
	return line, ok
}

// Flush returns the pending partial line at end of stream.
func (s *Splitter) Flush() (string, bool) { return s.take() }

// Pending reports how many bytes are buffered without a boundary.
func (s *Splitter) Pending() int { return len(s.buf) }

func (s *Splitter) take() (string, bool) {
	if len(s.buf) == 0 {
		return "", false
	}
	raw := s.buf
	s.buf = s.buf[:0]
	// invalid byte sequences drop the whole segment
	if !utf8.Valid(raw) {
		return "", false
	}
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return "", false
	}
	return line, true
}

// SplitLines runs data through a fresh Splitter and returns every framed line,
// including a final partial one. Duplicates are not removed.
func SplitLines(data []byte) []string {
	var (
		sp  Splitter
		out []string
	)
	for _, b := range data {
		if l, ok := sp.Feed(b); ok {
			out = append(out, l)
		}
	}
	if l, ok := sp.Flush(); ok {
		out = append(out, l)
	}
	return out
}
