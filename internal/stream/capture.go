package stream

import (
	"strings"
	"sync"
)

// Capture collects the lines one stream forwarded, in order.
type Capture struct {
	mu    sync.Mutex
	lines []string
}

func (c *Capture) Append(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

func (c *Capture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Capture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Join returns the captured lines joined by '\n'.
func (c *Capture) Join() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.lines, "\n")
}
