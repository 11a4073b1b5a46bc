package supervisor

import "sync"

// lineRing is a bounded ring buffer of output lines. Once full, the
// oldest line is overwritten.
type lineRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newLineRing(capacity int) *lineRing {
	if capacity <= 0 {
		capacity = 500
	}
	return &lineRing{lines: make([]string, capacity)}
}

func (r *lineRing) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines[r.next] = line
	r.next++
	if r.next == len(r.lines) {
		r.next = 0
		r.full = true
	}
}

// Last returns up to n lines, oldest first. n <= 0 returns everything
// retained.
func (r *lineRing) Last(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ordered []string
	if r.full {
		ordered = append(ordered, r.lines[r.next:]...)
		ordered = append(ordered, r.lines[:r.next]...)
	} else {
		ordered = append(ordered, r.lines[:r.next]...)
	}

	if n > 0 && n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}
