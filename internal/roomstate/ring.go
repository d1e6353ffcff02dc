package roomstate

// logRing keeps the most recent lines of a room, oldest first.
type logRing struct {
	lines []string
	start int
	size  int
}

func newLogRing(capacity int) *logRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &logRing{lines: make([]string, capacity)}
}

func (r *logRing) push(line string) {
	if r.size < len(r.lines) {
		r.lines[(r.start+r.size)%len(r.lines)] = line
		r.size++
		return
	}
	r.lines[r.start] = line
	r.start = (r.start + 1) % len(r.lines)
}

func (r *logRing) snapshot() []string {
	out := make([]string, r.size)
	for i := range r.size {
		out[i] = r.lines[(r.start+i)%len(r.lines)]
	}
	return out
}
