package line

import "fmt"

// MaxPoolSize bounds the configured parallelism.
const MaxPoolSize = 10

// Pool is the fixed-size collection of lines enforcing the campaign's
// parallelism bound. The pool owns its lines for their whole lifetime.
type Pool struct {
	lines []*Line
}

// NewPool creates size lines numbered 1..size.
func NewPool(size int) (*Pool, error) {
	if size < 1 || size > MaxPoolSize {
		return nil, fmt.Errorf("line pool: size %d outside 1..%d", size, MaxPoolSize)
	}
	lines := make([]*Line, 0, size)
	for i := 1; i <= size; i++ {
		lines = append(lines, New(i))
	}
	return &Pool{lines: lines}, nil
}

// Size returns the parallelism bound.
func (p *Pool) Size() int { return len(p.lines) }

// Get returns the line with the given id, nil if out of range.
func (p *Pool) Get(id int) *Line {
	if id < 1 || id > len(p.lines) {
		return nil
	}
	return p.lines[id-1]
}

// All returns every line in slot order.
func (p *Pool) All() []*Line {
	return p.lines
}

// Idle returns the lines currently free for assignment.
func (p *Pool) Idle() []*Line {
	var idle []*Line
	for _, l := range p.lines {
		if l.State() == StateIdle {
			idle = append(idle, l)
		}
	}
	return idle
}

// Active counts lines in a non-idle state.
func (p *Pool) Active() int {
	n := 0
	for _, l := range p.lines {
		if l.State() != StateIdle {
			n++
		}
	}
	return n
}

// AllIdle reports whether every line is free.
func (p *Pool) AllIdle() bool {
	return p.Active() == 0
}

// Snapshots returns observer views for every line.
func (p *Pool) Snapshots() []View {
	out := make([]View, 0, len(p.lines))
	for _, l := range p.lines {
		out = append(out, l.Snapshot())
	}
	return out
}
