package cart

// command is one local mutation of a single line together with the
// snapshot needed to compensate it.
type command struct {
	owner     string
	productID string
	// before is the line as it was prior to the mutation; valid when existed.
	before  Line
	existed bool
	index   int
	// gen is the manager generation the command was applied in. A reload or
	// clear bumps the generation and voids pending compensations.
	gen     uint64
	restore RollbackPolicy
}

// apply runs fn on a copy of lines. fn receives the current line for the
// command's product, if any, and returns the replacement; ok=false removes
// the line.
func (c *command) apply(lines []Line, fn func(cur Line, exists bool) (next Line, ok bool)) []Line {
	c.index = indexOf(lines, c.productID)
	c.existed = c.index >= 0
	var cur Line
	if c.existed {
		cur = lines[c.index]
		c.before = cur
	}

	next, ok := fn(cur, c.existed)
	out := make([]Line, 0, len(lines)+1)
	switch {
	case c.existed && ok:
		out = append(out, lines...)
		out[c.index] = next
	case c.existed:
		out = append(out, lines[:c.index]...)
		out = append(out, lines[c.index+1:]...)
	case ok:
		out = append(out, lines...)
		out = append(out, next)
	default:
		out = append(out, lines...)
	}
	return out
}

// revert undoes the mutation on a copy of lines.
func (c *command) revert(lines []Line) []Line {
	i := indexOf(lines, c.productID)
	out := make([]Line, 0, len(lines)+1)

	if !c.existed || c.restore == RollbackRemove {
		if i < 0 {
			return append(out, lines...)
		}
		out = append(out, lines[:i]...)
		return append(out, lines[i+1:]...)
	}

	out = append(out, lines...)
	if i >= 0 {
		out[i] = c.before
		return out
	}
	at := min(c.index, len(out))
	out = append(out[:at], append([]Line{c.before}, out[at:]...)...)
	return out
}
