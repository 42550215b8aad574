package tdt

// Dedup search bounds. The boundary window caps how long a duplicated run
// can be; the search radius caps how deep into the new sequence an interior
// match is accepted.
const (
	defaultBoundaryWindow = 12
	defaultSearchRadius   = 15
)

// DedupConfig tunes continuation deduplication.
type DedupConfig struct {
	// BoundaryWindow is the longest suffix/prefix run compared (default 12).
	BoundaryWindow int
	// SearchRadius bounds how far into the incoming sequence an interior
	// duplicate may start (default 15).
	SearchRadius int
	// TerminalIDs are sentence-final punctuation tokens, which duplicate
	// across continuation boundaries even in isolation.
	TerminalIDs []int32
}

func (c DedupConfig) withDefaults() DedupConfig {
	if c.BoundaryWindow <= 0 {
		c.BoundaryWindow = defaultBoundaryWindow
	}
	if c.SearchRadius <= 0 {
		c.SearchRadius = defaultSearchRadius
	}
	return c
}

func (c DedupConfig) isTerminal(id int32) bool {
	for _, t := range c.TerminalIDs {
		if t == id {
			return true
		}
	}
	return false
}

// Deduplicate removes a leading duplicate run from an incoming streaming
// continuation. prev is the already accumulated token tail, curr the new
// sequence. It returns curr without the duplicated prefix and the count of
// removed leading tokens, so the caller can drop the same count of aligned
// timestamps and confidences.
func Deduplicate(prev, curr []int32, cfg DedupConfig) ([]int32, int) {
	cfg = cfg.withDefaults()
	if len(prev) == 0 || len(curr) == 0 {
		return curr, 0
	}

	removed := 0

	// A sentence-final token repeating across the seam is a duplicate even
	// on its own; anything else needs a run of at least two to count.
	if cfg.isTerminal(curr[0]) && curr[0] == prev[len(prev)-1] {
		curr = curr[1:]
		removed = 1
		if len(curr) == 0 {
			return curr, removed
		}
	}

	// Exact boundary match: longest suffix of prev equal to a prefix of
	// curr, longest first.
	limit := cfg.BoundaryWindow
	if len(prev) < limit {
		limit = len(prev)
	}
	if len(curr) < limit {
		limit = len(curr)
	}
	for n := limit; n >= 2; n-- {
		if equalRun(prev[len(prev)-n:], curr[:n]) {
			return curr[n:], removed + n
		}
	}

	// No clean boundary: look for prev's tail reappearing a little way into
	// curr (the continuation re-decoded some context before the seam) and
	// drop everything up to and including it.
	tail := prev
	if len(tail) > cfg.BoundaryWindow {
		tail = tail[len(tail)-cfg.BoundaryWindow:]
	}
	radius := cfg.SearchRadius
	if len(curr)-2 < radius {
		radius = len(curr) - 2
	}
	for start := 1; start <= radius; start++ {
		for p := 0; p+2 <= len(tail); p++ {
			if tail[p] == curr[start] && tail[p+1] == curr[start+1] {
				return curr[start+2:], removed + start + 2
			}
		}
	}

	return curr, removed
}

func equalRun(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
