package assembly

// Artifact describes a finished highlight file. The caller owns the file.
type Artifact struct {
	Path string
	// Duration is the probed output length in seconds.
	Duration float64
	Segments int
	Strategy Strategy
	// Modes holds the extraction mode of each segment in output order.
	Modes []Mode
	// Retried lists segments that needed the re-encode fallback.
	Retried  []int
	HasIntro bool
	Warnings []string
}

// CopiedSegments counts the stream-copied segments
func (a *Artifact) CopiedSegments() int {
	n := 0
	for _, m := range a.Modes {
		if m == ModeCopy {
			n++
		}
	}
	return n
}
