package pipeline

// PathSet is a set of image identifiers.
type PathSet map[string]struct{}

// NewPathSet builds a set from a list of paths.
func NewPathSet(paths []string) PathSet {
	set := make(PathSet, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether path is in the set.
func (s PathSet) Has(path string) bool {
	_, ok := s[path]
	return ok
}

// Remaining returns the candidates that are not already persisted, keeping
// their relative order. Identifiers are compared byte for byte: "a/b.jpg" and
// "./a/b.jpg" are different images. Duplicates within candidates are kept.
func Remaining(candidates []string, persisted PathSet) []string {
	remaining := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !persisted.Has(c) {
			remaining = append(remaining, c)
		}
	}
	return remaining
}
