package seq

// Minimum returns the lowest value among the given sequences,
// or the fallback when the slice is empty.
func Minimum(sequences []*Sequence, fallback int64) int64 {
	minimum := fallback

	for _, s := range sequences {
		if value := s.Get(); value < minimum {
			minimum = value
		}
	}

	return minimum
}
