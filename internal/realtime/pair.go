package realtime

// PairKey builds a stable key for the unordered pair of identities, so both
// sides of a conversation address the same channel regardless of direction.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}
