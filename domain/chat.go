package domain

// Chat is the durable record of a two-party conversation.
// Its member pair is immutable after creation; only the message log grows.
type Chat struct {
	ID      string
	Members [2]string
}

// SortedPair normalizes an unordered member pair so that {A, B} and {B, A}
// map to the same storage key.
func SortedPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}
