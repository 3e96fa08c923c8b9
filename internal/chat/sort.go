package chat

import "sort"

// SortSessions returns a new slice ordered descending by resolved
// last-message date. The sort is stable: ties keep their arrival order.
// The input is never mutated; display order is a derivation, not state.
func SortSessions(sessions []Session) []Session {
	out := make([]Session, len(sessions))
	copy(out, sessions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageDate() > out[j].LastMessageDate()
	})
	return out
}

// Chronological converts a newest-first message page (the REST wire
// order) into oldest-first display order. It always returns a fresh
// slice, so applying it once per fetch can never accumulate into a
// double reversal.
func Chronological(newestFirst []Message) []Message {
	out := make([]Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out
}
