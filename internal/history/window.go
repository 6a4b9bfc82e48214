package history

// WindowEntries bounds entries first by turn count (the most recent
// 2*maxTurns entries, one turn pair being a user and an assistant entry)
// and then by character budget scanning backward from the newest entry.
// The newest entry survives even when it alone exceeds the budget. Order
// of the result is chronological.
func WindowEntries(entries []Entry, maxTurns, maxChars int) []Entry {
	if len(entries) == 0 {
		return nil
	}
	if maxTurns > 0 {
		if limit := 2 * maxTurns; len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
	}
	if maxChars <= 0 {
		return entries
	}

	total := 0
	start := len(entries)
	for i := len(entries) - 1; i >= 0; i-- {
		total += len(entries[i].Text)
		if total > maxChars && start < len(entries) {
			break
		}
		start = i
	}
	return entries[start:]
}
