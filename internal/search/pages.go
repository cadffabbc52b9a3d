package search

// PageWindow lists the page buttons a pager shows: the first and last page
// plus the current page and its neighbours. A zero marks elided pages.
// Nothing is returned when there is at most one page.
func PageWindow(current, total int) []int {
	if total <= 1 {
		return nil
	}
	current = min(max(current, 1), total)

	var out []int
	prev := 0
	for p := 1; p <= total; p++ {
		if p != 1 && p != total && (p < current-1 || p > current+1) {
			continue
		}
		if prev != 0 && p-prev > 1 {
			out = append(out, 0)
		}
		out = append(out, p)
		prev = p
	}
	return out
}
