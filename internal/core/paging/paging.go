// Package paging implements the "show first N / show all" view over a filtered collection.
package paging

// DefaultLimit is the number of rows shown before "show all".
const DefaultLimit = 10

// Window selects the visible slice of a collection.
type Window struct {
	All   bool
	Limit int
}

// Default returns the collapsed window every screen starts with.
func Default() Window {
	return Window{Limit: DefaultLimit}
}

// Toggle flips between the collapsed and expanded views.
func (w Window) Toggle() Window {
	w.All = !w.All
	return w
}

// Hidden returns how many of n items the window does not show.
func (w Window) Hidden(n int) int {
	return n - w.size(n)
}

func (w Window) size(n int) int {
	if w.All {
		return n
	}
	return max(0, min(w.Limit, n))
}

// Visible returns the items the window shows. The result aliases items.
func Visible[T any](items []T, w Window) []T {
	return items[:w.size(len(items))]
}
