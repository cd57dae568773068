package screening

import (
	"sort"

	"quote-screener/internal/domain"
)

// less orders rows by the sort key. Rows lacking the sort field go last;
// ties break on symbol ascending so pagination stays deterministic.
func less(a, b Row, key domain.SortKey) bool {
	va, oka := a.Quote.Value(key.Field)
	vb, okb := b.Quote.Value(key.Field)

	if oka != okb {
		return oka
	}
	if oka && va != vb {
		if key.Descending {
			return va > vb
		}
		return va < vb
	}
	return a.Instrument.Symbol < b.Instrument.Symbol
}

func sortRows(rows []Row, key domain.SortKey) {
	sort.Slice(rows, func(i, j int) bool {
		return less(rows[i], rows[j], key)
	})
}

// mergeRows merges two slices already sorted by key.
func mergeRows(a, b []Row, key domain.SortKey) []Row {
	out := make([]Row, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if less(b[j], a[i], key) {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
