package screening

import (
	"time"

	"quote-screener/internal/domain"
)

// Row is one ranked result: an instrument and the quote it matched with.
type Row struct {
	Instrument domain.Instrument
	Quote      *domain.Quote
}

// Snapshot is the immutable output of one complete pass.
// Readers may hold it indefinitely; passes publish a new one.
type Snapshot struct {
	// Version increments when membership or order changes.
	Version uint64
	// Epoch increments on criteria replacement. Diffs never cross epochs.
	Epoch       uint64
	Criteria    *domain.CriteriaSet
	Sort        domain.SortKey
	Rows        []Row
	PublishedAt time.Time

	index   map[string]int
	history []*orderRecord // oldest first; last entry is Version
}

// orderRecord is the result order at one version.
type orderRecord struct {
	version uint64
	epoch   uint64
	symbols []string
}

// Len returns the number of rows.
func (s *Snapshot) Len() int {
	return len(s.Rows)
}

// Row returns the row for symbol and its rank (0-based).
func (s *Snapshot) Row(symbol string) (Row, int, bool) {
	i, ok := s.index[symbol]
	if !ok {
		return Row{}, -1, false
	}
	return s.Rows[i], i, true
}

// Symbols returns the current order.
func (s *Snapshot) Symbols() []string {
	out := make([]string, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = r.Instrument.Symbol
	}
	return out
}

// OrderAt returns the result order recorded for version.
// ok is false when the version is unknown or no longer retained.
func (s *Snapshot) OrderAt(version uint64) (symbols []string, epoch uint64, ok bool) {
	for i := len(s.history) - 1; i >= 0; i-- {
		rec := s.history[i]
		if rec.version == version {
			return rec.symbols, rec.epoch, true
		}
		if rec.version < version {
			break
		}
	}
	return nil, 0, false
}

// OldestVersion returns the oldest version still retained for diffs.
func (s *Snapshot) OldestVersion() uint64 {
	if len(s.history) == 0 {
		return s.Version
	}
	return s.history[0].version
}

func buildIndex(rows []Row) map[string]int {
	index := make(map[string]int, len(rows))
	for i, r := range rows {
		index[r.Instrument.Symbol] = i
	}
	return index
}

func sameOrder(a []string, rows []Row) bool {
	if len(a) != len(rows) {
		return false
	}
	for i, r := range rows {
		if a[i] != r.Instrument.Symbol {
			return false
		}
	}
	return true
}
