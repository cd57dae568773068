package domain

// Instrument identifies a tradable security.
// Corresponds to instruments table in PostgreSQL. Immutable once loaded.
type Instrument struct {
	Symbol        string // PRIMARY KEY, unique ticker symbol
	Exchange      string // listing exchange (NSE, BSE, ...)
	Name          string // display name
	Sector        string // e.g. "Banking", "IT"
	Industry      string // e.g. "Private Banks"
	InstrumentKey string // feed-side identifier, e.g. "NSE_EQ|INE002A01018" (optional)
}
