package domain

import "time"

// Quote is the latest market snapshot for an instrument.
// Owned by the quote store; one quote per symbol, latest wins.
type Quote struct {
	Symbol        string    // instrument symbol
	Price         float64   // last traded price
	Change        float64   // absolute change vs previous close
	ChangePercent float64   // percent change vs previous close
	Volume        float64   // traded volume
	Timestamp     int64     // exchange timestamp, Unix ms; monotonic per symbol
	LastUpdated   time.Time // wall clock when the store accepted the quote

	// Fundamentals and technicals. Nil means the feed did not supply it.
	MarketCap     *float64 // crore
	PERatio       *float64
	PBRatio       *float64
	DividendYield *float64 // percent
	ROE           *float64 // percent
	RSI           *float64
	Beta          *float64
	Revenue       *float64 // crore
	RevenueGrowth *float64 // percent
	DebtToEquity  *float64
}

// Value returns the named field and whether the quote carries it.
func (q *Quote) Value(f Field) (float64, bool) {
	switch f {
	case FieldPrice:
		return q.Price, true
	case FieldChange:
		return q.Change, true
	case FieldChangePercent:
		return q.ChangePercent, true
	case FieldVolume:
		return q.Volume, true
	case FieldMarketCap:
		return deref(q.MarketCap)
	case FieldPERatio:
		return deref(q.PERatio)
	case FieldPBRatio:
		return deref(q.PBRatio)
	case FieldDividendYield:
		return deref(q.DividendYield)
	case FieldROE:
		return deref(q.ROE)
	case FieldRSI:
		return deref(q.RSI)
	case FieldBeta:
		return deref(q.Beta)
	case FieldRevenue:
		return deref(q.Revenue)
	case FieldRevenueGrowth:
		return deref(q.RevenueGrowth)
	case FieldDebtToEquity:
		return deref(q.DebtToEquity)
	}
	return 0, false
}

// Clone returns a deep copy of the quote.
func (q *Quote) Clone() *Quote {
	c := *q
	c.MarketCap = clonePtr(q.MarketCap)
	c.PERatio = clonePtr(q.PERatio)
	c.PBRatio = clonePtr(q.PBRatio)
	c.DividendYield = clonePtr(q.DividendYield)
	c.ROE = clonePtr(q.ROE)
	c.RSI = clonePtr(q.RSI)
	c.Beta = clonePtr(q.Beta)
	c.Revenue = clonePtr(q.Revenue)
	c.RevenueGrowth = clonePtr(q.RevenueGrowth)
	c.DebtToEquity = clonePtr(q.DebtToEquity)
	return &c
}

// Float returns a pointer to v. Used for optional quote fields.
func Float(v float64) *float64 {
	return &v
}

func deref(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
