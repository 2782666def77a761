// Package quote looks up stock quotes.
package quote

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("quote not found")

// Quote is the latest trade summary for a symbol. Prices keep the exact
// decimal text the source sent.
type Quote struct {
	Symbol string
	Date   time.Time
	Time   string
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// Fetcher resolves a stock code to its latest quote. A nil quote with a nil
// error means the source has no data for the code; an error means the lookup
// itself failed.
type Fetcher interface {
	Fetch(ctx context.Context, code string) (*Quote, error)
}
