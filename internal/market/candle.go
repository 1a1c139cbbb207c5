package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one kline as returned by the exchange.
type Candle struct {
	Symbol    string          `json:"symbol"`
	Interval  string          `json:"interval"`
	OpenTime  time.Time       `json:"open_time"`
	CloseTime time.Time       `json:"close_time"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Trades    int64           `json:"trades"`
}

// Change returns Close-Open as a percentage of Open.
func (c Candle) Change() decimal.Decimal {
	if c.Open.IsZero() {
		return decimal.Zero
	}
	return c.Close.Sub(c.Open).Div(c.Open).Mul(decimal.NewFromInt(100))
}
