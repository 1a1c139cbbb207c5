package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary aggregates a contiguous candle series into one bar.
type Summary struct {
	Count  int
	From   time.Time
	To     time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
	Trades int64
}

// Summarize folds candles ordered by open time. An empty series yields a zero Summary.
func Summarize(candles []Candle) Summary {
	if len(candles) == 0 {
		return Summary{}
	}
	first, last := candles[0], candles[len(candles)-1]
	s := Summary{
		Count:  len(candles),
		From:   first.OpenTime,
		To:     last.CloseTime,
		Open:   first.Open,
		High:   first.High,
		Low:    first.Low,
		Close:  last.Close,
		Volume: decimal.Zero,
	}
	for _, c := range candles {
		if c.High.GreaterThan(s.High) {
			s.High = c.High
		}
		if c.Low.LessThan(s.Low) {
			s.Low = c.Low
		}
		s.Volume = s.Volume.Add(c.Volume)
		s.Trades += c.Trades
	}
	return s
}

// Change returns Close-Open of the whole series as a percentage of Open.
func (s Summary) Change() decimal.Decimal {
	return Candle{Open: s.Open, Close: s.Close}.Change()
}
