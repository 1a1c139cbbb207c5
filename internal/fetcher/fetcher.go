package fetcher

import (
	"context"
	"time"

	"kline-pager/internal/market"
	"kline-pager/internal/paging"
)

// KlineFetcher retrieves one page of klines starting at start.
type KlineFetcher interface {
	FetchPage(ctx context.Context, symbol string, interval paging.Interval, start time.Time, limit int) ([]market.Candle, error)
}
