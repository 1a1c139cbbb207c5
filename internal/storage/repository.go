package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"kline-pager/internal/market"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertCandleSQL = `INSERT INTO candles (
        symbol,
        timeframe,
        open_time,
        close_time,
        open,
        high,
        low,
        close,
        volume,
        trades
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (symbol, timeframe, open_time) DO UPDATE
    SET
        close_time = EXCLUDED.close_time,
        open       = EXCLUDED.open,
        high       = EXCLUDED.high,
        low        = EXCLUDED.low,
        close      = EXCLUDED.close,
        volume     = EXCLUDED.volume,
        trades     = EXCLUDED.trades;`

	listCandlesBetweenSQL = `SELECT
        symbol,
        timeframe,
        open_time,
        close_time,
        open,
        high,
        low,
        close,
        volume,
        trades
    FROM candles
    WHERE symbol = $1
      AND timeframe = $2
      AND open_time >= $3
      AND open_time < $4
    ORDER BY open_time;`

	listRecentCandlesSQL = `SELECT
        symbol,
        timeframe,
        open_time,
        close_time,
        open,
        high,
        low,
        close,
        volume,
        trades
    FROM candles
    WHERE symbol = $1
      AND timeframe = $2
    ORDER BY open_time DESC
    LIMIT $3;`

	countCandlesSQL = `SELECT COUNT(*) FROM candles WHERE symbol = $1 AND timeframe = $2;`

	insertLoadSQL = `INSERT INTO loads (
        run_id,
        symbol,
        timeframe,
        window_start,
        window_end,
        page_limit,
        pages,
        samples,
        status,
        error,
        took_ms
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    RETURNING id, created_at;`

	listRecentLoadsSQL = `SELECT
        id,
        run_id::text,
        symbol,
        timeframe,
        window_start,
        window_end,
        page_limit,
        pages,
        samples,
        status,
        error,
        took_ms,
        created_at
    FROM loads
    ORDER BY created_at DESC
    LIMIT $1;`
)

// CandleStore defines operations for candle persistence.
type CandleStore interface {
	UpsertCandles(ctx context.Context, candles []market.Candle) error
	ListCandlesBetween(ctx context.Context, symbol, interval string, from, to time.Time) ([]market.Candle, error)
	ListRecentCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
	CountCandles(ctx context.Context, symbol, interval string) (int64, error)
}

// LoadStore defines operations for load auditing.
type LoadStore interface {
	InsertLoad(ctx context.Context, rec LoadRecord) (LoadRecord, error)
	ListRecentLoads(ctx context.Context, limit int) ([]LoadRecord, error)
}

// Store aggregates access to candles and load records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertCandles persists a complete series in one batch.
func (s *Store) UpsertCandles(ctx context.Context, candles []market.Candle) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(upsertCandleSQL,
			c.Symbol,
			c.Interval,
			c.OpenTime,
			c.CloseTime,
			c.Open.String(),
			c.High.String(),
			c.Low.String(),
			c.Close.String(),
			c.Volume.String(),
			c.Trades,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := range candles {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("upsert candle %d: %w", i, execErr)
		}
	}
	return nil
}

// ListCandlesBetween lists candles opening in [from, to) ordered by open time.
func (s *Store) ListCandlesBetween(ctx context.Context, symbol, interval string, from, to time.Time) ([]market.Candle, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listCandlesBetweenSQL, symbol, interval, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list candles between: %w", queryErr)
	}
	defer rows.Close()

	return collectCandles(rows, 0)
}

// ListRecentCandles lists the most recent candles ordered by descending open time.
func (s *Store) ListRecentCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentCandlesSQL, symbol, interval, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent candles: %w", queryErr)
	}
	defer rows.Close()

	return collectCandles(rows, limit)
}

// CountCandles counts stored candles of one series.
func (s *Store) CountCandles(ctx context.Context, symbol, interval string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countCandlesSQL, symbol, interval).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count candles: %w", scanErr)
	}
	return count, nil
}

// InsertLoad persists a load record.
func (s *Store) InsertLoad(ctx context.Context, rec LoadRecord) (LoadRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return LoadRecord{}, err
	}

	row := pool.QueryRow(ctx, insertLoadSQL,
		rec.RunID,
		rec.Symbol,
		rec.Interval,
		rec.WindowStart,
		rec.WindowEnd,
		rec.PageLimit,
		rec.Pages,
		rec.Samples,
		rec.Status,
		rec.Error,
		rec.Took.Milliseconds(),
	)
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return LoadRecord{}, fmt.Errorf("insert load: %w", scanErr)
	}
	return rec, nil
}

// ListRecentLoads lists most recent load records.
func (s *Store) ListRecentLoads(ctx context.Context, limit int) ([]LoadRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentLoadsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent loads: %w", queryErr)
	}
	defer rows.Close()

	records := make([]LoadRecord, 0, limit)
	for rows.Next() {
		var (
			rec    LoadRecord
			errMsg sql.NullString
			tookMS int64
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.Symbol,
			&rec.Interval,
			&rec.WindowStart,
			&rec.WindowEnd,
			&rec.PageLimit,
			&rec.Pages,
			&rec.Samples,
			&rec.Status,
			&errMsg,
			&tookMS,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			msg := errMsg.String
			rec.Error = &msg
		}
		rec.Took = time.Duration(tookMS) * time.Millisecond
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func collectCandles(rows pgx.Rows, capacity int) ([]market.Candle, error) {
	candles := make([]market.Candle, 0, capacity)
	for rows.Next() {
		candle, scanErr := scanCandle(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		candles = append(candles, candle)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return candles, nil
}

func scanCandle(rows pgx.Rows) (market.Candle, error) {
	var c market.Candle
	var openStr, highStr, lowStr, closeStr, volumeStr string

	if err := rows.Scan(
		&c.Symbol,
		&c.Interval,
		&c.OpenTime,
		&c.CloseTime,
		&openStr,
		&highStr,
		&lowStr,
		&closeStr,
		&volumeStr,
		&c.Trades,
	); err != nil {
		return market.Candle{}, err
	}

	parsed, err := parseDecimals(openStr, highStr, lowStr, closeStr, volumeStr)
	if err != nil {
		return market.Candle{}, err
	}
	c.Open, c.High, c.Low, c.Close, c.Volume = parsed[0], parsed[1], parsed[2], parsed[3], parsed[4]
	c.OpenTime = c.OpenTime.UTC()
	c.CloseTime = c.CloseTime.UTC()
	return c, nil
}

func parseDecimals(values ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("parse numeric column %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

var (
	_ CandleStore = (*Store)(nil)
	_ LoadStore   = (*Store)(nil)
)
