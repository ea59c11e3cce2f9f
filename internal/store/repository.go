package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("store: pool not configured")
	// ErrDuplicateDate indicates an insert raced an existing record for the
	// same rate date.
	ErrDuplicateDate = errors.New("store: record already exists for rate date")
)

const (
	insertFxRecordSQL = `INSERT INTO fx_rates (
        rate_date,
        bid_rate,
        ask_rate,
        mid_rate,
        gold_price,
        source
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id;`

	findByDateSQL = `SELECT
        id,
        rate_date,
        bid_rate,
        ask_rate,
        mid_rate,
        gold_price,
        source,
        created_at,
        updated_at
    FROM fx_rates
    WHERE rate_date = $1;`

	attachGoldSQL = `UPDATE fx_rates
    SET gold_price = $2, updated_at = now()
    WHERE rate_date = $1
      AND gold_price IS NULL;`

	listRecentSQL = `SELECT
        id,
        rate_date,
        bid_rate,
        ask_rate,
        mid_rate,
        gold_price,
        source,
        created_at,
        updated_at
    FROM fx_rates
    ORDER BY rate_date DESC
    LIMIT $1;`

	listBetweenSQL = `SELECT
        id,
        rate_date,
        bid_rate,
        ask_rate,
        mid_rate,
        gold_price,
        source,
        created_at,
        updated_at
    FROM fx_rates
    WHERE rate_date >= $1
      AND rate_date <= $2
    ORDER BY rate_date;`

	latestDateSQL = `SELECT MAX(rate_date) FROM fx_rates;`
)

// Gateway is the persistence surface the pipeline reconciles against.
type Gateway interface {
	FindByDate(ctx context.Context, day time.Time) (*FxRecord, error)
	Insert(ctx context.Context, record FxRecord) (int64, error)
	AttachGold(ctx context.Context, day time.Time, value decimal.Decimal) (bool, error)
}

// Store provides access to the canonical fx_rates table.
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

// Ping verifies connectivity without touching data.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// FindByDate returns the record for a rate date, or nil when none exists.
func (s *Store) FindByDate(ctx context.Context, day time.Time) (*FxRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, findByDateSQL, day)
	if queryErr != nil {
		return nil, fmt.Errorf("find record by date: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, fmt.Errorf("find record by date: %w", rows.Err())
		}
		return nil, nil
	}

	record, scanErr := scanFxRecord(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &record, nil
}

// Insert persists a new canonical record and returns its id. A record
// already present for the same rate date surfaces ErrDuplicateDate.
func (s *Store) Insert(ctx context.Context, record FxRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var gold interface{}
	if record.GoldPrice != nil {
		gold = record.GoldPrice.String()
	}

	var id int64
	scanErr := pool.QueryRow(ctx, insertFxRecordSQL,
		record.RateDate,
		record.BidRate.String(),
		record.AskRate.String(),
		record.MidRate.String(),
		gold,
		record.Source,
	).Scan(&id)
	if scanErr != nil {
		var pgErr *pgconn.PgError
		if errors.As(scanErr, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateDate
		}
		return 0, fmt.Errorf("insert record: %w", scanErr)
	}
	return id, nil
}

// AttachGold sets the derived gold price on the record for a rate date,
// touching only records that do not carry one yet. The false return is the
// idempotent second call: the record is absent or already has gold.
func (s *Store) AttachGold(ctx context.Context, day time.Time, value decimal.Decimal) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	cmdTag, execErr := pool.Exec(ctx, attachGoldSQL, day, value.String())
	if execErr != nil {
		return false, fmt.Errorf("attach gold: %w", execErr)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// ListRecent lists the most recent records ordered by descending rate date.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]FxRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent records: %w", queryErr)
	}
	defer rows.Close()

	return collectFxRecords(rows, limit)
}

// ListBetween lists records within an inclusive date window.
func (s *Store) ListBetween(ctx context.Context, from, to time.Time) ([]FxRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list records between: %w", queryErr)
	}
	defer rows.Close()

	return collectFxRecords(rows, 0)
}

// LatestDate returns the most recent rate date on record; ok is false for an
// empty table.
func (s *Store) LatestDate(ctx context.Context) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}

	var latest *time.Time
	if scanErr := pool.QueryRow(ctx, latestDateSQL).Scan(&latest); scanErr != nil {
		return time.Time{}, false, fmt.Errorf("query latest date: %w", scanErr)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return *latest, true, nil
}

func collectFxRecords(rows pgx.Rows, capacityHint int) ([]FxRecord, error) {
	records := make([]FxRecord, 0, capacityHint)
	for rows.Next() {
		record, scanErr := scanFxRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanFxRecord(rows pgx.Rows) (FxRecord, error) {
	var (
		record    FxRecord
		bidStr    string
		askStr    string
		midStr    string
		goldStr   *string
		createdAt time.Time
		updatedAt time.Time
	)

	if err := rows.Scan(
		&record.ID,
		&record.RateDate,
		&bidStr,
		&askStr,
		&midStr,
		&goldStr,
		&record.Source,
		&createdAt,
		&updatedAt,
	); err != nil {
		return FxRecord{}, err
	}

	var convErr error
	record.BidRate, convErr = decimal.NewFromString(bidStr)
	if convErr != nil {
		return FxRecord{}, fmt.Errorf("parse bid rate: %w", convErr)
	}
	record.AskRate, convErr = decimal.NewFromString(askStr)
	if convErr != nil {
		return FxRecord{}, fmt.Errorf("parse ask rate: %w", convErr)
	}
	record.MidRate, convErr = decimal.NewFromString(midStr)
	if convErr != nil {
		return FxRecord{}, fmt.Errorf("parse mid rate: %w", convErr)
	}
	if goldStr != nil {
		gold, goldErr := decimal.NewFromString(*goldStr)
		if goldErr != nil {
			return FxRecord{}, fmt.Errorf("parse gold price: %w", goldErr)
		}
		record.GoldPrice = &gold
	}

	record.CreatedAt = createdAt
	record.UpdatedAt = updatedAt
	return record, nil
}

var _ Gateway = (*Store)(nil)
