package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"goldwatch/internal/pricing"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertAlertSQL = `INSERT INTO alerts (
        id,
        user_id,
        asset,
        currency,
        rule_type,
        direction,
        threshold
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id, user_id, asset, currency, rule_type, direction, threshold, created_at, triggered_at;`

	listActiveAlertsSQL = `SELECT
        id,
        user_id,
        asset,
        currency,
        rule_type,
        direction,
        threshold,
        created_at,
        triggered_at
    FROM alerts
    WHERE triggered_at IS NULL
    ORDER BY created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        user_id,
        asset,
        currency,
        rule_type,
        direction,
        threshold,
        created_at,
        triggered_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	tryMarkTriggeredSQL = `UPDATE alerts
    SET triggered_at = $2
    WHERE id = $1 AND triggered_at IS NULL;`

	deleteTriggeredBeforeSQL = `DELETE FROM alerts
    WHERE triggered_at IS NOT NULL AND triggered_at < $1;`

	upsertPriceSampleSQL = `INSERT INTO price_samples (
        bucket_ts,
        price,
        source,
        fallback_level
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (bucket_ts) DO UPDATE
    SET
        price          = EXCLUDED.price,
        source         = EXCLUDED.source,
        fallback_level = EXCLUDED.fallback_level;`

	listSamplesBetweenSQL = `SELECT
        bucket_ts,
        price,
        source,
        fallback_level,
        created_at
    FROM price_samples
    WHERE bucket_ts >= $1
      AND bucket_ts < $2
    ORDER BY bucket_ts;`

	listRecentSamplesSQL = `SELECT
        bucket_ts,
        price,
        source,
        fallback_level,
        created_at
    FROM price_samples
    ORDER BY bucket_ts DESC
    LIMIT $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM price_samples;`

	latestCloseSQL = `SELECT
        bucket_ts::date,
        price
    FROM price_samples
    ORDER BY bucket_ts DESC
    LIMIT 1;`

	recentClosesSQL = `SELECT ds, price FROM (
        SELECT DISTINCT ON (bucket_ts::date)
            bucket_ts::date AS ds,
            price
        FROM price_samples
        ORDER BY bucket_ts::date DESC, bucket_ts DESC
        LIMIT $1
    ) closes
    ORDER BY ds;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines operations for alert persistence. TryMarkTriggered is
// the only operation that must be genuinely concurrency-safe: its
// conditional update is the sole defense against duplicate notifications.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert Alert) (Alert, error)
	ListActiveAlerts(ctx context.Context) ([]Alert, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error)
	TryMarkTriggered(ctx context.Context, id uuid.UUID, now time.Time) (int64, error)
	DeleteTriggeredBefore(ctx context.Context, olderThan time.Time) error
}

// PriceSampleStore defines operations for spot price persistence.
type PriceSampleStore interface {
	UpsertPriceSample(ctx context.Context, sample PriceSample) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PriceSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error)
	CountSamples(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to alerts and price samples.
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

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// CreateAlert persists a new alert row.
func (s *Store) CreateAlert(ctx context.Context, alert Alert) (Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, err
	}

	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.ID.String(),
		alert.UserID.String(),
		alert.Asset,
		alert.Currency,
		string(alert.RuleType),
		string(alert.Direction),
		alert.Threshold.String(),
	)

	created, err := scanAlert(row)
	if err != nil {
		return Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	return created, nil
}

// ListActiveAlerts returns alerts whose triggered_at is still null.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// ListRecentAlerts returns the most recently created alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// TryMarkTriggered performs the atomic null→non-null transition of
// triggered_at. It returns the affected row count: 1 when this caller won
// the transition, 0 when the alert was already triggered. The database
// enforces atomicity; losing a race is the expected silent no-op.
func (s *Store) TryMarkTriggered(ctx context.Context, id uuid.UUID, now time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	cmdTag, execErr := pool.Exec(ctx, tryMarkTriggeredSQL, id.String(), now.UTC())
	if execErr != nil {
		return 0, fmt.Errorf("mark alert triggered: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// DeleteTriggeredBefore prunes long-triggered alerts.
func (s *Store) DeleteTriggeredBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteTriggeredBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete triggered alerts: %w", execErr)
	}
	return nil
}

// UpsertPriceSample persists or updates a spot price sample.
func (s *Store) UpsertPriceSample(ctx context.Context, sample PriceSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertPriceSampleSQL,
		sample.Bucket,
		sample.Price.String(),
		sample.Source,
		sample.FallbackLevel,
	)
	if execErr != nil {
		return fmt.Errorf("upsert price sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// ListRecentSamples lists the most recent samples ordered by descending bucket.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// LatestClose returns the date and price of the most recent sample.
func (s *Store) LatestClose(ctx context.Context) (pricing.PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return pricing.PricePoint{}, err
	}

	var (
		ds       time.Time
		priceStr string
	)
	if scanErr := pool.QueryRow(ctx, latestCloseSQL).Scan(&ds, &priceStr); scanErr != nil {
		return pricing.PricePoint{}, fmt.Errorf("latest close: %w", scanErr)
	}

	price, convErr := decimal.NewFromString(priceStr)
	if convErr != nil {
		return pricing.PricePoint{}, fmt.Errorf("parse close price: %w", convErr)
	}
	return pricing.PricePoint{Date: ds, Price: price}, nil
}

// RecentCloses returns up to limit daily closes in ascending date order.
func (s *Store) RecentCloses(ctx context.Context, limit int) ([]pricing.PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, recentClosesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("recent closes: %w", queryErr)
	}
	defer rows.Close()

	closes := make([]pricing.PricePoint, 0, limit)
	for rows.Next() {
		var (
			ds       time.Time
			priceStr string
		)
		if err := rows.Scan(&ds, &priceStr); err != nil {
			return nil, err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse close price: %w", convErr)
		}
		closes = append(closes, pricing.PricePoint{Date: ds, Price: price})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return closes, nil
}

func scanAlert(row pgx.Row) (Alert, error) {
	var (
		idStr        string
		userStr      string
		asset        string
		currency     string
		ruleType     string
		direction    string
		thresholdStr string
		createdAt    time.Time
		triggeredAt  *time.Time
	)

	if err := row.Scan(
		&idStr,
		&userStr,
		&asset,
		&currency,
		&ruleType,
		&direction,
		&thresholdStr,
		&createdAt,
		&triggeredAt,
	); err != nil {
		return Alert{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return Alert{}, fmt.Errorf("parse alert id: %w", err)
	}
	userID, err := uuid.Parse(userStr)
	if err != nil {
		return Alert{}, fmt.Errorf("parse user id: %w", err)
	}
	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return Alert{}, fmt.Errorf("parse threshold: %w", err)
	}

	return Alert{
		ID:          id,
		UserID:      userID,
		Asset:       asset,
		Currency:    currency,
		RuleType:    RuleType(ruleType),
		Direction:   Direction(direction),
		Threshold:   threshold,
		CreatedAt:   createdAt,
		TriggeredAt: triggeredAt,
	}, nil
}

func collectAlerts(rows pgx.Rows) ([]Alert, error) {
	alerts := make([]Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func collectSamples(rows pgx.Rows) ([]PriceSample, error) {
	samples := make([]PriceSample, 0)
	for rows.Next() {
		var (
			sample   PriceSample
			priceStr string
		)
		if err := rows.Scan(
			&sample.Bucket,
			&priceStr,
			&sample.Source,
			&sample.FallbackLevel,
			&sample.CreatedAt,
		); err != nil {
			return nil, err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse sample price: %w", convErr)
		}
		sample.Price = price
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}
