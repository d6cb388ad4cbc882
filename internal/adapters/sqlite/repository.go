package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"quantbacktest/internal/domain"
	"quantbacktest/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.BarRepository using SQLite. It is a local bar
// cache so repeated backtests do not refetch the same history.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (creating if needed) the bar cache database.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/bars.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// The Go driver benefits from a single connection with SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	cfg.Logger.Info(context.Background(), "Bar cache database ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS bars (
		symbol     TEXT NOT NULL,
		interval   TEXT NOT NULL,
		open_time  TIMESTAMP NOT NULL,
		close_time TIMESTAMP NOT NULL,
		open       REAL NOT NULL,
		high       REAL NOT NULL,
		low        REAL NOT NULL,
		close      REAL NOT NULL,
		volume     REAL NOT NULL,
		PRIMARY KEY (symbol, interval, open_time)
	);
	CREATE INDEX IF NOT EXISTS idx_bars_symbol_interval_open_time ON bars (symbol, interval, open_time);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrQueryFailed, err)
	}
	return nil
}

// SaveBars upserts the bars in one transaction. Re-saving an existing bar
// overwrites it, so partial fetches can be retried safely.
func (r *Repository) SaveBars(ctx context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ports.ErrQueryFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol, interval, open_time, close_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, open_time) DO UPDATE SET
			close_time = excluded.close_time,
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare upsert: %v", ports.ErrQueryFailed, err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.Interval, b.OpenTime, b.CloseTime,
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("%w: failed to upsert bar at %s: %v", ports.ErrQueryFailed, b.OpenTime, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %v", ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "saved bars", map[string]interface{}{
		"count":    len(bars),
		"symbol":   bars[0].Symbol,
		"interval": bars[0].Interval,
	})
	return nil
}

// FindRange returns the cached bars with open time in [start, end),
// chronologically ordered.
func (r *Repository) FindRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, interval, open_time, close_time, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND interval = ? AND open_time >= ? AND open_time < ?
		ORDER BY open_time ASC`,
		symbol, interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query bars: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var bars []*domain.Bar
	for rows.Next() {
		b := &domain.Bar{}
		if err := rows.Scan(&b.Symbol, &b.Interval, &b.OpenTime, &b.CloseTime,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("%w: failed to scan bar: %v", ports.ErrQueryFailed, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrQueryFailed, err)
	}
	return bars, nil
}

// LatestOpenTime returns the open time of the newest cached bar, or
// ports.ErrNotFound when the cache holds nothing for the pair.
func (r *Repository) LatestOpenTime(ctx context.Context, symbol, interval string) (time.Time, error) {
	var latest sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(open_time) FROM bars WHERE symbol = ? AND interval = ?`,
		symbol, interval).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: failed to query latest open time: %v", ports.ErrQueryFailed, err)
	}
	if !latest.Valid {
		return time.Time{}, fmt.Errorf("%w: no bars cached for %s %s", ports.ErrNotFound, symbol, interval)
	}
	return latest.Time, nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

var _ ports.BarRepository = (*Repository)(nil)
