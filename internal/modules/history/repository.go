package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver for history files
	"github.com/rs/zerolog"
)

// storedTimeFormat is how candle timestamps are persisted in history files.
const storedTimeFormat = "2006-01-02 15:04:05"

// Bar is a full OHLCV candle as stored in the history database.
type Bar struct {
	Time       time.Time
	OpenPrice  float64
	HighPrice  float64
	LowPrice   float64
	ClosePrice float64
	Volume     float64
}

func (b Bar) String() string {
	return fmt.Sprintf("%s %v", b.Time.Format(storedTimeFormat), b.ClosePrice)
}

// Repository stores downloaded candles in one SQLite file per security.
// Files live under dir and are created on first save.
type Repository struct {
	dir string
	log zerolog.Logger

	// conns is shared between the sync job and report handlers.
	mu    sync.Mutex
	conns map[string]*sql.DB
}

// NewRepository creates the history repository rooted at dir.
func NewRepository(dir string, log zerolog.Logger) (*Repository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &Repository{
		dir:   dir,
		conns: make(map[string]*sql.DB),
		log:   log.With().Str("component", "history_repository").Logger(),
	}, nil
}

// Close closes all open history files.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for code, conn := range r.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.conns, code)
	}
	return firstErr
}

// Read returns all candles for the security ordered by time.
// Candles that do not strictly increase in time are dropped.
func (r *Repository) Read(securityCode string) ([]Bar, error) {
	path := r.filePath(securityCode)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	conn, err := r.open(securityCode)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(
		`SELECT time, open, high, low, close, volume FROM candles ORDER BY time`)
	if err != nil {
		return nil, fmt.Errorf("failed to read candles for %s: %w", securityCode, err)
	}
	defer rows.Close()

	var bars []Bar
	for rows.Next() {
		var stamp string
		var b Bar
		if err := rows.Scan(&stamp, &b.OpenPrice, &b.HighPrice, &b.LowPrice,
			&b.ClosePrice, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle for %s: %w", securityCode, err)
		}
		b.Time, err = time.ParseInLocation(storedTimeFormat, stamp, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid candle time %q for %s: %w", stamp, securityCode, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return verifyBars(bars), nil
}

// Save replaces the stored candles for the security with the given set.
func (r *Repository) Save(securityCode string, bars []Bar) error {
	conn, err := r.open(securityCode)
	if err != nil {
		return err
	}

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin save for %s: %w", securityCode, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM candles`); err != nil {
		return fmt.Errorf("failed to clear candles for %s: %w", securityCode, err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO candles (time, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert for %s: %w", securityCode, err)
	}
	defer stmt.Close()

	for _, b := range verifyBars(bars) {
		if _, err := stmt.Exec(b.Time.Format(storedTimeFormat),
			b.OpenPrice, b.HighPrice, b.LowPrice, b.ClosePrice, b.Volume); err != nil {
			return fmt.Errorf("failed to insert candle for %s: %w", securityCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candles for %s: %w", securityCode, err)
	}

	r.log.Debug().
		Str("security", securityCode).
		Int("candles", len(bars)).
		Msg("History saved")
	return nil
}

func (r *Repository) open(securityCode string) (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[securityCode]; ok {
		return conn, nil
	}

	conn, err := sql.Open("sqlite", r.filePath(securityCode))
	if err != nil {
		return nil, fmt.Errorf("failed to open history file for %s: %w", securityCode, err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS candles (
		time   TEXT PRIMARY KEY,
		open   REAL NOT NULL,
		high   REAL NOT NULL,
		low    REAL NOT NULL,
		close  REAL NOT NULL,
		volume REAL NOT NULL
	)`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create candles table for %s: %w", securityCode, err)
	}

	r.conns[securityCode] = conn
	return conn, nil
}

func (r *Repository) filePath(securityCode string) string {
	return filepath.Join(r.dir, securityCode+".db")
}

// verifyBars keeps only candles with strictly increasing timestamps.
func verifyBars(bars []Bar) []Bar {
	result := make([]Bar, 0, len(bars))
	var last time.Time
	for _, b := range bars {
		if len(result) == 0 || b.Time.After(last) {
			result = append(result, b)
			last = b.Time
		}
	}
	return result
}
