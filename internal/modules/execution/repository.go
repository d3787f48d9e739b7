package execution

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/forts-trader/internal/events"
)

const journalTimeFormat = "2006-01-02 15:04:05"

// OrderRecord is one journaled order submission.
type OrderRecord struct {
	Time      time.Time
	Portfolio string
	Security  string
	Volume    int
	Price     float64
	OrderID   string
}

// Repository journals submitted orders and emitted events in the application
// database. It also implements events.Store.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates the execution journal repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "execution").Logger(),
	}
}

// SaveOrder appends an order to the journal.
func (r *Repository) SaveOrder(record OrderRecord) error {
	_, err := r.db.Exec(
		`INSERT INTO orders (time, portfolio, security, volume, price, order_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.Time.Format(journalTimeFormat),
		record.Portfolio, record.Security, record.Volume, record.Price, record.OrderID)
	return err
}

// Orders returns the journaled orders for a security, oldest first.
func (r *Repository) Orders(security string) ([]OrderRecord, error) {
	rows, err := r.db.Query(
		`SELECT time, portfolio, security, volume, price, order_id
		 FROM orders WHERE security = ? ORDER BY time, id`, security)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OrderRecord
	for rows.Next() {
		var record OrderRecord
		var stamp string
		if err := rows.Scan(&stamp, &record.Portfolio, &record.Security,
			&record.Volume, &record.Price, &record.OrderID); err != nil {
			return nil, err
		}
		record.Time, err = time.ParseInLocation(journalTimeFormat, stamp, time.Local)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// SaveEvent implements events.Store.
func (r *Repository) SaveEvent(event events.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(
		`INSERT INTO events (time, type, module, data) VALUES (?, ?, ?, ?)`,
		event.Timestamp.Format(journalTimeFormat), string(event.Type), event.Module, string(data))
	return err
}
