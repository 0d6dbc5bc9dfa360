package artwork

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/marcus-crane/earshot/migrations"
)

// SQLiteStore is the same flat mapping as FileStore, kept in a single table.
// Each Put is written through immediately.
type SQLiteStore struct {
	DB *sqlx.DB
}

type artworkRow struct {
	ItemID    string `db:"item_id"`
	URL       string `db:"url"`
	UpdatedAt int64  `db:"updated_at"`
}

func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer, and :memory: databases are per-connection
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{DB: db}
	if err := s.ApplyMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ApplyMigrations() error {
	goose.SetBaseFS(migrations.GetMigrations())
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		return err
	}

	if err := goose.Up(s.DB.DB, "."); err != nil {
		return fmt.Errorf("migrate artwork cache: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Get(itemID string) (string, bool) {
	var row artworkRow
	err := s.DB.Get(&row, "SELECT item_id, url, updated_at FROM artwork WHERE item_id = ?", itemID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("Failed to read artwork cache",
				slog.String("item_id", itemID),
				slog.String("error", err.Error()))
		}
		return "", false
	}
	return row.URL, row.URL != ""
}

func (s *SQLiteStore) Put(itemID, url string) error {
	query := `
	INSERT INTO artwork (item_id, url, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT (item_id) DO UPDATE SET
	url = excluded.url,
	updated_at = excluded.updated_at
	`
	_, err := s.DB.Exec(query, itemID, url, time.Now().Unix())
	return err
}

func (s *SQLiteStore) Len() int {
	var n int
	if err := s.DB.Get(&n, "SELECT COUNT(*) FROM artwork"); err != nil {
		return 0
	}
	return n
}

func (s *SQLiteStore) Close() error {
	return s.DB.Close()
}
