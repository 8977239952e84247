package subscription

import (
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/xerrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	id     INTEGER PRIMARY KEY,
	userid INTEGER NOT NULL,
	cpe    TEXT NOT NULL,
	UNIQUE (userid, cpe)
)`

type Subscription struct {
	OwnerID int64  `db:"userid"`
	CPE     string `db:"cpe"`
}

// Store keeps the CPEs each owner watches. The pool is owned by the caller.
type Store struct {
	db *sqlx.DB
}

// Open opens a sqlite3 database at path.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, xerrors.Errorf("unable to open %s: %w", path, err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, xerrors.Errorf("unable to connect to %s: %w", path, err)
	}
	return db, nil
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Init creates the schema if it doesn't exist.
func (s *Store) Init() error {
	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Errorf("failed to create subscriptions table: %w", err)
	}
	return nil
}

// Add subscribes ownerID to cpe. Subscribing twice is a no-op.
func (s *Store) Add(ownerID int64, cpe string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO subscriptions (userid, cpe) VALUES (?, ?)`, ownerID, cpe)
	if err != nil {
		return xerrors.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

// Remove reports whether a subscription was deleted.
func (s *Store) Remove(ownerID int64, cpe string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM subscriptions WHERE userid = ? AND cpe = ?`, ownerID, cpe)
	if err != nil {
		return false, xerrors.Errorf("failed to delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, xerrors.Errorf("failed to count deleted subscriptions: %w", err)
	}
	return n > 0, nil
}

// List returns the subscriptions of ownerID in the order they were added.
func (s *Store) List(ownerID int64) ([]Subscription, error) {
	var subs []Subscription
	err := s.db.Select(&subs, `SELECT userid, cpe FROM subscriptions WHERE userid = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, xerrors.Errorf("failed to select subscriptions: %w", err)
	}
	return subs, nil
}
