package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"math/big"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"tinyrsa/tinyrsa"
)

// ErrKeyNotFound is returned when no key has the requested id.
var ErrKeyNotFound = errors.New("store: key not found")

// Integers are kept as decimal TEXT; an INTEGER column holds only 63 bits.
const createKeys = `
CREATE TABLE IF NOT EXISTS keys (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	bit_length INTEGER NOT NULL,
	p TEXT NOT NULL,
	q TEXT NOT NULL,
	e TEXT NOT NULL,
	n TEXT NOT NULL,
	d TEXT NOT NULL,
	created_at DATETIME NOT NULL
);`

// Store persists keys in SQLite.
type Store struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// Record is a stored key with its values as decimal strings.
type Record struct {
	ID        int64     `json:"id"`
	BitLength int       `json:"bit_length"`
	P         string    `json:"p"`
	Q         string    `json:"q"`
	E         string    `json:"e"`
	N         string    `json:"n"`
	D         string    `json:"d"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes the stored keys.
type Stats struct {
	Keys         int `json:"keys"`
	MinBitLength int `json:"min_bit_length"`
	MaxBitLength int `json:"max_bit_length"`
}

// Open opens (or creates) the database at path and makes sure the schema
// exists.
func Open(path string, log logrus.FieldLogger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	if _, err := db.Exec(createKeys); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create keys table")
	}

	log.WithField("path", path).Debug("database initialized")
	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddKey stores k and returns its id.
func (s *Store) AddKey(ctx context.Context, k *tinyrsa.Key) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO keys (bit_length, p, q, e, n, d, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		k.BitLength(), k.P().String(), k.Q().String(), k.E().String(), k.N().String(), k.D().String(), time.Now().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "insert key")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "read key id")
	}

	s.log.WithFields(logrus.Fields{"key_id": id, "bit_length": k.BitLength()}).Info("key stored")
	return id, nil
}

// GetKey returns the record with the given id.
func (s *Store) GetKey(ctx context.Context, id int64) (*Record, error) {
	r := &Record{ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT bit_length, p, q, e, n, d, created_at FROM keys WHERE id = ?", id).
		Scan(&r.BitLength, &r.P, &r.Q, &r.E, &r.N, &r.D, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrKeyNotFound, "id %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query key")
	}
	return r, nil
}

// ListKeys returns every record, newest first.
func (s *Store) ListKeys(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, bit_length, p, q, e, n, d, created_at FROM keys ORDER BY id DESC")
	if err != nil {
		return nil, errors.Wrap(err, "query keys")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r := &Record{}
		if err := rows.Scan(&r.ID, &r.BitLength, &r.P, &r.Q, &r.E, &r.N, &r.D, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan key")
		}
		records = append(records, r)
	}
	return records, errors.Wrap(rows.Err(), "iterate keys")
}

// DeleteKey removes the key with the given id.
func (s *Store) DeleteKey(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM keys WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "delete key")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete key")
	}
	if n == 0 {
		return errors.Wrapf(ErrKeyNotFound, "id %d", id)
	}

	s.log.WithField("key_id", id).Info("key deleted")
	return nil
}

// Stats counts the stored keys.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(MIN(bit_length), 0), COALESCE(MAX(bit_length), 0) FROM keys").
		Scan(&st.Keys, &st.MinBitLength, &st.MaxBitLength)
	if err != nil {
		return nil, errors.Wrap(err, "query stats")
	}
	return st, nil
}

// Key rebuilds and validates the key held by the record.
func (r *Record) Key() (*tinyrsa.Key, error) {
	p, ok1 := new(big.Int).SetString(r.P, 10)
	q, ok2 := new(big.Int).SetString(r.Q, 10)
	e, ok3 := new(big.Int).SetString(r.E, 10)
	if !ok1 || !ok2 || !ok3 {
		return nil, errors.Wrapf(tinyrsa.ErrInvalidKeyMaterial, "key %d: bad integer column", r.ID)
	}

	k, err := tinyrsa.Reconstruct(p, q, e)
	if err != nil {
		return nil, errors.Wrapf(err, "key %d", r.ID)
	}
	if k.N().String() != r.N || k.D().String() != r.D {
		return nil, errors.Wrapf(tinyrsa.ErrInvalidKeyMaterial, "key %d: stored n or d disagrees with p, q, e", r.ID)
	}
	return k, nil
}

// Fingerprint is the first 8 bytes of BLAKE2b-256 over n and e, in hex.
func (r *Record) Fingerprint() string {
	sum := blake2b.Sum256([]byte(r.N + ":" + r.E))
	return hex.EncodeToString(sum[:8])
}

// NewRecord converts k to its stored form without an id.
func NewRecord(k *tinyrsa.Key) *Record {
	return &Record{
		BitLength: k.BitLength(),
		P:         k.P().String(),
		Q:         k.Q().String(),
		E:         k.E().String(),
		N:         k.N().String(),
		D:         k.D().String(),
	}
}
