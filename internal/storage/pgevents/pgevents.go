package pgevents

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const defaultSequenceRetries = 5

type Storage struct {
	db *pgxpool.Pool

	sequenceRetries int
}

func New(connString string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	s := &Storage{db: db, sequenceRetries: defaultSequenceRetries}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// WithSequenceRetries sets how many times an append is retried when a
// concurrent writer took the same sequence number.
func (s *Storage) WithSequenceRetries(n int) *Storage {
	if n > 0 {
		s.sequenceRetries = n
	}
	return s
}

// Pool exposes the connection pool to collaborators sharing the database.
func (s *Storage) Pool() *pgxpool.Pool {
	return s.db
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}
