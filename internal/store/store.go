// Package store keeps enrolled people and their face embeddings in
// PostgreSQL with the pgvector extension.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dimuls/jdlib"
)

// Store manages the PostgreSQL connection and pgvector operations. It is not
// safe for concurrent use.
type Store struct {
	conn *pgx.Conn
}

// Person is an enrolled person.
type Person struct {
	ID        int
	Name      string
	Faces     int
	CreatedAt time.Time
}

// Match is the result of a nearest neighbour search. ID is -1 when no
// embedding was within the threshold.
type Match struct {
	ID       int
	Name     string
	Distance float64
}

// New connects to the database and creates the schema if needed.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS people (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS face_embeddings (
			id BIGSERIAL PRIMARY KEY,
			person_id INT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
			source TEXT NOT NULL DEFAULT '',
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS face_embeddings_person_id_idx ON face_embeddings (person_id);
	`, jdlib.DescriptorSize)
	_, err := conn.Exec(ctx, query)
	return err
}

func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// vecToString formats a descriptor as a pgvector literal "[1,2.5,...]".
func vecToString(d jdlib.Descriptor) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range d {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// Enroll adds an embedding for name, creating the person on first use, and
// returns the person ID. source records where the embedding came from.
func (s *Store) Enroll(ctx context.Context, name, source string, d jdlib.Descriptor) (int, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var id int
	err = tx.QueryRow(ctx, `
		INSERT INTO people (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, name).Scan(&id)
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO face_embeddings (person_id, source, embedding) VALUES ($1, $2, $3::vector)",
		id, source, vecToString(d))
	if err != nil {
		return 0, err
	}

	return id, tx.Commit(ctx)
}

// FindClosest returns the person owning the embedding nearest to d by
// euclidean distance, if that distance is at most threshold. A distance
// equal to threshold matches, as it does in gallery.Match.
func (s *Store) FindClosest(ctx context.Context, d jdlib.Descriptor, threshold float64) (Match, error) {
	// <-> is the euclidean distance operator in pgvector
	query := `
		SELECT p.id, p.name, e.embedding <-> $1::vector AS distance
		FROM face_embeddings e JOIN people p ON p.id = e.person_id
		WHERE e.embedding <-> $1::vector <= $2
		ORDER BY distance ASC
		LIMIT 1
	`

	var m Match
	err := s.conn.QueryRow(ctx, query, vecToString(d), threshold).Scan(&m.ID, &m.Name, &m.Distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Match{ID: -1}, nil
	}
	if err != nil {
		return Match{}, err
	}

	return m, nil
}

// ListPeople returns every enrolled person with their embedding count.
func (s *Store) ListPeople(ctx context.Context) ([]Person, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT p.id, p.name, COUNT(e.id), p.created_at
		FROM people p LEFT JOIN face_embeddings e ON e.person_id = p.id
		GROUP BY p.id
		ORDER BY p.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var people []Person
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Faces, &p.CreatedAt); err != nil {
			return nil, err
		}
		people = append(people, p)
	}

	return people, rows.Err()
}

// Reset drops all tables. The schema is recreated by the next New.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS face_embeddings CASCADE;
		DROP TABLE IF EXISTS people CASCADE;
	`)
	return err
}
