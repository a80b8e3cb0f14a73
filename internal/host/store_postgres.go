package host

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	id "gatehouse/pkg/domain"
	"gatehouse/pkg/platform/sentinel"
)

// Postgres persists hosts. Schema:
//
//	CREATE TABLE hosts (
//	    id         UUID PRIMARY KEY,
//	    name       TEXT NOT NULL,
//	    company    TEXT NOT NULL DEFAULT '',
//	    email      TEXT NOT NULL DEFAULT '',
//	    phone      TEXT NOT NULL DEFAULT '',
//	    site       TEXT NOT NULL,
//	    active     BOOLEAN NOT NULL DEFAULT TRUE,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    deleted_at TIMESTAMPTZ
//	);
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const hostColumns = `id, name, company, email, phone, site, active, created_at, deleted_at`

func (s *Postgres) FindByID(ctx context.Context, hostID id.HostID) (*Host, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+hostColumns+` FROM hosts WHERE id = $1`, hostID.String())
	return scanHost(row)
}

func (s *Postgres) Create(ctx context.Context, h *Host) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hosts (`+hostColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		h.ID.String(), h.Name, h.Company, h.Email, h.Phone, string(h.Site), h.Active, h.CreatedAt, h.DeletedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert host: %w", err)
	}
	return nil
}

func (s *Postgres) List(ctx context.Context) ([]*Host, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+hostColumns+` FROM hosts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	defer rows.Close()

	var out []*Host
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHost(row scanner) (*Host, error) {
	var (
		h       Host
		rawID   string
		site    string
		deleted sql.NullTime
	)
	err := row.Scan(&rawID, &h.Name, &h.Company, &h.Email, &h.Phone, &site, &h.Active, &h.CreatedAt, &deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan host: %w", err)
	}
	hostID, err := id.ParseHostID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored host id invalid: %w", err)
	}
	h.ID = hostID
	h.Site = id.Location(site)
	if deleted.Valid {
		t := deleted.Time
		h.DeletedAt = &t
	}
	return &h, nil
}
