package visit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	id "gatehouse/pkg/domain"
	"gatehouse/pkg/platform/sentinel"
)

// Postgres persists visits and check events. Schema:
//
//	CREATE TABLE visits (
//	    id               UUID PRIMARY KEY,
//	    session_token    TEXT NOT NULL UNIQUE,
//	    visitor_name     TEXT NOT NULL,
//	    visitor_company  TEXT NOT NULL DEFAULT '',
//	    visitor_phone    TEXT NOT NULL DEFAULT '',
//	    visitor_email    TEXT NOT NULL DEFAULT '',
//	    host_id          UUID NOT NULL REFERENCES hosts(id),
//	    purpose          TEXT NOT NULL DEFAULT '',
//	    location         TEXT NOT NULL,
//	    status           TEXT NOT NULL,
//	    expected_date    TIMESTAMPTZ,
//	    pre_registered_by UUID,
//	    created_at       TIMESTAMPTZ NOT NULL,
//	    check_in_at      TIMESTAMPTZ,
//	    check_out_at     TIMESTAMPTZ,
//	    approved_at      TIMESTAMPTZ,
//	    rejected_at      TIMESTAMPTZ,
//	    rejection_reason TEXT NOT NULL DEFAULT ''
//	);
//	CREATE INDEX visits_status_location_idx ON visits (status, location);
//	CREATE INDEX visits_host_status_idx ON visits (host_id, status);
//
//	CREATE TABLE check_events (
//	    id          BIGSERIAL PRIMARY KEY,
//	    visit_id    UUID NOT NULL REFERENCES visits(id),
//	    event_type  TEXT NOT NULL,
//	    actor_id    UUID,
//	    occurred_at TIMESTAMPTZ NOT NULL
//	);
//
// The UNIQUE constraint on session_token is the authoritative uniqueness
// mechanism; Insert surfaces a violation as sentinel.ErrAlreadyUsed and the
// lifecycle regenerates the token.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const visitColumns = `id, session_token, visitor_name, visitor_company, visitor_phone, visitor_email,
	host_id, purpose, location, status, expected_date, pre_registered_by, created_at,
	check_in_at, check_out_at, approved_at, rejected_at, rejection_reason`

func (s *Postgres) Insert(ctx context.Context, v *Visit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visits (`+visitColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		v.ID.String(), v.SessionToken, v.VisitorName, v.VisitorCompany, v.VisitorPhone, v.VisitorEmail,
		v.HostID.String(), v.Purpose, string(v.Location), string(v.Status),
		v.ExpectedDate, optionalUserID(v.PreRegisteredByUserID), v.CreatedAt,
		v.CheckInAt, v.CheckOutAt, v.ApprovedAt, v.RejectedAt, v.RejectionReason)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, visitID id.VisitID) (*Visit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE id = $1`, visitID.String())
	return scanVisit(row)
}

func (s *Postgres) FindByToken(ctx context.Context, token string) (*Visit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE session_token = $1`, token)
	return scanVisit(row)
}

// Execute implements the atomic read-validate-write transition: the row is
// locked with FOR UPDATE for the duration of validate and the commit, so a
// racing caller blocks until this transaction finishes and then fails its
// own precondition against the committed state.
func (s *Postgres) Execute(ctx context.Context, visitID id.VisitID, validate func(*Visit) error, mutate func(*Visit)) (*Visit, error) {
	return s.executeWhere(ctx, `id = $1`, visitID.String(), validate, mutate)
}

func (s *Postgres) ExecuteByToken(ctx context.Context, token string, validate func(*Visit) error, mutate func(*Visit)) (*Visit, error) {
	return s.executeWhere(ctx, `session_token = $1`, token, validate, mutate)
}

func (s *Postgres) executeWhere(ctx context.Context, where, arg string, validate func(*Visit) error, mutate func(*Visit)) (*Visit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE `+where+` FOR UPDATE`, arg)
	v, err := scanVisit(row)
	if err != nil {
		return nil, err
	}

	if err := validate(v); err != nil {
		return nil, err
	}
	mutate(v)

	_, err = tx.ExecContext(ctx, `
		UPDATE visits SET status = $2, check_in_at = $3, check_out_at = $4,
			approved_at = $5, rejected_at = $6, rejection_reason = $7
		WHERE id = $1`,
		v.ID.String(), string(v.Status), v.CheckInAt, v.CheckOutAt,
		v.ApprovedAt, v.RejectedAt, v.RejectionReason)
	if err != nil {
		return nil, fmt.Errorf("update visit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return v, nil
}

func (s *Postgres) ListActive(ctx context.Context, location id.Location) ([]*Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE status = $1`
	args := []any{string(StatusCheckedIn)}
	if location != "" {
		query += ` AND location = $2`
		args = append(args, string(location))
	}
	query += ` ORDER BY created_at DESC`
	return s.queryVisits(ctx, query, args...)
}

func (s *Postgres) ListHistory(ctx context.Context, filter HistoryFilter, limit int) ([]*Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE TRUE`
	var args []any
	if filter.Location != "" {
		args = append(args, string(filter.Location))
		query += fmt.Sprintf(` AND location = $%d`, len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(` AND created_at <= $%d`, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))
	return s.queryVisits(ctx, query, args...)
}

func (s *Postgres) ListPendingForHost(ctx context.Context, hostID id.HostID) ([]*Visit, error) {
	return s.queryVisits(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE host_id = $1 AND status = $2 ORDER BY created_at DESC`,
		hostID.String(), string(StatusPendingApproval))
}

func (s *Postgres) AppendCheckEvent(ctx context.Context, event CheckEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO check_events (visit_id, event_type, actor_id, occurred_at)
		VALUES ($1, $2, $3, $4)`,
		event.VisitID.String(), string(event.Type), optionalUserID(event.ActorID), event.OccurredAt)
	if err != nil {
		return fmt.Errorf("append check event: %w", err)
	}
	return nil
}

func (s *Postgres) ListCheckEvents(ctx context.Context, visitID id.VisitID) ([]CheckEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT visit_id, event_type, actor_id, occurred_at
		FROM check_events WHERE visit_id = $1 ORDER BY occurred_at, id`,
		visitID.String())
	if err != nil {
		return nil, fmt.Errorf("list check events: %w", err)
	}
	defer rows.Close()

	var out []CheckEvent
	for rows.Next() {
		var (
			e     CheckEvent
			rawID string
			typ   string
			actor sql.NullString
		)
		if err := rows.Scan(&rawID, &typ, &actor, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan check event: %w", err)
		}
		visitID, err := id.ParseVisitID(rawID)
		if err != nil {
			return nil, fmt.Errorf("stored check event visit id invalid: %w", err)
		}
		e.VisitID = visitID
		e.Type = CheckEventType(typ)
		if actor.Valid {
			actorID, err := id.ParseUserID(actor.String)
			if err != nil {
				return nil, fmt.Errorf("stored check event actor id invalid: %w", err)
			}
			e.ActorID = &actorID
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Postgres) queryVisits(ctx context.Context, query string, args ...any) ([]*Visit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	var out []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVisit(row scanner) (*Visit, error) {
	var (
		v                Visit
		rawID, rawHostID string
		location, status string
		preRegisteredBy  sql.NullString
		expectedDate     sql.NullTime
		checkIn          sql.NullTime
		checkOut         sql.NullTime
		approved         sql.NullTime
		rejected         sql.NullTime
	)
	err := row.Scan(&rawID, &v.SessionToken, &v.VisitorName, &v.VisitorCompany, &v.VisitorPhone, &v.VisitorEmail,
		&rawHostID, &v.Purpose, &location, &status, &expectedDate, &preRegisteredBy, &v.CreatedAt,
		&checkIn, &checkOut, &approved, &rejected, &v.RejectionReason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan visit: %w", err)
	}

	visitID, err := id.ParseVisitID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored visit id invalid: %w", err)
	}
	hostID, err := id.ParseHostID(rawHostID)
	if err != nil {
		return nil, fmt.Errorf("stored host id invalid: %w", err)
	}
	v.ID = visitID
	v.HostID = hostID
	v.Location = id.Location(location)
	v.Status = Status(status)
	v.ExpectedDate = nullableTime(expectedDate)
	v.CheckInAt = nullableTime(checkIn)
	v.CheckOutAt = nullableTime(checkOut)
	v.ApprovedAt = nullableTime(approved)
	v.RejectedAt = nullableTime(rejected)
	if preRegisteredBy.Valid {
		userID, err := id.ParseUserID(preRegisteredBy.String)
		if err != nil {
			return nil, fmt.Errorf("stored pre-registered-by id invalid: %w", err)
		}
		v.PreRegisteredByUserID = &userID
	}
	return &v, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	out := t.Time
	return &out
}

func optionalUserID(userID *id.UserID) any {
	if userID == nil {
		return nil
	}
	return userID.String()
}
