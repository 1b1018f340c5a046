/*
Package sqlite provides a SQLite-backed implementation of the calendar fetch
boundary and the member directory.

PURPOSE:
  Implements calendar.Source (allotment and request snapshots for a window)
  and the member lookup the API uses to build a calendar.Query. In production
  the same queries run against PostgreSQL with a different placeholder format.

KEY TABLES:
  members:    Member context (division, optional zone)
  allotments: Capacity per dated key or per year, division-wide or per zone
  requests:   Leave requests of every status, regular and paid in lieu

UNIQUENESS:
  idx_allotments_unique enforces one record per (kind, division, key, zone).
  NULL zones are folded to -1 so division-wide records collide too. Saving an
  allotment that already exists replaces it.

QUERIES:
  Built with squirrel using "?" placeholders. Date keys are stored as
  YYYY-MM-DD text so range filters compare lexically.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The pool is limited to one
  connection so ":memory:" databases are shared by every query.

USAGE:
  store, err := sqlite.New("./data/calendar.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  cal := calendar.New(store, division, calendar.Options{...})

SEE ALSO:
  - calendar/source.go: Source interface
  - calendar/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/leave-calendar/calendar"
)

var (
	ErrMemberNotFound = errors.New("sqlite: member not found")
	ErrBuildQuery     = errors.New("sqlite: failed to build query")
)

// builder renders squirrel statements with SQLite placeholders.
var builder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

// Store implements calendar.Source and the member directory using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection (used by /healthz).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		division_id INTEGER NOT NULL,
		zone_id INTEGER,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_division
		ON members(division_id);

	-- Allotments: dated (date_key) or yearly (year), optionally per zone
	CREATE TABLE IF NOT EXISTS allotments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		division_id INTEGER NOT NULL,
		date_key TEXT,
		year INTEGER NOT NULL DEFAULT 0,
		yearly BOOLEAN NOT NULL DEFAULT FALSE,
		zone_id INTEGER,
		max_allotment INTEGER NOT NULL CHECK (max_allotment >= 0),
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_allotments_unique
		ON allotments(kind, division_id, yearly, year, COALESCE(date_key, ''), COALESCE(zone_id, -1));

	-- Range scan on the fetch hot path
	CREATE INDEX IF NOT EXISTS idx_allotments_scope_date
		ON allotments(kind, division_id, date_key);

	-- Requests of every status; occupancy is derived, never stored
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		division_id INTEGER NOT NULL,
		date_key TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		leave_type TEXT NOT NULL DEFAULT '',
		paid_in_lieu BOOLEAN NOT NULL DEFAULT FALSE,
		zone_id INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_scope_date
		ON requests(kind, division_id, date_key);
	CREATE INDEX IF NOT EXISTS idx_requests_member
		ON requests(member_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// MEMBERS
// =============================================================================

// SaveMember inserts or updates a member.
func (s *Store) SaveMember(ctx context.Context, m calendar.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query, args, err := builder.Insert("members").
		Columns("id", "name", "division_id", "zone_id", "created_at").
		Values(m.ID, m.Name, m.DivisionID, nullZone(m.ZoneID), now()).
		Suffix("ON CONFLICT(id) DO UPDATE SET name = excluded.name, division_id = excluded.division_id, zone_id = excluded.zone_id").
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: SaveMember: %v", ErrBuildQuery, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save member: %w", err)
	}
	return nil
}

// GetMember retrieves a member by ID.
func (s *Store) GetMember(ctx context.Context, id calendar.MemberID) (calendar.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args, err := builder.Select("id", "name", "division_id", "zone_id").
		From("members").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return calendar.Member{}, fmt.Errorf("%w: GetMember: %v", ErrBuildQuery, err)
	}

	var m calendar.Member
	var zone sql.NullInt64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&m.ID, &m.Name, &m.DivisionID, &zone)
	if errors.Is(err, sql.ErrNoRows) {
		return calendar.Member{}, fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	if err != nil {
		return calendar.Member{}, fmt.Errorf("failed to get member: %w", err)
	}
	m.ZoneID = zoneFrom(zone)
	return m, nil
}

// ListMembers returns the members of a division, by name.
func (s *Store) ListMembers(ctx context.Context, division calendar.DivisionID) ([]calendar.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args, err := builder.Select("id", "name", "division_id", "zone_id").
		From("members").
		Where(squirrel.Eq{"division_id": division}).
		OrderBy("name", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: ListMembers: %v", ErrBuildQuery, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []calendar.Member
	for rows.Next() {
		var m calendar.Member
		var zone sql.NullInt64
		if err := rows.Scan(&m.ID, &m.Name, &m.DivisionID, &zone); err != nil {
			return nil, err
		}
		m.ZoneID = zoneFrom(zone)
		members = append(members, m)
	}
	return members, rows.Err()
}

// =============================================================================
// ALLOTMENTS
// =============================================================================

// SaveAllotments upserts allotment records in one transaction.
func (s *Store) SaveAllotments(ctx context.Context, records ...calendar.AllotmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			var dateKey any
			year := r.Year
			if r.Yearly {
				if year == 0 {
					year = r.DateKey.Year()
				}
			} else {
				dateKey = r.DateKey.String()
				year = r.DateKey.Year()
			}

			query, args, err := builder.Replace("allotments").
				Columns("kind", "division_id", "date_key", "year", "yearly", "zone_id", "max_allotment", "updated_at").
				Values(r.Kind, r.DivisionID, dateKey, year, r.Yearly, nullZone(r.ZoneID), r.MaxAllotment, now()).
				ToSql()
			if err != nil {
				return fmt.Errorf("%w: SaveAllotments: %v", ErrBuildQuery, err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to save allotment %s: %w", r.DateKey, err)
			}
		}
		return nil
	})
}

// DeleteAllotment removes the dated record at key for zone (nil = division-wide).
func (s *Store) DeleteAllotment(ctx context.Context, kind calendar.Kind, division calendar.DivisionID, key calendar.Day, zone *calendar.ZoneID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query, args, err := builder.Delete("allotments").
		Where(squirrel.Eq{
			"kind":        kind,
			"division_id": division,
			"date_key":    key.String(),
			"yearly":      false,
			"zone_id":     nullZone(zone),
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: DeleteAllotment: %v", ErrBuildQuery, err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// LoadAllotments returns every allotment of scope applying to [start, end]:
// dated records inside the range and yearly records of the years it spans.
// A zone scope returns division-wide records as well as that zone's.
func (s *Store) LoadAllotments(ctx context.Context, scope calendar.Scope, start, end calendar.Day) ([]calendar.AllotmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sel := builder.Select("kind", "division_id", "date_key", "year", "yearly", "zone_id", "max_allotment").
		From("allotments").
		Where(squirrel.Eq{"kind": scope.Kind, "division_id": scope.DivisionID}).
		Where(squirrel.Or{
			squirrel.And{
				squirrel.Eq{"yearly": false},
				squirrel.GtOrEq{"date_key": start.String()},
				squirrel.LtOrEq{"date_key": end.String()},
			},
			squirrel.And{
				squirrel.Eq{"yearly": true},
				squirrel.GtOrEq{"year": start.Year()},
				squirrel.LtOrEq{"year": end.Year()},
			},
		}).
		OrderBy("yearly", "date_key", "year")
	if scope.ZoneID != nil {
		sel = sel.Where(squirrel.Or{squirrel.Eq{"zone_id": nil}, squirrel.Eq{"zone_id": int(*scope.ZoneID)}})
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: LoadAllotments: %v", ErrBuildQuery, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load allotments: %w", err)
	}
	defer rows.Close()

	var records []calendar.AllotmentRecord
	for rows.Next() {
		var r calendar.AllotmentRecord
		var dateKey sql.NullString
		var zone sql.NullInt64
		if err := rows.Scan(&r.Kind, &r.DivisionID, &dateKey, &r.Year, &r.Yearly, &zone, &r.MaxAllotment); err != nil {
			return nil, err
		}
		if dateKey.Valid {
			if r.DateKey, err = calendar.ParseDay(dateKey.String); err != nil {
				return nil, err
			}
		}
		r.ZoneID = zoneFrom(zone)
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// REQUESTS
// =============================================================================

// SaveRequests upserts request records in one transaction.
func (s *Store) SaveRequests(ctx context.Context, records ...calendar.RequestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			ts := now()
			query, args, err := builder.Insert("requests").
				Columns("id", "member_id", "kind", "division_id", "date_key", "status",
					"leave_type", "paid_in_lieu", "zone_id", "created_at", "updated_at").
				Values(r.ID, r.MemberID, r.Kind, r.DivisionID, r.DateKey.String(), r.Status,
					r.LeaveType, r.PaidInLieu, nullZone(r.ZoneID), ts, ts).
				Suffix("ON CONFLICT(id) DO UPDATE SET status = excluded.status, date_key = excluded.date_key, " +
					"paid_in_lieu = excluded.paid_in_lieu, zone_id = excluded.zone_id, updated_at = excluded.updated_at").
				ToSql()
			if err != nil {
				return fmt.Errorf("%w: SaveRequests: %v", ErrBuildQuery, err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to save request %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// LoadRequests returns every request of scope keyed inside [start, end],
// whatever its status. A zone scope returns only that zone's requests.
func (s *Store) LoadRequests(ctx context.Context, scope calendar.Scope, start, end calendar.Day) ([]calendar.RequestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sel := builder.Select("id", "member_id", "kind", "division_id", "date_key", "status",
		"leave_type", "paid_in_lieu", "zone_id").
		From("requests").
		Where(squirrel.Eq{"kind": scope.Kind, "division_id": scope.DivisionID}).
		Where(squirrel.GtOrEq{"date_key": start.String()}).
		Where(squirrel.LtOrEq{"date_key": end.String()}).
		OrderBy("date_key", "created_at", "id")
	if scope.ZoneID != nil {
		sel = sel.Where(squirrel.Eq{"zone_id": int(*scope.ZoneID)})
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: LoadRequests: %v", ErrBuildQuery, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load requests: %w", err)
	}
	defer rows.Close()

	var records []calendar.RequestRecord
	for rows.Next() {
		var r calendar.RequestRecord
		var dateKey string
		var zone sql.NullInt64
		if err := rows.Scan(&r.ID, &r.MemberID, &r.Kind, &r.DivisionID, &dateKey, &r.Status,
			&r.LeaveType, &r.PaidInLieu, &zone); err != nil {
			return nil, err
		}
		if r.DateKey, err = calendar.ParseDay(dateKey); err != nil {
			return nil, err
		}
		r.ZoneID = zoneFrom(zone)
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"requests", "allotments", "members"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullZone(z *calendar.ZoneID) any {
	if z == nil {
		return nil
	}
	return int(*z)
}

func zoneFrom(n sql.NullInt64) *calendar.ZoneID {
	if !n.Valid {
		return nil
	}
	return calendar.Zone(calendar.ZoneID(n.Int64))
}
