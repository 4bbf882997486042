package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mitie-ops/custodia/internal/custody"
	"github.com/mitie-ops/custodia/internal/paginate"
)

const eventColumns = "id, situm, usuario, imei, telefono, notas, tipo, codigo_validacion, email_usuario, timestamp"

// Events is the append-only custody event log backed by Postgres.
// It implements custody.EventStore.
type Events struct {
	db   DBTX
	pool *pgxpool.Pool // nil inside Locked, where db is the transaction
}

// NewEvents builds the event store over a connection pool.
func NewEvents(pool *pgxpool.Pool) *Events {
	return &Events{db: pool, pool: pool}
}

// Insert appends one event and returns its assigned id.
func (s *Events) Insert(ctx context.Context, e custody.Event) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO custody_events (situm, usuario, imei, telefono, notas, tipo, codigo_validacion, email_usuario, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		e.Situm, e.Actor, e.IMEI, e.Phone, e.Notes, string(e.Kind), e.SignatureCode, e.SignerEmail, e.Timestamp,
	).Scan(&id)
	return id, wrap("insert event", err)
}

// LastKind returns the kind of the most recent event for imei.
func (s *Events) LastKind(ctx context.Context, imei string) (custody.Kind, bool, error) {
	var kind string
	err := s.db.QueryRow(ctx, `
		SELECT tipo FROM custody_events
		WHERE imei = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, imei,
	).Scan(&kind)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("last event kind", err)
	}
	return custody.Kind(kind), true, nil
}

// Locked runs fn inside a transaction holding an advisory lock derived
// from the device key, serializing all custody writes for that device.
func (s *Events) Locked(ctx context.Context, imei string, fn func(ctx context.Context, es custody.EventStore) error) error {
	if s.pool == nil {
		return wrap("locked", fmt.Errorf("nested Locked call"))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrap("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", imei); err != nil {
		return wrap("device lock", err)
	}

	if err := fn(ctx, &Events{db: tx}); err != nil {
		return err
	}
	return wrap("commit", tx.Commit(ctx))
}

// EventFilter narrows history queries. Zero fields match everything.
type EventFilter struct {
	Kinds    []custody.Kind
	IMEI     string // substring
	Actor    string // substring
	DateFrom string // YYYY-MM-DD inclusive
	DateTo   string // YYYY-MM-DD inclusive
	IDs      []int64
}

func (f EventFilter) build() (string, []any) {
	wb := NewWhereBuilder()
	if len(f.Kinds) > 0 {
		kinds := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = string(k)
		}
		wb.In("tipo", kinds)
	}
	wb.Like("imei", f.IMEI)
	wb.Like("usuario", f.Actor)
	wb.Gte("timestamp", dayStart(f.DateFrom))
	wb.Lte("timestamp", dayEnd(f.DateTo))
	wb.InInt64("id", f.IDs)

	where, args := wb.Build()
	return "SELECT " + eventColumns + " FROM custody_events" + where + " ORDER BY timestamp DESC, id DESC", args
}

// SearchPage returns one page of events matching f, newest first.
func (s *Events) SearchPage(ctx context.Context, f EventFilter, page int) (paginate.Result[custody.Event], error) {
	query, args := f.build()
	res, err := paginate.Query(ctx, s.db, query, args, page, scanEvent)
	if err != nil {
		return res, wrap("search events", err)
	}
	return res, nil
}

// Search returns every event matching f, newest first. Used by exports.
func (s *Events) Search(ctx context.Context, f EventFilter) ([]custody.Event, error) {
	query, args := f.build()
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("search events", err)
	}
	defer rows.Close()

	var events []custody.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, wrap("scan event", err)
		}
		events = append(events, e)
	}
	return events, wrap("iterate events", rows.Err())
}

// Get returns a single event by id.
func (s *Events) Get(ctx context.Context, id int64) (custody.Event, error) {
	rows, err := s.db.Query(ctx, "SELECT "+eventColumns+" FROM custody_events WHERE id = $1", id)
	if err != nil {
		return custody.Event{}, wrap("get event", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return custody.Event{}, wrap("get event", pgx.ErrNoRows)
	}
	e, err := scanEvent(rows)
	return e, wrap("scan event", err)
}

// Update rewrites the editable fields of a historical event. This is the
// administrative correction path; it intentionally does not re-validate
// the custody invariant.
func (s *Events) Update(ctx context.Context, e custody.Event) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE custody_events
		SET situm = $1, usuario = $2, imei = $3, telefono = $4, notas = $5
		WHERE id = $6`,
		e.Situm, e.Actor, e.IMEI, e.Phone, e.Notes, e.ID)
	if err != nil {
		return wrap("update event", err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("update event", pgx.ErrNoRows)
	}
	return nil
}

// DeleteByIDs removes the selected events restricted to the given kinds.
func (s *Events) DeleteByIDs(ctx context.Context, ids []int64, kinds []custody.Kind) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	wb := NewWhereBuilder()
	wb.InInt64("id", ids)
	if len(kinds) > 0 {
		ks := make([]string, len(kinds))
		for i, k := range kinds {
			ks[i] = string(k)
		}
		wb.In("tipo", ks)
	}
	where, args := wb.Build()
	tag, err := s.db.Exec(ctx, "DELETE FROM custody_events"+where, args...)
	return tag.RowsAffected(), wrap("delete events", err)
}

// DeleteAll purges the whole event log. Bulk administrative path only.
func (s *Events) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM custody_events")
	return tag.RowsAffected(), wrap("purge events", err)
}

func scanEvent(rows pgx.Rows) (custody.Event, error) {
	var (
		e    custody.Event
		kind string
	)
	err := rows.Scan(&e.ID, &e.Situm, &e.Actor, &e.IMEI, &e.Phone, &e.Notes, &kind, &e.SignatureCode, &e.SignerEmail, &e.Timestamp)
	e.Kind = custody.Kind(kind)
	return e, err
}

// dayStart expands YYYY-MM-DD to the inclusive lower timestamp bound.
func dayStart(d string) string {
	if d == "" {
		return ""
	}
	return d + "T00:00:00Z"
}

// dayEnd expands YYYY-MM-DD to the inclusive upper timestamp bound.
func dayEnd(d string) string {
	if d == "" {
		return ""
	}
	return d + "T23:59:59Z"
}
