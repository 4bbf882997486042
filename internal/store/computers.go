package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mitie-ops/custodia/internal/custody"
	"github.com/mitie-ops/custodia/internal/paginate"
)

// Computer is one delivery/receipt/incident record for a workstation.
// Computers are plain records: they do not pass through the custody
// state checker.
type Computer struct {
	ID        int64        `json:"id"`
	Project   string       `json:"proyecto"` // Mitie or AENA
	Hostname  string       `json:"hostname"`
	Serial    string       `json:"numero_serie"`
	Person    string       `json:"apellidos_nombre"`
	Notes     string       `json:"notas"`
	Kind      custody.Kind `json:"tipo"`
	Actor     string       `json:"usuario"` // operator who registered the record
	Timestamp time.Time    `json:"timestamp"`
}

const computerColumns = "id, proyecto, hostname, numero_serie, apellidos_nombre, notas, tipo, usuario, timestamp"

// Computers is the workstation record store.
type Computers struct {
	db DBTX
}

// NewComputers builds the computer store over a connection pool.
func NewComputers(pool *pgxpool.Pool) *Computers {
	return &Computers{db: pool}
}

// Insert appends one computer record and returns its assigned id.
func (s *Computers) Insert(ctx context.Context, c Computer) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO computers (proyecto, hostname, numero_serie, apellidos_nombre, notas, tipo, usuario, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		c.Project, c.Hostname, c.Serial, c.Person, c.Notes, string(c.Kind), c.Actor, c.Timestamp,
	).Scan(&id)
	return id, wrap("insert computer", err)
}

// ComputerFilter narrows computer history queries.
type ComputerFilter struct {
	Kind     custody.Kind
	Hostname string // substring
	Serial   string // substring
	Project  string // exact
}

func (f ComputerFilter) build() (string, []any) {
	wb := NewWhereBuilder()
	wb.Eq("tipo", string(f.Kind))
	wb.Like("hostname", f.Hostname)
	wb.Like("numero_serie", f.Serial)
	wb.Eq("proyecto", f.Project)
	where, args := wb.Build()
	return "SELECT " + computerColumns + " FROM computers" + where + " ORDER BY timestamp DESC, id DESC", args
}

// SearchPage returns one page of computer records, newest first.
func (s *Computers) SearchPage(ctx context.Context, f ComputerFilter, page int) (paginate.Result[Computer], error) {
	query, args := f.build()
	res, err := paginate.Query(ctx, s.db, query, args, page, scanComputer)
	if err != nil {
		return res, wrap("search computers", err)
	}
	return res, nil
}

// Search returns every computer record matching f. Used by exports.
func (s *Computers) Search(ctx context.Context, f ComputerFilter) ([]Computer, error) {
	query, args := f.build()
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("search computers", err)
	}
	defer rows.Close()

	var out []Computer
	for rows.Next() {
		c, err := scanComputer(rows)
		if err != nil {
			return nil, wrap("scan computer", err)
		}
		out = append(out, c)
	}
	return out, wrap("iterate computers", rows.Err())
}

// Get returns a single computer record by id.
func (s *Computers) Get(ctx context.Context, id int64) (Computer, error) {
	rows, err := s.db.Query(ctx, "SELECT "+computerColumns+" FROM computers WHERE id = $1", id)
	if err != nil {
		return Computer{}, wrap("get computer", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return Computer{}, wrap("get computer", pgx.ErrNoRows)
	}
	c, err := scanComputer(rows)
	return c, wrap("scan computer", err)
}

// Update rewrites an existing computer record.
func (s *Computers) Update(ctx context.Context, c Computer) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE computers
		SET proyecto = $1, hostname = $2, numero_serie = $3, apellidos_nombre = $4, notas = $5, tipo = $6
		WHERE id = $7`,
		c.Project, c.Hostname, c.Serial, c.Person, c.Notes, string(c.Kind), c.ID)
	if err != nil {
		return wrap("update computer", err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("update computer", pgx.ErrNoRows)
	}
	return nil
}

// DeleteByIDs removes the selected computer records.
func (s *Computers) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	where, args := NewWhereBuilder().InInt64("id", ids).Build()
	tag, err := s.db.Exec(ctx, "DELETE FROM computers"+where, args...)
	return tag.RowsAffected(), wrap("delete computers", err)
}

func scanComputer(rows pgx.Rows) (Computer, error) {
	var (
		c    Computer
		kind string
	)
	err := rows.Scan(&c.ID, &c.Project, &c.Hostname, &c.Serial, &c.Person, &c.Notes, &kind, &c.Actor, &c.Timestamp)
	c.Kind = custody.Kind(kind)
	return c, err
}
