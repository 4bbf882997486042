package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mitie-ops/custodia/internal/paginate"
)

// Person is one entry of the GTD/SGPMR user directory.
type Person struct {
	ID        int64     `json:"id"`
	GTDUser   string    `json:"usuario_gtd"`
	SGPMRUser string    `json:"usuario_sgpmr"`
	FullName  string    `json:"nombre_apellidos"`
	Email     string    `json:"correo_electronico"`
	DNI       string    `json:"dni_nie"`
	CreatedAt time.Time `json:"fecha_creacion"`
}

const personColumns = "id, usuario_gtd, usuario_sgpmr, nombre_apellidos, correo_electronico, dni_nie, fecha_creacion"

// Directory is the GTD/SGPMR user directory store.
type Directory struct {
	db DBTX
}

// NewDirectory builds the directory store over a connection pool.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{db: pool}
}

// Insert adds a directory entry and returns its assigned id.
func (s *Directory) Insert(ctx context.Context, p Person) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO site_directory (usuario_gtd, usuario_sgpmr, nombre_apellidos, correo_electronico, dni_nie, fecha_creacion)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		p.GTDUser, p.SGPMRUser, p.FullName, p.Email, p.DNI, p.CreatedAt,
	).Scan(&id)
	return id, wrap("insert person", err)
}

// ListPage returns one page of directory entries, newest first.
func (s *Directory) ListPage(ctx context.Context, page int) (paginate.Result[Person], error) {
	query := "SELECT " + personColumns + " FROM site_directory ORDER BY fecha_creacion DESC, id DESC"
	res, err := paginate.Query(ctx, s.db, query, nil, page, scanPerson)
	if err != nil {
		return res, wrap("list directory", err)
	}
	return res, nil
}

// Get returns a single directory entry by id.
func (s *Directory) Get(ctx context.Context, id int64) (Person, error) {
	rows, err := s.db.Query(ctx, "SELECT "+personColumns+" FROM site_directory WHERE id = $1", id)
	if err != nil {
		return Person{}, wrap("get person", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return Person{}, wrap("get person", pgx.ErrNoRows)
	}
	p, err := scanPerson(rows)
	return p, wrap("scan person", err)
}

// Update rewrites an existing directory entry.
func (s *Directory) Update(ctx context.Context, p Person) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE site_directory
		SET usuario_gtd = $1, usuario_sgpmr = $2, nombre_apellidos = $3, correo_electronico = $4, dni_nie = $5
		WHERE id = $6`,
		p.GTDUser, p.SGPMRUser, p.FullName, p.Email, p.DNI, p.ID)
	if err != nil {
		return wrap("update person", err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("update person", pgx.ErrNoRows)
	}
	return nil
}

// Delete removes one directory entry.
func (s *Directory) Delete(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, "DELETE FROM site_directory WHERE id = $1", id)
	return wrap("delete person", err)
}

func scanPerson(rows pgx.Rows) (Person, error) {
	var p Person
	err := rows.Scan(&p.ID, &p.GTDUser, &p.SGPMRUser, &p.FullName, &p.Email, &p.DNI, &p.CreatedAt)
	return p, err
}
