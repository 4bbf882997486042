package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mitie-ops/custodia/internal/paginate"
)

// Phone is one handset in the site phone inventory.
type Phone struct {
	ID          int64     `json:"id"`
	IMEI        string    `json:"imei"`
	Serial      string    `json:"numero_serie"`
	Model       string    `json:"modelo"`
	LinkedPhone string    `json:"telefono_asociado"`
	CreatedAt   time.Time `json:"fecha_creacion"`
}

const phoneColumns = "id, imei, numero_serie, modelo, telefono_asociado, fecha_creacion"

// Inventory is the phone inventory store.
type Inventory struct {
	db DBTX
}

// NewInventory builds the inventory store over a connection pool.
func NewInventory(pool *pgxpool.Pool) *Inventory {
	return &Inventory{db: pool}
}

// Insert registers a handset and returns its assigned id.
func (s *Inventory) Insert(ctx context.Context, p Phone) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO phone_inventory (imei, numero_serie, modelo, telefono_asociado, fecha_creacion)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.IMEI, p.Serial, p.Model, p.LinkedPhone, p.CreatedAt,
	).Scan(&id)
	return id, wrap("insert phone", err)
}

// ListPage returns one page of handsets, newest first.
func (s *Inventory) ListPage(ctx context.Context, page int) (paginate.Result[Phone], error) {
	query := "SELECT " + phoneColumns + " FROM phone_inventory ORDER BY fecha_creacion DESC, id DESC"
	res, err := paginate.Query(ctx, s.db, query, nil, page, scanPhone)
	if err != nil {
		return res, wrap("list phones", err)
	}
	return res, nil
}

// Get returns a single handset by id.
func (s *Inventory) Get(ctx context.Context, id int64) (Phone, error) {
	rows, err := s.db.Query(ctx, "SELECT "+phoneColumns+" FROM phone_inventory WHERE id = $1", id)
	if err != nil {
		return Phone{}, wrap("get phone", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return Phone{}, wrap("get phone", pgx.ErrNoRows)
	}
	p, err := scanPhone(rows)
	return p, wrap("scan phone", err)
}

// Update rewrites an existing handset.
func (s *Inventory) Update(ctx context.Context, p Phone) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE phone_inventory
		SET imei = $1, numero_serie = $2, modelo = $3, telefono_asociado = $4
		WHERE id = $5`,
		p.IMEI, p.Serial, p.Model, p.LinkedPhone, p.ID)
	if err != nil {
		return wrap("update phone", err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("update phone", pgx.ErrNoRows)
	}
	return nil
}

// DeleteByIDs removes the selected handsets.
func (s *Inventory) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	where, args := NewWhereBuilder().InInt64("id", ids).Build()
	tag, err := s.db.Exec(ctx, "DELETE FROM phone_inventory"+where, args...)
	return tag.RowsAffected(), wrap("delete phones", err)
}

func scanPhone(rows pgx.Rows) (Phone, error) {
	var p Phone
	err := rows.Scan(&p.ID, &p.IMEI, &p.Serial, &p.Model, &p.LinkedPhone, &p.CreatedAt)
	return p, err
}
