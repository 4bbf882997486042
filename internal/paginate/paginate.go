// Package paginate provides the offset-pagination primitive shared by
// every list and report view: total-count computation, page clamping and
// a bounded LIMIT/OFFSET slice over an arbitrary filtered base query.
package paginate

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PerPage is the fixed page size for all list views.
const PerPage = 50

// Querier is the read-side database contract, satisfied by
// *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Result is one page of rows plus the pagination envelope.
type Result[T any] struct {
	Rows       []T   `json:"rows"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Window clamps the requested page into [1, totalPages] and derives the
// slice offset. totalPages is max(1, ceil(total/perPage)), so an empty
// result set still has one (empty) page and a request past the end
// silently lands on the last page.
func Window(total int64, page, perPage int) (clampedPage, offset, totalPages int) {
	if perPage < 1 {
		perPage = PerPage
	}
	totalPages = int((total + int64(perPage) - 1) / int64(perPage))
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	return page, (page - 1) * perPage, totalPages
}

// Query runs base with pagination: it counts the unbounded query, clamps
// page, then fetches one page preserving base's ordering. scan converts
// the current row; args are base's positional arguments.
func Query[T any](ctx context.Context, db Querier, base string, args []any, page int, scan func(rows pgx.Rows) (T, error)) (Result[T], error) {
	var res Result[T]

	countSQL := "SELECT COUNT(*) FROM (" + base + ") AS sub"
	if err := db.QueryRow(ctx, countSQL, args...).Scan(&res.Total); err != nil {
		return res, fmt.Errorf("count rows: %w", err)
	}

	clamped, offset, totalPages := Window(res.Total, page, PerPage)
	res.Page = clamped
	res.PerPage = PerPage
	res.TotalPages = totalPages

	pageSQL := fmt.Sprintf("%s LIMIT $%d OFFSET $%d", base, len(args)+1, len(args)+2)
	pageArgs := append(append([]any{}, args...), PerPage, offset)

	rows, err := db.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return res, fmt.Errorf("fetch page: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return res, fmt.Errorf("scan row: %w", err)
		}
		res.Rows = append(res.Rows, item)
	}
	if err := rows.Err(); err != nil {
		return res, fmt.Errorf("iterate page: %w", err)
	}
	return res, nil
}
