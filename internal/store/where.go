package store

import (
	"fmt"
	"strings"
)

// WhereBuilder accumulates AND-ed filter conditions with positional
// arguments, skipping empty values so handlers can pass search params
// through unconditionally.
type WhereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

// NewWhereBuilder returns a builder starting at argument $1.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

// Eq adds an equality condition. Empty values are skipped.
func (wb *WhereBuilder) Eq(column, value string) *WhereBuilder {
	if value == "" {
		return wb
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", column, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
	return wb
}

// Like adds a case-insensitive substring condition. Empty values are skipped.
func (wb *WhereBuilder) Like(column, value string) *WhereBuilder {
	if value == "" {
		return wb
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s ILIKE $%d", column, wb.argIndex))
	wb.args = append(wb.args, "%"+value+"%")
	wb.argIndex++
	return wb
}

// Gte adds a >= condition. Empty values are skipped.
func (wb *WhereBuilder) Gte(column string, value any) *WhereBuilder {
	return wb.compare(column, ">=", value)
}

// Lte adds a <= condition. Empty values are skipped.
func (wb *WhereBuilder) Lte(column string, value any) *WhereBuilder {
	return wb.compare(column, "<=", value)
}

// In adds a membership condition over vals. Empty slices are skipped.
func (wb *WhereBuilder) In(column string, vals []string) *WhereBuilder {
	if len(vals) == 0 {
		return wb
	}
	placeholders := make([]string, len(vals))
	for i, v := range vals {
		placeholders[i] = fmt.Sprintf("$%d", wb.argIndex)
		wb.args = append(wb.args, v)
		wb.argIndex++
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
	return wb
}

// InInt64 adds a membership condition over integer ids.
func (wb *WhereBuilder) InInt64(column string, ids []int64) *WhereBuilder {
	if len(ids) == 0 {
		return wb
	}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", wb.argIndex)
		wb.args = append(wb.args, id)
		wb.argIndex++
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
	return wb
}

func (wb *WhereBuilder) compare(column, op string, value any) *WhereBuilder {
	if s, ok := value.(string); ok && s == "" {
		return wb
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s %s $%d", column, op, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
	return wb
}

// Build returns the WHERE clause (with leading space) and its arguments,
// or ("", nil) when no conditions were added.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}
