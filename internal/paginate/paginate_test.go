package paginate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow(t *testing.T) {
	tests := []struct {
		name       string
		total      int64
		page       int
		wantPage   int
		wantOffset int
		wantPages  int
	}{
		{"third page of 125", 125, 3, 3, 100, 3},
		{"empty set clamps to one", 0, 5, 1, 0, 1},
		{"page past the end", 125, 99, 3, 100, 3},
		{"zero page clamps up", 125, 0, 1, 0, 3},
		{"negative page clamps up", 125, -4, 1, 0, 3},
		{"exact multiple", 100, 2, 2, 50, 2},
		{"single row", 1, 1, 1, 0, 1},
		{"one past a full page", 51, 2, 2, 50, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, offset, pages := Window(tt.total, tt.page, PerPage)
			assert.Equal(t, tt.wantPage, page, "page")
			assert.Equal(t, tt.wantOffset, offset, "offset")
			assert.Equal(t, tt.wantPages, pages, "totalPages")
		})
	}
}

func TestWindow_LastPageRowCount(t *testing.T) {
	// 125 rows at 50 per page: page 3 starts at offset 100 and holds the
	// remaining 25 rows.
	page, offset, pages := Window(125, 3, PerPage)
	assert.Equal(t, 3, page)
	assert.Equal(t, 3, pages)

	remaining := 125 - offset
	assert.Equal(t, 25, remaining)
}

func TestWindow_DefaultsBadPerPage(t *testing.T) {
	page, offset, pages := Window(60, 2, 0)
	assert.Equal(t, 2, page)
	assert.Equal(t, PerPage, offset)
	assert.Equal(t, 2, pages)
}
