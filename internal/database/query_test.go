package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryBuilder(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		want   string
	}{
		{"sqlite", "sqlite3", "SELECT id, name FROM configs WHERE project_id = ? AND name LIKE ? ORDER BY name LIMIT 10 OFFSET 20"},
		{"postgres", "pgx", "SELECT id, name FROM configs WHERE project_id = $1 AND name LIKE $2 ORDER BY name LIMIT 10 OFFSET 20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb := NewQueryBuilder(tt.driver).
				Select("id", "name").
				From("configs").
				Where("project_id = ?", "p1").
				WhereIf(false, "status = ?", "pending").
				WhereIf(true, "name LIKE ?", "feature%").
				OrderBy("name").
				Limit(10).
				Offset(20)

			assert.Equal(t, tt.want, qb.SQL())
			assert.Equal(t, []any{"p1", "feature%"}, qb.Args())
		})
	}
}

func TestConvertPlaceholders(t *testing.T) {
	assert.Equal(t,
		"UPDATE configs SET version = version + 1 WHERE id = $1 AND version = $2",
		ConvertPlaceholders("UPDATE configs SET version = version + 1 WHERE id = ? AND version = ?"))
	assert.Equal(t,
		"SELECT '?' FROM t WHERE a = $1",
		ConvertPlaceholders("SELECT '?' FROM t WHERE a = ?"))
}
