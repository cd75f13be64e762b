package gofaxlib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"gofaxmodem/t30"
)

func TestMemoryTroubleStore(t *testing.T) {
	s := NewMemoryTroubleStore()
	tr, err := s.Get("5550100")
	require.NoError(t, err)
	assert.Equal(t, t30.Trouble{}, tr)

	require.NoError(t, s.MarkV17("5550100"))
	require.NoError(t, s.MarkV34("5550100"))
	require.NoError(t, s.MarkV17(""))

	tr, _ = s.Get("5550100")
	assert.Equal(t, t30.Trouble{V17: true, V34: true}, tr)
	tr, _ = s.Get("")
	assert.Equal(t, t30.Trouble{}, tr)
}

func TestTroubleUpsertSQL(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost dbname=fax"}),
		&gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return upsertTrouble(tx, "5550100", "v17")
	})
	assert.Contains(t, sql, "remote_troubles")
	assert.Contains(t, sql, "ON CONFLICT")
	assert.Contains(t, sql, "5550100")
}
