package repository

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/renderiq/render-server/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// The DB handles below never connect; they only carry a dialect so the query
// builders can render SQL.
func pgTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN("postgres://localhost:5432/renderiq?sslmode=disable")))
	return bun.NewDB(sqldb, pgdialect.New())
}

func sqliteTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open("libsql", "libsql://renderiq.example.com")
	require.NoError(t, err)
	return bun.NewDB(sqldb, sqlitedialect.New())
}

func TestUpsertDefaultQueryNamesPartialIndex(t *testing.T) {
	chain := &models.Chain{
		ID:        uuid.Must(uuid.NewRandom()),
		ProjectID: uuid.Must(uuid.NewRandom()),
		Name:      "Default Chain",
		IsDefault: true,
	}

	for name, db := range map[string]*bun.DB{"pg": pgTestDB(t), "sqlite": sqliteTestDB(t)} {
		t.Run(name, func(t *testing.T) {
			repo := &ChainRepository{db: db}
			query := repo.upsertDefaultQuery(chain).String()

			// The conflict target must carry the index predicate, or the
			// insert errors instead of converging on the existing row.
			assert.Contains(t, query, "ON CONFLICT (project_id, is_default) WHERE is_default = true DO NOTHING")
		})
	}
}

func TestLockMemoryQueryPerDialect(t *testing.T) {
	chainID := uuid.Must(uuid.NewRandom()).String()

	var memory models.PipelineMemory
	pg := lockMemoryQuery(pgTestDB(t), &memory, chainID).String()
	assert.Contains(t, pg, "FOR UPDATE")

	lite := lockMemoryQuery(sqliteTestDB(t), &memory, chainID).String()
	assert.NotContains(t, lite, "FOR UPDATE")
}

func TestSeedMemoryQueryToleratesExistingRow(t *testing.T) {
	seed := &models.PipelineMemory{
		ChainID: uuid.Must(uuid.NewRandom()),
		Payload: json.RawMessage(`{}`),
	}

	query := seedMemoryQuery(sqliteTestDB(t), seed).String()
	assert.Contains(t, query, "ON CONFLICT (chain_id) DO NOTHING")
}

func TestClaimSelectQueryCoversStaleClaims(t *testing.T) {
	var entries []models.NotificationOutbox
	query := claimSelectQuery(pgTestDB(t), &entries, 32, time.Now()).String()

	assert.Contains(t, query, "status = 'queued'")
	assert.Contains(t, query, "status = 'claimed'")
	assert.Contains(t, query, "ORDER BY created_at ASC")
}
