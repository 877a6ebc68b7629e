package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"maskflow/internal/domain"
)

func TestPostgresAdapter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("maskflow"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	p := Params{
		Kind:     domain.KindPostgreSQL,
		Host:     host,
		Port:     port.Int(),
		Database: "maskflow",
		Username: "user",
		Password: "password",
		Extra:    map[string]string{"sslmode": "disable"},
	}
	dsn, err := pgDSN(p)
	require.NoError(t, err)

	setup, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	_, err = setup.Exec(ctx, `
		CREATE TABLE people (id SERIAL PRIMARY KEY, name VARCHAR(40), born DATE, score NUMERIC(6,2), ref UUID);
		CREATE TABLE people_masked (id INT GENERATED ALWAYS AS IDENTITY, name VARCHAR(40) NOT NULL, born DATE, score NUMERIC(6,2), ref UUID);`)
	require.NoError(t, err)
	for i := 1; i <= 7; i++ {
		_, err := setup.Exec(ctx, `INSERT INTO people (name, born, score, ref) VALUES ($1, '1990-01-02', 12.5, gen_random_uuid())`,
			fmt.Sprintf("n%d", i))
		require.NoError(t, err)
	}
	require.NoError(t, setup.Close(ctx))

	a, err := NewPostgres(p)
	require.NoError(t, err)
	defer a.Close(ctx)

	t.Run("Probe", func(t *testing.T) {
		ok, msg := a.Probe(ctx)
		assert.True(t, ok)
		assert.Equal(t, "PostgreSQL connection successful", msg)
	})

	t.Run("Catalog", func(t *testing.T) {
		tables, err := a.ListTables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"people", "people_masked"}, tables)

		meta, err := a.TableMetadata(ctx, "people")
		require.NoError(t, err)
		assert.True(t, meta.IsIdentity("id"))
		name, ok := meta.Column("name")
		require.True(t, ok)
		assert.Equal(t, 40, name.MaxLength)

		meta, err = a.TableMetadata(ctx, "public.people_masked")
		require.NoError(t, err)
		assert.True(t, meta.IsIdentity("id"))

		_, err = a.ListColumns(ctx, "ghost")
		assert.True(t, IsKind(err, KindObjectNotFound))
		_, err = a.CountRows(ctx, "ghost")
		assert.True(t, IsKind(err, KindObjectNotFound))
	})

	t.Run("CursorAndInsert", func(t *testing.T) {
		n, err := a.CountRows(ctx, "people")
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)

		cur, err := a.OpenCursor(ctx, "people", []string{"name", "born", "score", "ref"})
		require.NoError(t, err)
		var all [][]any
		for {
			page, err := cur.Next(ctx, 3)
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			all = append(all, page...)
		}
		require.NoError(t, cur.Close())
		require.Len(t, all, 7)
		assert.Equal(t, "12.50", all[0][2])
		assert.IsType(t, "", all[0][3])

		inserted, err := a.BulkInsert(ctx, "people_masked", []string{"name", "born", "score", "ref"}, all)
		require.NoError(t, err)
		assert.Equal(t, int64(7), inserted)

		_, err = a.BulkInsert(ctx, "people_masked", []string{"name"}, [][]any{{"x"}, {nil}})
		require.Error(t, err)
		n, err = a.CountRows(ctx, "people_masked")
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)

		cleared, err := a.ClearTable(ctx, "people_masked")
		require.NoError(t, err)
		assert.Equal(t, int64(7), cleared)
		cleared, err = a.ClearTable(ctx, "people_masked")
		require.NoError(t, err)
		assert.Equal(t, int64(0), cleared)
	})

	t.Run("BadPassword", func(t *testing.T) {
		bad := p
		bad.Password = "wrong"
		b, err := NewPostgres(bad)
		require.NoError(t, err)
		err = b.Connect(ctx)
		assert.True(t, IsKind(err, KindAuthenticationFailed), "got %v", err)
		ok, _ := b.Probe(ctx)
		assert.False(t, ok)
	})
}
