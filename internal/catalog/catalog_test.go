// Integration tests for the PostgreSQL catalog. They skip when the
// database is unavailable.
//
// Run with a local database:
//
//	TEST_POSTGRES_HOST=localhost go test ./internal/catalog/...
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ProgrammerXX1/plagio/pkg/config"
	apperrors "github.com/ProgrammerXX1/plagio/pkg/errors"
	"github.com/ProgrammerXX1/plagio/pkg/postgres"
)

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *Store {
	t.Helper()
	cfg := config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            5432,
		Database:        envOrDefault("TEST_POSTGRES_DB", "plagio_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "plagio"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
	pg, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { pg.Close() })

	store, err := New(pg.DB)
	if err != nil {
		t.Fatalf("initializing catalog: %v", err)
	}
	return store
}

func testRow(org, doc string) DocRow {
	return DocRow{
		OrgID:        org,
		DocID:        doc,
		ExternalID:   "ext-" + doc,
		SourceName:   doc + ".txt",
		Preview:      "preview of " + doc,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}
}

func TestCatalogRoundTrip(t *testing.T) {
	store := skipIfNoPostgres(t)
	ctx := context.Background()
	org := fmt.Sprintf("test-org-%d", time.Now().UnixNano())

	if err := store.Upsert(ctx, testRow(org, "d1")); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertBulk(ctx, []DocRow{testRow(org, "d2"), testRow(org, "d3")}); err != nil {
		t.Fatal(err)
	}

	rows, err := store.List(ctx, org, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	byDoc, err := store.GetByDocOrExternal(ctx, org, "d1")
	if err != nil {
		t.Fatal(err)
	}
	byExt, err := store.GetByDocOrExternal(ctx, org, "ext-d1")
	if err != nil {
		t.Fatal(err)
	}
	if byDoc.DocID != byExt.DocID {
		t.Error("doc and external lookups disagree")
	}

	if err := store.UpdateLastSegment(ctx, org, []string{"d1", "d2"}, "seg_x"); err != nil {
		t.Fatal(err)
	}
	row, _ := store.GetByDocOrExternal(ctx, org, "d1")
	if row.LastSegment != "seg_x" {
		t.Errorf("last segment = %q, want seg_x", row.LastSegment)
	}

	if err := store.MarkDeleted(ctx, org, "d1", time.Now().UTC().Format(time.RFC3339)); err != nil {
		t.Fatal(err)
	}
	row, _ = store.GetByDocOrExternal(ctx, org, "d1")
	if !row.Deleted {
		t.Error("row not marked deleted")
	}

	if _, err := store.GetByDocOrExternal(ctx, org, "nope"); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("err = %v, want ErrDocumentNotFound", err)
	}
}

func TestNilStoreIsNoOp(t *testing.T) {
	var store *Store
	ctx := context.Background()

	if err := store.Upsert(ctx, testRow("o", "d")); err != nil {
		t.Errorf("nil Upsert: %v", err)
	}
	if err := store.UpsertBulk(ctx, []DocRow{testRow("o", "d")}); err != nil {
		t.Errorf("nil UpsertBulk: %v", err)
	}
	if err := store.MarkDeleted(ctx, "o", "d", ""); err != nil {
		t.Errorf("nil MarkDeleted: %v", err)
	}
	if err := store.UpdateLastSegment(ctx, "o", []string{"d"}, "s"); err != nil {
		t.Errorf("nil UpdateLastSegment: %v", err)
	}
	if rows, err := store.List(ctx, "o", 10, 0); err != nil || rows != nil {
		t.Errorf("nil List = %v, %v", rows, err)
	}
	if _, err := store.GetByDocOrExternal(ctx, "o", "d"); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("nil Get err = %v, want ErrDocumentNotFound", err)
	}
}
