package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"pecel/api/internal/register"
)

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("PECEL_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("PECEL_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, "../../db/migrations"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db, ctx
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db, ctx := openTestDB(t)

	// Second pass must find every version recorded and apply nothing.
	if err := ApplyMigrations(ctx, db, "../../db/migrations"); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}

	var applied int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied == 0 {
		t.Fatal("no migrations recorded")
	}
}

func TestConcurrentCreatesAssignDistinctRegisters(t *testing.T) {
	db, ctx := openTestDB(t)
	pg := NewPostgresStore(db)

	const n = 16
	results := make([]Document, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = pg.CreateDocument(ctx, NewDocument{
				Tanggal:      "2025-03-10",
				Nama:         fmt.Sprintf("Pemohon %02d", i),
				NomorHP:      "081234567890",
				Email:        fmt.Sprintf("pemohon%02d@example.com", i),
				Alamat:       "Kotamobagu Barat",
				JenisDokumen: "KTP",
				Status:       StatusDiterima,
				Keterangan:   "Menunggu Diproses",
				NamaCS:       "budi",
				CreatedBy:    "usr_budi",
			})
		}(i)
	}
	wg.Wait()

	seen := make(map[string]int, n)
	for i, err := range errs {
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		doc := results[i]
		if prev, dup := seen[doc.NomorRegister]; dup {
			t.Fatalf("register %s assigned to both document %d and %d", doc.NomorRegister, prev, doc.ID)
		}
		seen[doc.NomorRegister] = doc.ID

		tanggal, _ := time.Parse("2006-01-02", doc.Tanggal)
		if want := register.Generate(doc.ID, doc.JenisDokumen, tanggal); doc.NomorRegister != want {
			t.Fatalf("document %d: register = %s, want %s", doc.ID, doc.NomorRegister, want)
		}
		seq := strings.SplitN(doc.NomorRegister, "/", 2)[0]
		if parsed, err := strconv.Atoi(seq); err != nil || parsed != doc.ID {
			t.Fatalf("document %d: sequence segment %q does not match id", doc.ID, seq)
		}
	}
	if len(seen) != n {
		t.Fatalf("got %d distinct registers, want %d", len(seen), n)
	}

	// No placeholder may survive the transaction.
	var temps int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE nomor_register LIKE 'TEMP-%'`).Scan(&temps); err != nil {
		t.Fatalf("count placeholders: %v", err)
	}
	if temps != 0 {
		t.Fatalf("%d placeholder registers left in table", temps)
	}
}
