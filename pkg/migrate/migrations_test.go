package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-sync/pkg/migrate"
)

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
	if err := migrate.Validate(migrate.Embedded()); err != nil {
		t.Fatalf("Validate embedded: %v", err)
	}
}

func TestListFilesSortsByVersion(t *testing.T) {
	files, err := migrate.ListFiles(migrate.Embedded())
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	for i := 1; i < len(files); i++ {
		if files[i-1].Version >= files[i].Version {
			t.Fatalf("files out of order: %d then %d", files[i-1].Version, files[i].Version)
		}
	}
}

func TestEmbeddedMatchesDisk(t *testing.T) {
	embedded, err := fs.Glob(migrate.Embedded(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Fatalf("expected embedded (%d) to match disk (%d)", len(embedded), len(onDisk))
	}
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")
	checks := []string{
		"CONSTRAINT orders_external_order_id_key UNIQUE (external_order_id)",
		"FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE SET NULL",
		"total_amount numeric(12,2) NOT NULL",
		"source_modified_at timestamptz NULL",
		"DROP TABLE IF EXISTS orders",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrderItemsMigrationCascades(t *testing.T) {
	content := readMigration(t, "*_create_order_items.sql")
	for _, sub := range []string{
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"CHECK (quantity > 0)",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "users.sql", "-- +goose Up\n-- +goose Down\n")
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename error")
	}
}

func TestValidateDirRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	writeFile(t, dir, "20260101000000_a.sql", body)
	writeFile(t, dir, "20260101000000_b.sql", body)
	err := migrate.ValidateDir(dir)
	if err == nil || !strings.Contains(err.Error(), "share version") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestValidateDirRejectsUnbalancedStatements(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "20260101000000_a.sql", "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected unbalanced marker error")
	}
}

func TestCreateSanitizesName(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	path, err := migrate.Create(dir, "Add Delivery Index!", now)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if filepath.Base(path) != "20260402093000_add_delivery_index.sql" {
		t.Fatalf("unexpected path %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
	if _, err := migrate.Create(dir, "add delivery index", now); err == nil {
		t.Fatal("expected collision error for the same second")
	}
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
