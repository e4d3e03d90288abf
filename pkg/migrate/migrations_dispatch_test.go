package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/trackbeam/trackbeam-backend/pkg/migrate"
)

func TestMigrationDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations directory failed validation: %v", err)
	}
}

func TestDispatchJobsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_dispatch_jobs.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS dispatch_jobs",
		"CONSTRAINT ux_dispatch_jobs_event_destination UNIQUE (internal_event_id, destination)",
		"REFERENCES internal_events(id) ON DELETE CASCADE",
		"CHECK (status IN ('pending', 'processing', 'sent', 'dead_letter'))",
		"ix_dispatch_jobs_due",
		"DROP TABLE IF EXISTS dispatch_jobs",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestInternalEventsMigrationContainsIdentity(t *testing.T) {
	content := readMigration(t, "*_create_internal_events.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS internal_events",
		"CONSTRAINT ux_internal_events_identity UNIQUE (shop_domain, event_id, event_name)",
		"CHECK (source IN ('webhook', 'pixel'))",
		"DROP TABLE IF EXISTS internal_events",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
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
