package database

import "testing"

func TestMigrationsAreOrderedForwardOnly(t *testing.T) {
	m := NewMigrator(nil, "chats", nil)

	if len(m.migrations) == 0 {
		t.Fatalf("no migrations registered")
	}
	last := 0
	for _, migration := range m.migrations {
		if migration.Version <= last {
			t.Fatalf("migration %d follows %d, versions must increase", migration.Version, last)
		}
		if migration.Up == nil || migration.Description == "" {
			t.Fatalf("migration %d is incomplete", migration.Version)
		}
		last = migration.Version
	}
}
