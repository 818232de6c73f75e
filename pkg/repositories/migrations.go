package repositories

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

type migration struct {
	name string
	sql  string
}

// readMigrations returns the migrations for dialect in lexical order.
func readMigrations(dialect string) ([]migration, error) {
	dir := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}

	var result []migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		migrationPath := path.Join(dir, entry.Name())
		b, err := fs.ReadFile(migrations, migrationPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %v", migrationPath, err)
		}
		result = append(result, migration{name: migrationPath, sql: string(b)})
	}
	return result, nil
}
