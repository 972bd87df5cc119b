package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DataDir is the per-project directory holding the admin tool's database.
const DataDir = ".opsdesk"

// DiscoverDatabase looks for .opsdesk/*.db in the current directory only.
// Returns the absolute path to the database file, or an error if not found.
//
// Parent directories are not searched so a nested checkout never picks up
// an enclosing project's database.
func DiscoverDatabase() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return discoverDatabaseInDir(dir)
}

// discoverDatabaseInDir checks for .opsdesk/*.db in the specified directory.
// When several databases exist the lexically first one wins.
func discoverDatabaseInDir(dir string) (string, error) {
	dataDir := filepath.Join(dir, DataDir)

	entries, err := os.ReadDir(dataDir)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read %s: %w", dataDir, err)
	}

	var candidates []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
			candidates = append(candidates, entry.Name())
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf(
			"no %s/*.db found in %s\n"+
				"  Use --db flag or INTEGRITY_DB to specify the database path explicitly",
			DataDir, dir)
	}
	sort.Strings(candidates)

	absPath, err := filepath.Abs(filepath.Join(dataDir, candidates[0]))
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return absPath, nil
}
