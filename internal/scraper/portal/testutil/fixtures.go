package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// FixturesDir returns portal/<portalDir>/testdata/fixtures.
func FixturesDir(portalDir string) string {
	// Path relative to this file
	_, filename, _, _ := runtime.Caller(0)
	baseDir := filepath.Dir(filepath.Dir(filename)) // up to portal/

	return filepath.Join(baseDir, portalDir, "testdata", "fixtures")
}

// FixturePath is the location of an HTML fixture of the given portal.
func FixturePath(portalDir, name string) string {
	return filepath.Join(FixturesDir(portalDir), name+".html")
}

// LoadFixture reads an HTML fixture file for the given portal
func LoadFixture(t testing.TB, portalDir, name string) string {
	t.Helper()

	data, err := os.ReadFile(FixturePath(portalDir, name))
	if err != nil {
		t.Fatalf("Failed to load fixture %s/%s: %v", portalDir, name, err)
	}

	return string(data)
}

// SaveFixture writes html as a fixture, creating the directory. Used by the
// capture script.
func SaveFixture(portalDir, name, html string) (string, error) {
	if err := os.MkdirAll(FixturesDir(portalDir), 0o755); err != nil {
		return "", err
	}
	path := FixturePath(portalDir, name)
	return path, os.WriteFile(path, []byte(html), 0o644)
}
