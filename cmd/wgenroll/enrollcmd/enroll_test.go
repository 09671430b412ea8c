package enrollcmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteConfigIsPrivate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "wg0.conf")
	if err := writeConfig(path, "[Interface]\n"); err != nil {
		t.Fatalf("writeConfig: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "[Interface]\n" {
		t.Fatalf("content = %q", data)
	}
}
