package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	t.Setenv("ADMIRAL_HOME", "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".admiral", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestSocketPath(t *testing.T) {
	got := SocketPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "daemon.sock")) {
		t.Errorf("SocketPath(test) = %q, want suffix sessions/test/daemon.sock", got)
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix sessions/test/LOCK", got)
	}
}

func TestEnsureDir(t *testing.T) {
	base := t.TempDir()
	t.Setenv("ADMIRAL_HOME", base)

	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{Dir("test"), LogDir("test")} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("%s not created: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
		if !strings.HasPrefix(dir, base) {
			t.Errorf("%s outside ADMIRAL_HOME", dir)
		}
	}
	if got := DBPath("test"); got != filepath.Join(base, "sessions", "test", "admiral.db") {
		t.Errorf("DBPath = %q", got)
	}
}
