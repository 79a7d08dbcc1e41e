package credstore_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/NicolasHaas/textconf/pkg/credstore"

	"github.com/google/go-cmp/cmp"
)

func withStores(t *testing.T, fn func(t *testing.T, st credstore.Store)) {
	t.Helper()

	backends := map[string]func(t *testing.T) credstore.Store{
		"file": func(t *testing.T) credstore.Store {
			st, err := credstore.OpenFile(filepath.Join(t.TempDir(), "login.txt"))
			if err != nil {
				t.Fatalf("OpenFile: unexpected error: %v", err)
			}
			return st
		},
		"sqlite": func(t *testing.T) credstore.Store {
			st, err := credstore.OpenSQLite(filepath.Join(t.TempDir(), "creds.db"))
			if err != nil {
				t.Fatalf("OpenSQLite: unexpected error: %v", err)
			}
			return st
		},
		"memory": func(t *testing.T) credstore.Store {
			return credstore.NewMemory()
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			t.Cleanup(func() {
				if err := st.Close(); err != nil {
					t.Errorf("Close: %v", err)
				}
			})
			fn(t, st)
		})
	}
}

func TestRegisterLookup(t *testing.T) {
	withStores(t, func(t *testing.T, st credstore.Store) {
		if _, ok, err := st.Lookup("alice"); err != nil || ok {
			t.Fatalf("Lookup before register: ok=%t err=%v", ok, err)
		}

		if err := st.Register("alice", "pw1"); err != nil {
			t.Fatalf("Register: unexpected error: %v", err)
		}
		if err := st.Register("bob", "pw2"); err != nil {
			t.Fatalf("Register: unexpected error: %v", err)
		}

		pw, ok, err := st.Lookup("alice")
		if err != nil || !ok || pw != "pw1" {
			t.Fatalf("Lookup(alice) = (%q, %t, %v), want (pw1, true, nil)", pw, ok, err)
		}
		if _, ok, _ := st.Lookup("Alice"); ok {
			t.Fatalf("Lookup is case-sensitive; Alice should not match")
		}

		if err := st.Register("alice", "other"); !errors.Is(err, credstore.ErrDuplicate) {
			t.Fatalf("Register duplicate: expected ErrDuplicate, got %v", err)
		}

		got, err := st.List()
		if err != nil {
			t.Fatalf("List: unexpected error: %v", err)
		}
		want := []credstore.Credential{
			{Username: "alice", Password: "pw1"},
			{Username: "bob", Password: "pw2"},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("List mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestFileStoreFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "login.txt")
	if err := os.WriteFile(path, []byte("alice pw1\n\n  bob\tpw2  \nbroken\ntoo many fields\nalice again\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	st, err := credstore.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: unexpected error: %v", err)
	}

	got, err := st.List()
	if err != nil {
		t.Fatalf("List: unexpected error: %v", err)
	}
	want := []credstore.Credential{
		{Username: "alice", Password: "pw1"},
		{Username: "bob", Password: "pw2"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("List mismatch (-want +got):\n%s", diff)
	}

	if err := st.Register("carol", "pw3"); err != nil {
		t.Fatalf("Register: unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got, want := string(data), "alice pw1\n\n  bob\tpw2  \nbroken\ntoo many fields\nalice again\ncarol pw3\n"; got != want {
		t.Errorf("file contents = %q, want %q", got, want)
	}
}

func TestFileStoreReloadSeesExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "login.txt")
	st, err := credstore.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile on missing file: unexpected error: %v", err)
	}
	if creds, _ := st.List(); len(creds) != 0 {
		t.Fatalf("expected empty store, got %v", creds)
	}

	if err := os.WriteFile(path, []byte("dave pw4\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, ok, _ := st.Lookup("dave"); ok {
		t.Fatalf("Lookup before reload should use the cache")
	}
	if _, err := st.List(); err != nil {
		t.Fatalf("List: unexpected error: %v", err)
	}
	if pw, ok, _ := st.Lookup("dave"); !ok || pw != "pw4" {
		t.Fatalf("Lookup after reload = (%q, %t)", pw, ok)
	}
}

func TestFileStoreUnreadable(t *testing.T) {
	dir := t.TempDir()
	// A directory cannot be read as a file.
	if _, err := credstore.OpenFile(dir); err == nil {
		t.Fatalf("OpenFile on a directory: expected error")
	}
}

func TestSQLStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.db")
	st, err := credstore.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: unexpected error: %v", err)
	}
	if err := st.Register("alice", "pw1"); err != nil {
		t.Fatalf("Register: unexpected error: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := credstore.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite (reopen): unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	if pw, ok, err := reopened.Lookup("alice"); err != nil || !ok || pw != "pw1" {
		t.Fatalf("Lookup after reopen = (%q, %t, %v)", pw, ok, err)
	}
	if err := reopened.Register("alice", "pw1"); !errors.Is(err, credstore.ErrDuplicate) {
		t.Fatalf("Register after reopen: expected ErrDuplicate, got %v", err)
	}
}

func TestSQLStoreBusyTimeout(t *testing.T) {
	st, err := credstore.OpenSQLite(filepath.Join(t.TempDir(), "creds.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	var ms int64
	if err := st.DB.QueryRow("PRAGMA busy_timeout").Scan(&ms); err != nil {
		t.Fatalf("read busy_timeout: %v", err)
	}
	if ms != credstore.BusyTimeout.Milliseconds() {
		t.Fatalf("busy_timeout = %dms, want %dms", ms, credstore.BusyTimeout.Milliseconds())
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		backend string
		path    string
		wantErr bool
	}{
		{"", filepath.Join(dir, "default.txt"), false},
		{"file", filepath.Join(dir, "login.txt"), false},
		{"SQLite", filepath.Join(dir, "creds.db"), false},
		{"memory", "", false},
		{"postgres", "", true},
		{"file", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend+"_"+filepath.Base(tt.path), func(t *testing.T) {
			st, err := credstore.Open(tt.backend, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Open(%q): expected error", tt.backend)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open(%q): unexpected error: %v", tt.backend, err)
			}
			_ = st.Close()
		})
	}
}
