package arq

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCredentialStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arim-digest")
	store := NewCredentialStore(path)

	if _, ok := store.Lookup("K1ABC", "N0CALL"); ok {
		t.Fatal("lookup in missing file succeeded")
	}

	if err := store.Set("k1abc", "n0call", "aaaa"); err != nil {
		t.Fatal(err)
	}
	if err := store.Set("W1XYZ", "N0CALL", "bbbb"); err != nil {
		t.Fatal(err)
	}
	if err := store.Set("K1ABC", "N0CALL", "cccc"); err != nil {
		t.Fatal(err)
	}

	if ha1, ok := store.Lookup("K1ABC", "n0call"); !ok || ha1 != "cccc" {
		t.Errorf("Lookup = %q %v, want cccc", ha1, ok)
	}
	if _, ok := store.Lookup("N0CALL", "K1ABC"); ok {
		t.Error("reversed pair matched")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "K1ABC:N0CALL:"); got != 1 {
		t.Errorf("file holds %d entries for the pair:\n%s", got, data)
	}

	if err := store.Delete("K1ABC", "N0CALL"); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Lookup("K1ABC", "N0CALL"); ok {
		t.Error("entry survived Delete")
	}
	if ha1, ok := store.Lookup("W1XYZ", "N0CALL"); !ok || ha1 != "bbbb" {
		t.Errorf("other entry lost: %q %v", ha1, ok)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d files, want only the store", len(entries))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("mode = %o, want 600", perm)
	}
}

func TestCredentialStoreSkipsComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds")
	content := "# station pairs\n\nK1ABC:N0CALL:abcd\nbroken line\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	store := NewCredentialStore(path)
	if ha1, ok := store.Lookup("K1ABC", "N0CALL"); !ok || ha1 != "abcd" {
		t.Errorf("Lookup = %q %v", ha1, ok)
	}
}

func TestCredentialStoreRejectsSeparators(t *testing.T) {
	store := NewCredentialStore(filepath.Join(t.TempDir(), "creds"))
	if err := store.Set("K1:ABC", "N0CALL", "x"); err == nil {
		t.Error("Set accepted ':' in callsign")
	}
}
