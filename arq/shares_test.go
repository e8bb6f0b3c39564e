package arq

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// shareTree lays out a shared root:
//
//	a.txt  arim-digest  .hidden
//	pub/readme  private/plan.txt  secret/key  .git/config
func shareTree(t *testing.T) (string, *Config) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")
	writeFile(t, root, "arim-digest", "K1ABC:N0CALL:x\n")
	writeFile(t, root, ".hidden", "x")
	writeFile(t, root, "pub/readme", "read me")
	writeFile(t, root, "private/plan.txt", "the plan")
	writeFile(t, root, "secret/key", "k")
	writeFile(t, root, ".git/config", "x")

	cfg := testConfig("N0CALL")
	cfg.SharedRoot = root
	cfg.CredentialFile = filepath.Join(root, "arim-digest")
	cfg.AllowDirs = []string{"pub"}
	cfg.ProtectedDirs = []string{"private"}
	cfg.DenyDirs = []string{"secret"}
	return root, cfg
}

func TestSharesCheckName(t *testing.T) {
	_, cfg := shareTree(t)
	s := NewShares(cfg, nil)
	for _, name := range []string{"", "../etc/passwd", "pub/../../x", "/etc/passwd", `pub\x`, "c:x", "arim-digest", "pub/ARIM-DIGEST"} {
		if err := s.CheckName(name); !IsResource(err) {
			t.Errorf("CheckName(%q) = %v, want resource error", name, err)
		}
	}
	for _, name := range []string{"a.txt", "pub/readme", "x.y.z"} {
		if err := s.CheckName(name); err != nil {
			t.Errorf("CheckName(%q) = %v", name, err)
		}
	}
}

func TestSharesResolve(t *testing.T) {
	root, cfg := shareTree(t)
	s := NewShares(cfg, nil)

	p, dir, err := s.Resolve("pub/readme")
	if err != nil {
		t.Fatal(err)
	}
	if p != filepath.Join(root, "pub", "readme") || dir != "pub" {
		t.Errorf("Resolve = %q %q", p, dir)
	}

	_, dir, err = s.Resolve("private/plan.txt")
	if err != nil || dir != "private" || !s.Protected(dir) {
		t.Errorf("private: dir=%q protected=%v err=%v", dir, s.Protected(dir), err)
	}
	if !s.Protected("private/sub") {
		t.Error("sub-directory of protected dir not protected")
	}
	if s.Protected("pub") || s.Protected("") {
		t.Error("unprotected dir reported protected")
	}

	if _, _, err := s.Resolve("secret/key"); !IsResource(err) {
		t.Errorf("denied dir: err = %v", err)
	}
	if _, _, err := s.Resolve("missing/x"); !IsResource(err) {
		t.Errorf("unregistered dir: err = %v", err)
	}

	dest, err := s.ResolveDest("pub", "new.txt")
	if err != nil || dest != filepath.Join(root, "pub", "new.txt") {
		t.Errorf("ResolveDest = %q %v", dest, err)
	}
	if _, err := s.ResolveDest("", "pub/new.txt"); !IsResource(err) {
		t.Errorf("ResolveDest with directory in name: err = %v", err)
	}

	var off Shares
	if _, _, err := off.Resolve("a.txt"); !IsResource(err) {
		t.Errorf("disabled shares: err = %v", err)
	}
}

func TestSharesAutoRegister(t *testing.T) {
	_, cfg := shareTree(t)
	cfg.AllowDirs = nil
	cfg.ProtectedDirs = nil
	cfg.AutoRegisterDirs = true
	s := NewShares(cfg, nil)

	got := strings.Join(s.Dirs(), ",")
	if got != "private,pub" {
		t.Errorf("Dirs() = %q, want private,pub", got)
	}
}

func TestSharesListing(t *testing.T) {
	root, cfg := shareTree(t)
	s := NewShares(cfg, nil)

	listing, err := s.Listing("")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(string(listing)), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 4 {
			t.Fatalf("listing line %q has %d fields", line, len(fields))
		}
		names = append(names, fields[0])
	}
	if got := strings.Join(names, ","); got != "a.txt,private/,pub/" {
		t.Errorf("listing names = %q", got)
	}
	if !strings.HasPrefix(string(listing), "a.txt 5 ") {
		t.Errorf("listing = %q", listing)
	}

	if _, err := s.Listing("secret"); !IsResource(err) {
		t.Errorf("denied listing: err = %v", err)
	}

	if err := os.Mkdir(filepath.Join(root, "late"), 0755); err != nil {
		t.Fatal(err)
	}
	cfg.AllowDirs = append(cfg.AllowDirs, "late")
	s = NewShares(cfg, nil)
	if !s.Registered("late") {
		t.Error("allowed directory not registered after refresh")
	}
}
