package arq

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Credentials looks up the shared secret of a station pair.
type Credentials interface {
	Lookup(remote, local string) (ha1 string, ok bool)
}

// CredentialStore is the line-oriented credential file:
//
//	REMOTE:LOCAL:ha1hex
//
// Keys are matched exactly after upper-casing. Updates rewrite the whole
// file through a temporary file and a rename.
type CredentialStore struct {
	path string
	mu   sync.Mutex
}

// NewCredentialStore opens the store at path. The file need not exist yet.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// Path returns the store location.
func (c *CredentialStore) Path() string {
	return c.path
}

type credEntry struct {
	remote, local, ha1 string
}

func (c *CredentialStore) load() ([]credEntry, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []credEntry
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		entries = append(entries, credEntry{
			remote: strings.ToUpper(parts[0]),
			local:  strings.ToUpper(parts[1]),
			ha1:    parts[2],
		})
	}
	return entries, sc.Err()
}

// Lookup returns the HA1 stored for the pair.
func (c *CredentialStore) Lookup(remote, local string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return "", false
	}
	remote, local = strings.ToUpper(remote), strings.ToUpper(local)
	for _, e := range entries {
		if e.remote == remote && e.local == local {
			return e.ha1, true
		}
	}
	return "", false
}

// Set stores ha1 for the pair, replacing any previous entry.
func (c *CredentialStore) Set(remote, local, ha1 string) error {
	if strings.ContainsAny(remote+local+ha1, ":\n") {
		return NewError(ErrSyntax, "credential fields may not contain ':' or newlines")
	}
	return c.update(strings.ToUpper(remote), strings.ToUpper(local), ha1)
}

// Delete removes the entry for the pair if present.
func (c *CredentialStore) Delete(remote, local string) error {
	return c.update(strings.ToUpper(remote), strings.ToUpper(local), "")
}

func (c *CredentialStore) update(remote, local, ha1 string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return WrapError(ErrResource, "read credentials", err)
	}

	var buf bytes.Buffer
	for _, e := range entries {
		if e.remote == remote && e.local == local {
			continue
		}
		fmt.Fprintf(&buf, "%s:%s:%s\n", e.remote, e.local, e.ha1)
	}
	if ha1 != "" {
		fmt.Fprintf(&buf, "%s:%s:%s\n", remote, local, ha1)
	}

	if err := writeFileAtomic(c.path, buf.Bytes(), 0600); err != nil {
		return WrapError(ErrResource, "write credentials", err)
	}
	return nil
}

// writeFileAtomic replaces path with data so readers see either the old or
// the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
