package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound is returned when no document exists for the id.
	ErrNotFound = errors.New("records: not found")

	// ErrAlreadyExists is returned by Create when the id is taken.
	ErrAlreadyExists = errors.New("records: already exists")

	// ErrInvalidKey is returned for namespaces or ids that cannot be used as
	// a single path element.
	ErrInvalidKey = errors.New("records: invalid namespace or id")
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Store is a file-per-record document store rooted at a data directory.
// It is safe for concurrent use across different ids.
type Store struct {
	root string
}

// New returns a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("records: create root %q: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the data directory.
func (s *Store) Root() string { return s.root }

// Create stores doc under ns/id. It fails with ErrAlreadyExists if the id is
// already present, leaving the existing document untouched.
func (s *Store) Create(ctx context.Context, ns, id string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(ns, id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("records: create namespace %q: %w", ns, err)
	}

	tmp, err := writeTemp(filepath.Dir(path), id, doc)
	if err != nil {
		return fmt.Errorf("records: create %s/%s: %w", ns, id, err)
	}
	defer os.Remove(tmp) //nolint:errcheck

	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("records: create %s/%s: %w", ns, id, err)
	}
	return nil
}

// ReadRaw returns the stored bytes for ns/id.
func (s *Store) ReadRaw(ctx context.Context, ns, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(ns, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("records: read %s/%s: %w", ns, id, err)
	}
	return data, nil
}

// Read decodes the document stored under ns/id into out.
func (s *Store) Read(ctx context.Context, ns, id string, out any) error {
	data, err := s.ReadRaw(ctx, ns, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("records: decode %s/%s: %w", ns, id, err)
	}
	return nil
}

// Update replaces the document under ns/id. It fails with ErrNotFound, and
// creates nothing, if the id is absent.
func (s *Store) Update(ctx context.Context, ns, id string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(ns, id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("records: update %s/%s: %w", ns, id, err)
	}

	tmp, err := writeTemp(filepath.Dir(path), id, doc)
	if err != nil {
		return fmt.Errorf("records: update %s/%s: %w", ns, id, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("records: update %s/%s: %w", ns, id, err)
	}
	return nil
}

// Delete removes ns/id.
func (s *Store) Delete(ctx context.Context, ns, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(ns, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("records: delete %s/%s: %w", ns, id, err)
	}
	return nil
}

// List returns the ids present in ns. A namespace that has never been
// written to is empty, not an error.
func (s *Store) List(ctx context.Context, ns string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkKey(ns); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, ns))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("records: list %s: %w", ns, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

func (s *Store) path(ns, id string) (string, error) {
	if err := checkKey(ns); err != nil {
		return "", err
	}
	if err := checkKey(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, ns, id), nil
}

func checkKey(k string) error {
	if k == "" || strings.HasPrefix(k, ".") || strings.ContainsAny(k, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, k)
	}
	return nil
}

// writeTemp encodes doc into a synced, closed temp file in dir and returns
// its path.
func writeTemp(dir, id string, doc any) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+id+".tmp-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name) //nolint:errcheck
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name) //nolint:errcheck
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name) //nolint:errcheck
		return "", err
	}
	if err := os.Chmod(name, filePerm); err != nil {
		os.Remove(name) //nolint:errcheck
		return "", err
	}
	return name, nil
}
