package journal

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	// CompressedDir is the artifact subdirectory under the logs root.
	CompressedDir = "compressed"

	liveExt     = ".log"
	artifactExt = ".gz"
	dirPerm     = 0o755
	filePerm    = 0o644
)

var (
	// ErrNotFound is returned when a live log or artifact does not exist.
	ErrNotFound = errors.New("journal: not found")

	// ErrExists is returned by Compress when the target artifact exists.
	ErrExists = errors.New("journal: artifact already exists")

	// ErrEmptyLog is returned by Rotate when the live log has no content.
	ErrEmptyLog = errors.New("journal: log is empty")

	// ErrInvalidID is returned for ids that are not a single path element.
	ErrInvalidID = errors.New("journal: invalid id")
)

// Journal manages live logs and compressed artifacts under one directory.
// All methods are safe for concurrent use.
type Journal struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per live-log id
}

// New returns a Journal rooted at root, creating root and its artifact
// subdirectory.
func New(root string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Join(root, CompressedDir), dirPerm); err != nil {
		return nil, fmt.Errorf("journal: create %q: %w", root, err)
	}
	return &Journal{root: root, locks: make(map[string]*sync.Mutex)}, nil
}

// Root returns the logs directory.
func (j *Journal) Root() string { return j.root }

// Append writes line plus a newline to the live log for id, creating it on
// first use. The file is closed before Append returns.
func (j *Journal) Append(ctx context.Context, id, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := j.livePath(id)
	if err != nil {
		return err
	}

	l := j.lock(id)
	l.Lock()
	defer l.Unlock()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, filePerm)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", id, err)
	}
	// One write per line keeps concurrent appenders from interleaving.
	if _, err := f.Write([]byte(line + "\n")); err != nil {
		f.Close()
		return fmt.Errorf("journal: append %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("journal: close %s: %w", id, err)
	}
	return nil
}

// List returns the ids of live logs. With includeCompressed, artifact ids
// are appended after the live ids.
func (j *Journal) List(ctx context.Context, includeCompressed bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, err := listWithExt(j.root, liveExt)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	if includeCompressed {
		arts, err := j.ListArtifacts(ctx)
		if err != nil {
			return nil, err
		}
		ids = append(ids, arts...)
	}
	return ids, nil
}

// ListArtifacts returns the ids of compressed artifacts, sorted.
func (j *Journal) ListArtifacts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, err := listWithExt(filepath.Join(j.root, CompressedDir), artifactExt)
	if err != nil {
		return nil, fmt.Errorf("journal: list artifacts: %w", err)
	}
	return ids, nil
}

// Compress writes the current content of live log id into a new artifact
// named newID. It returns nil only after the artifact has been fully
// written, synced and renamed into place.
func (j *Journal) Compress(ctx context.Context, id, newID string) error {
	l := j.lock(id)
	l.Lock()
	defer l.Unlock()
	_, err := j.compress(ctx, id, newID, false)
	return err
}

// Decompress returns the original text of artifact artifactID.
func (j *Journal) Decompress(ctx context.Context, artifactID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := j.ArtifactPath(artifactID)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("journal: open artifact %s: %w", artifactID, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("journal: decompress %s: %w", artifactID, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("journal: decompress %s: %w", artifactID, err)
	}
	return string(data), nil
}

// Truncate empties the live log for id. Call it only after Compress has
// returned nil for the same id, or use Rotate.
func (j *Journal) Truncate(ctx context.Context, id string) error {
	l := j.lock(id)
	l.Lock()
	defer l.Unlock()
	return j.truncate(ctx, id)
}

// Rotate compresses live log id into artifact newID and then truncates the
// live log. Appends to id are blocked for the duration. The artifact path is
// returned on success.
func (j *Journal) Rotate(ctx context.Context, id, newID string) (string, error) {
	l := j.lock(id)
	l.Lock()
	defer l.Unlock()

	size, err := j.compress(ctx, id, newID, true)
	if err != nil {
		return "", err
	}
	if size == 0 {
		// compress skipped the write; nothing to truncate.
		return "", ErrEmptyLog
	}
	if err := j.truncate(ctx, id); err != nil {
		return "", err
	}
	return j.ArtifactPath(newID)
}

// ArtifactPath returns the on-disk path of an artifact.
func (j *Journal) ArtifactPath(artifactID string) (string, error) {
	if err := checkID(artifactID); err != nil {
		return "", err
	}
	return filepath.Join(j.root, CompressedDir, artifactID+artifactExt), nil
}

// compress does the work of Compress. The caller holds the id lock. It
// returns the number of bytes read from the live log. With skipEmpty, an
// empty live log writes no artifact and returns 0.
func (j *Journal) compress(ctx context.Context, id, newID string, skipEmpty bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	src, err := j.livePath(id)
	if err != nil {
		return 0, err
	}
	dst, err := j.ArtifactPath(newID)
	if err != nil {
		return 0, err
	}

	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("journal: open %s: %w", id, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("journal: stat %s: %w", id, err)
	}
	if info.Size() == 0 && skipEmpty {
		return 0, nil
	}
	if _, err := os.Stat(dst); err == nil {
		return 0, fmt.Errorf("%w: %s", ErrExists, newID)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+newID+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("journal: create artifact %s: %w", newID, err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (int64, error) {
		tmp.Close()
		os.Remove(tmpName) //nolint:errcheck
		return 0, fmt.Errorf("journal: compress %s: %w", id, err)
	}

	zw := gzip.NewWriter(tmp)
	zw.Name = id + liveExt
	n, err := io.Copy(zw, in)
	if err != nil {
		return fail(err)
	}
	// Close flushes the gzip footer; without it the artifact is truncated.
	if err := zw.Close(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return 0, fmt.Errorf("journal: compress %s: %w", id, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return 0, fmt.Errorf("journal: compress %s: %w", id, err)
	}
	if err := os.Link(tmpName, dst); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		if errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("%w: %s", ErrExists, newID)
		}
		return 0, fmt.Errorf("journal: publish artifact %s: %w", newID, err)
	}
	os.Remove(tmpName) //nolint:errcheck
	return n, nil
}

func (j *Journal) truncate(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := j.livePath(id)
	if err != nil {
		return err
	}
	if err := os.Truncate(path, 0); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("journal: truncate %s: %w", id, err)
	}
	return nil
}

func (j *Journal) lock(id string) *sync.Mutex {
	j.mu.Lock()
	defer j.mu.Unlock()
	l, ok := j.locks[id]
	if !ok {
		l = &sync.Mutex{}
		j.locks[id] = l
	}
	return l
}

func (j *Journal) livePath(id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	return filepath.Join(j.root, id+liveExt), nil
}

func checkID(id string) error {
	if id == "" || strings.HasPrefix(id, ".") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func listWithExt(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ext))
	}
	sort.Strings(ids)
	return ids, nil
}
