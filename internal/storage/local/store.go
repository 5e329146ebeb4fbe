// Package local is the on-disk key-value store holding raw, processed and icon images.
package local

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

type Bucket string

const (
	Raw       Bucket = "raw"
	Processed Bucket = "processed"
	Icons     Bucket = "icons"
)

// Buckets lists the image collections in archive order.
var Buckets = []Bucket{Raw, Processed, Icons}

var ErrInvalidName = errors.New("invalid file name")

// Mirror receives a copy of every object written to the store and drops it again
// once the file leaves its bucket.
type Mirror interface {
	PutObject(ctx context.Context, bucket Bucket, name string, data []byte) error
	RemoveObject(ctx context.Context, bucket Bucket, name string) error
}

type Store struct {
	root   string
	mirror Mirror
}

// NewStore creates the bucket, trash and archive directories under root.
func NewStore(root string) (*Store, error) {
	s := &Store{root: root}
	dirs := []string{s.TrashDir(), s.ArchiveDir()}
	for _, b := range Buckets {
		dirs = append(dirs, s.Dir(b))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Store) SetMirror(m Mirror) {
	s.mirror = m
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Dir(b Bucket) string {
	return filepath.Join(s.root, string(b))
}

func (s *Store) TrashDir() string {
	return filepath.Join(s.root, "trash")
}

func (s *Store) ArchiveDir() string {
	return filepath.Join(s.root, "archive")
}

// ValidName rejects names that would escape a bucket directory.
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (s *Store) Path(b Bucket, name string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.Dir(b), name), nil
}

func (s *Store) Exists(b Bucket, name string) bool {
	path, err := s.Path(b, name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (s *Store) Stat(b Bucket, name string) (os.FileInfo, error) {
	path, err := s.Path(b, name)
	if err != nil {
		return nil, err
	}
	return os.Stat(path)
}

func (s *Store) Get(b Bucket, name string) ([]byte, error) {
	path, err := s.Path(b, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", b, name, err)
	}
	return data, nil
}

// Put writes data atomically and forwards a copy to the mirror when one is set.
func (s *Store) Put(ctx context.Context, b Bucket, name string, data []byte) error {
	path, err := s.Path(b, name)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, data); err != nil {
		return err
	}
	if s.mirror != nil {
		if err := s.mirror.PutObject(ctx, b, name, data); err != nil {
			log.Printf("Warning: failed to mirror %s/%s: %v", b, name, err)
		}
	}
	return nil
}

// Reserve returns the first unused name produced by candidate(0), candidate(1), ...
func (s *Store) Reserve(b Bucket, candidate func(attempt int) string) string {
	for i := 0; ; i++ {
		name := candidate(i)
		if !s.Exists(b, name) {
			return name
		}
	}
}

// List returns regular file names in directory order.
func (s *Store) List(b Bucket) ([]string, error) {
	entries, err := os.ReadDir(s.Dir(b))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read directory %s: %w", s.Dir(b), err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// MoveTo moves a stored file to dest, which may live outside the buckets, and removes
// the mirrored copy. Mirror failures are logged, not returned.
func (s *Store) MoveTo(ctx context.Context, b Bucket, name, dest string) error {
	src, err := s.Path(b, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", dest, err)
	}
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("move %s to %s: %w", src, dest, err)
	}
	if s.mirror != nil {
		if err := s.mirror.RemoveObject(ctx, b, name); err != nil {
			log.Printf("Warning: failed to remove mirrored %s/%s: %v", b, name, err)
		}
	}
	return nil
}

// Rel reports path relative to the store root for display.
func (s *Store) Rel(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// UniquePath appends _2, _3, ... before the extension until path is unused.
func UniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".logo-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}
