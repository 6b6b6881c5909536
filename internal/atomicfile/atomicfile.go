// Package atomicfile writes files through a temporary sibling that is synced
// and renamed over the destination, so readers see either the old or the new
// content and never a partial write.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Pending is an open temporary file that becomes the destination on Commit.
type Pending struct {
	*os.File

	dest string
	done bool
}

func Create(dest string, perm os.FileMode) (*Pending, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("chmod temp file: %w", err)
	}

	return &Pending{File: tmp, dest: dest}, nil
}

func (p *Pending) Commit() error {
	if p.done {
		return nil
	}
	p.done = true

	if err := p.Sync(); err != nil {
		_ = p.Close()
		_ = os.Remove(p.Name())
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := p.Close(); err != nil {
		_ = os.Remove(p.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(p.Name(), p.dest); err != nil {
		_ = os.Remove(p.Name())
		return fmt.Errorf("move temp file into %s: %w", p.dest, err)
	}

	_ = syncDir(filepath.Dir(p.dest))
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (p *Pending) Abort() {
	if p.done {
		return
	}
	p.done = true
	_ = p.Close()
	_ = os.Remove(p.Name())
}

func WriteFile(dest string, data []byte, perm os.FileMode) error {
	p, err := Create(dest, perm)
	if err != nil {
		return err
	}
	if _, err := p.Write(data); err != nil {
		p.Abort()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return p.Commit()
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
