// Package patchfs implements the patch layer (component B): file
// operations scoped to one patch's archive root.
package patchfs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"

	"github.com/SakuraUO/thcrap/internal/corerr"
	"github.com/SakuraUO/thcrap/internal/runconfig"
)

// ResolveAbsolute returns the absolute path of r within p's archive.
func ResolveAbsolute(p *runconfig.Patch, r string) string {
	return filepath.Join(p.Archive, filepath.FromSlash(r))
}

// Exists reports whether r exists within p's archive.
func Exists(p *runconfig.Patch, r string) bool {
	_, err := os.Stat(ResolveAbsolute(p, r))
	return err == nil
}

// IsDir reports whether r exists within p's archive and is a directory.
func IsDir(p *runconfig.Patch, r string) bool {
	info, err := os.Stat(ResolveAbsolute(p, r))
	return err == nil && info.IsDir()
}

// Load reads the entire file at r within p's archive.
func Load(p *runconfig.Patch, r string) ([]byte, error) {
	b, err := os.ReadFile(ResolveAbsolute(p, r))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("patchfs: %s/%s: %w", p.ID, r, corerr.ErrNotFound)
		}
		return nil, fmt.Errorf("patchfs: load %s/%s: %w: %v", p.ID, r, corerr.ErrIoError, err)
	}
	return b, nil
}

// Store writes data to r within p's archive, creating parent
// directories as needed, atomically via write-to-temp + rename.
func Store(p *runconfig.Patch, r string, data []byte) error {
	abs := ResolveAbsolute(p, r)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("patchfs: mkdir for %s/%s: %w: %v", p.ID, r, corerr.ErrIoError, err)
	}
	if err := renameio.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("patchfs: store %s/%s: %w: %v", p.ID, r, corerr.ErrIoError, err)
	}
	return nil
}

// Delete removes r within p's archive.
func Delete(p *runconfig.Patch, r string) error {
	abs := ResolveAbsolute(p, r)
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("patchfs: %s/%s: %w", p.ID, r, corerr.ErrNotFound)
		}
		return fmt.Errorf("patchfs: delete %s/%s: %w: %v", p.ID, r, corerr.ErrIoError, err)
	}
	return nil
}

// LoadJSON reads and parses r within p's archive as a JSON value.
func LoadJSON(p *runconfig.Patch, r string) (any, error) {
	b, err := Load(p, r)
	if err != nil {
		return nil, err
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("patchfs: parse %s/%s: %w: %v", p.ID, r, corerr.ErrParseError, err)
	}
	return v, nil
}

// StoreJSON pretty-prints v with stable (sorted) key order and writes
// it to r within p's archive.
func StoreJSON(p *runconfig.Patch, r string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("patchfs: marshal %s/%s: %w: %v", p.ID, r, corerr.ErrIoError, err)
	}
	return Store(p, r, b)
}
