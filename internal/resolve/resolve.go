// Package resolve implements the JSON overlay resolver (component D)
// and the binary file resolver (component E), both built on the
// chain iterator and, for JSON, the merge algorithm.
package resolve

import (
	"os"

	"github.com/SakuraUO/thcrap/internal/corerr"
	"github.com/SakuraUO/thcrap/internal/jsonmerge"
	"github.com/SakuraUO/thcrap/internal/patchfs"
	"github.com/SakuraUO/thcrap/internal/runconfig"
	"github.com/SakuraUO/thcrap/internal/stackiter"
	"github.com/SakuraUO/thcrap/internal/xlog"
)

// VirtualJSONSource is the collaborator interface consulted before
// any on-disk patch fragment for a given variant name, letting a
// caller (e.g. the binary-hacking breakpoint modules, out of scope
// here) inject synthetic JSON config without writing it to disk.
type VirtualJSONSource interface {
	// Get returns a JSON value for variant fn, or (nil, false) if this
	// source has nothing for fn.
	Get(fn string) (any, bool)
}

// JSON walks the chain forward, merging virtual sources first (in
// chain order) and then on-disk patch fragments (in chain order),
// returning the merged value and the number of bytes consumed from
// disk. A nil result with no error means nothing was found anywhere.
func JSON(patches []*runconfig.Patch, variants []string, vfs VirtualJSONSource) (any, int, error) {
	var acc any
	var bytesConsumed int

	if vfs != nil {
		for _, fn := range variants {
			v, ok := vfs.Get(fn)
			if !ok {
				continue
			}
			if acc == nil {
				acc = v
			} else {
				acc = mergeLayer(acc, v)
			}
			xlog.Hit("vfs", "", fn)
		}
	}

	it := stackiter.New(patches, variants, stackiter.Forward)
	for {
		entry, ok := it.Next()
		if !ok {
			break
		}
		v, n, err := loadJSONFragment(entry.Patch, entry.Fn)
		if err != nil {
			continue
		}
		if v == nil {
			continue
		}
		bytesConsumed += n
		if acc == nil {
			acc = v
		} else {
			acc = mergeLayer(acc, v)
		}
		xlog.Hit("disk", entry.Patch.ID, entry.Fn)
	}

	if acc == nil {
		xlog.Miss(variantsLabel(variants))
	}
	return acc, bytesConsumed, nil
}

// mergeLayer merges source over acc and, when both are objects, logs
// the resulting key-set size so a patch author can see a layer's
// effective footprint in the merged document without diffing it by
// hand.
func mergeLayer(acc, source any) any {
	if accObj, ok := acc.(map[string]any); ok {
		if srcObj, ok := source.(map[string]any); ok {
			xlog.Info("merge: %d keys combined", len(jsonmerge.Keys(accObj, srcObj)))
		}
	}
	return jsonmerge.Merge(acc, source)
}

func loadJSONFragment(p *runconfig.Patch, fn string) (any, int, error) {
	v, err := patchfs.LoadJSON(p, fn)
	if err != nil {
		return nil, 0, err
	}
	info, sErr := os.Stat(patchfs.ResolveAbsolute(p, fn))
	if sErr != nil {
		return v, 0, nil
	}
	return v, int(info.Size()), nil
}

func variantsLabel(variants []string) string {
	if len(variants) == 0 {
		return "<empty chain>"
	}
	return variants[0]
}

// File walks the chain backward and returns the first existing
// file's bytes. Returns corerr.ErrNotFound if the chain is exhausted
// (including when the chain is empty).
func File(patches []*runconfig.Patch, variants []string) ([]byte, error) {
	it := stackiter.New(patches, variants, stackiter.Backward)
	for {
		entry, ok := it.Next()
		if !ok {
			break
		}
		if !patchfs.Exists(entry.Patch, entry.Fn) || patchfs.IsDir(entry.Patch, entry.Fn) {
			continue
		}
		b, err := patchfs.Load(entry.Patch, entry.Fn)
		if err != nil {
			continue
		}
		xlog.Hit("file", entry.Patch.ID, entry.Fn)
		return b, nil
	}
	xlog.Miss(variantsLabel(variants))
	return nil, corerr.ErrNotFound
}

// AbsolutePath walks the chain backward like File but returns the
// resolved absolute path instead of file bytes, for callers (e.g. a
// DLL loader) that need to mmap or hand off the path to a third
// party rather than read it themselves.
func AbsolutePath(patches []*runconfig.Patch, variants []string) (string, error) {
	it := stackiter.New(patches, variants, stackiter.Backward)
	for {
		entry, ok := it.Next()
		if !ok {
			break
		}
		if !patchfs.Exists(entry.Patch, entry.Fn) || patchfs.IsDir(entry.Patch, entry.Fn) {
			continue
		}
		xlog.Hit("path", entry.Patch.ID, entry.Fn)
		return patchfs.ResolveAbsolute(entry.Patch, entry.Fn), nil
	}
	xlog.Miss(variantsLabel(variants))
	return "", corerr.ErrNotFound
}
