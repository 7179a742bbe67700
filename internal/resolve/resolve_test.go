package resolve

import (
	"errors"
	"testing"

	"github.com/SakuraUO/thcrap/internal/corerr"
	"github.com/SakuraUO/thcrap/internal/patchfs"
	"github.com/SakuraUO/thcrap/internal/runconfig"
)

func newPatch(t *testing.T, id string) *runconfig.Patch {
	t.Helper()
	return &runconfig.Patch{ID: id, Archive: t.TempDir()}
}

// Scenario 1 from spec: resolution precedence.
func TestFilePrecedence(t *testing.T) {
	a := newPatch(t, "A")
	b := newPatch(t, "B")
	if err := patchfs.Store(a, "foo.js", []byte("A-generic")); err != nil {
		t.Fatal(err)
	}
	if err := patchfs.Store(b, "foo.v1.js", []byte("B-build")); err != nil {
		t.Fatal(err)
	}
	if err := patchfs.Store(b, "foo.js", []byte("B-generic")); err != nil {
		t.Fatal(err)
	}

	variants := []string{"foo.js", "foo.v1.js"}
	patches := []*runconfig.Patch{a, b}

	got, err := File(patches, variants)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if string(got) != "B-build" {
		t.Fatalf("expected B's build-specific file to win, got %q", got)
	}

	if err := patchfs.Delete(b, "foo.v1.js"); err != nil {
		t.Fatal(err)
	}
	got, err = File(patches, variants)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if string(got) != "B-generic" {
		t.Fatalf("expected B's generic file to win, got %q", got)
	}

	if err := patchfs.Delete(b, "foo.js"); err != nil {
		t.Fatal(err)
	}
	got, err = File(patches, variants)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if string(got) != "A-generic" {
		t.Fatalf("expected A's generic file to win, got %q", got)
	}
}

func TestFileNotFound(t *testing.T) {
	a := newPatch(t, "A")
	_, err := File([]*runconfig.Patch{a}, []string{"missing.js"})
	if !errors.Is(err, corerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileEmptyChain(t *testing.T) {
	a := newPatch(t, "A")
	_, err := File([]*runconfig.Patch{a}, nil)
	if !errors.Is(err, corerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty chain, got %v", err)
	}
}

// Scenario 2 from spec: JSON merge precedence.
func TestJSONPrecedence(t *testing.T) {
	a := newPatch(t, "A")
	b := newPatch(t, "B")
	if err := patchfs.StoreJSON(a, "config.js", map[string]any{"a": 1, "b": map[string]any{"x": 1}}); err != nil {
		t.Fatal(err)
	}
	if err := patchfs.StoreJSON(b, "config.js", map[string]any{"b": map[string]any{"y": 2}, "c": 3}); err != nil {
		t.Fatal(err)
	}

	variants := []string{"config.js"}
	patches := []*runconfig.Patch{a, b}

	got, _, err := JSON(patches, variants, nil)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	m := got.(map[string]any)
	if _, ok := m["a"]; !ok {
		t.Fatalf("expected 'a' present, got %v", m)
	}
	if m["c"] == nil {
		t.Fatalf("expected c present, got %v", m)
	}
	bNested := m["b"].(map[string]any)
	if len(bNested) != 2 {
		t.Fatalf("expected merged nested object with 2 keys, got %v", bNested)
	}

	if err := patchfs.StoreJSON(b, "config.js", map[string]any{"a": nil}); err != nil {
		t.Fatal(err)
	}
	got2, _, err := JSON(patches, variants, nil)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	m2 := got2.(map[string]any)
	if _, ok := m2["a"]; ok {
		t.Fatalf("expected 'a' deleted by null override, got %v", m2)
	}
}

type fakeVFS struct {
	m map[string]any
}

func (f fakeVFS) Get(fn string) (any, bool) {
	v, ok := f.m[fn]
	return v, ok
}

func TestJSONVirtualSourceFirst(t *testing.T) {
	a := newPatch(t, "A")
	if err := patchfs.StoreJSON(a, "config.js", map[string]any{"from": "disk"}); err != nil {
		t.Fatal(err)
	}
	vfs := fakeVFS{m: map[string]any{"config.js": map[string]any{"from": "vfs", "extra": true}}}

	got, _, err := JSON([]*runconfig.Patch{a}, []string{"config.js"}, vfs)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	m := got.(map[string]any)
	if m["from"] != "disk" {
		t.Fatalf("expected disk fragment (merged later) to win over vfs, got %v", m["from"])
	}
	if m["extra"] != true {
		t.Fatalf("expected vfs-only key preserved, got %v", m)
	}
}
