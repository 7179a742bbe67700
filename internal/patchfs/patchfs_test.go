package patchfs

import (
	"errors"
	"testing"

	"github.com/SakuraUO/thcrap/internal/corerr"
	"github.com/SakuraUO/thcrap/internal/runconfig"
)

func testPatch(t *testing.T) *runconfig.Patch {
	t.Helper()
	return &runconfig.Patch{ID: "p", Archive: t.TempDir()}
}

func TestStoreLoadDelete(t *testing.T) {
	p := testPatch(t)

	if err := Store(p, "th14/data/foo.bin", []byte("hello")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !Exists(p, "th14/data/foo.bin") {
		t.Fatal("expected file to exist")
	}
	got, err := Load(p, "th14/data/foo.bin")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}

	if err := Delete(p, "th14/data/foo.bin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if Exists(p, "th14/data/foo.bin") {
		t.Fatal("expected file gone")
	}
}

func TestLoadNotFound(t *testing.T) {
	p := testPatch(t)
	_, err := Load(p, "missing.bin")
	if !errors.Is(err, corerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreLoadJSON(t *testing.T) {
	p := testPatch(t)
	v := map[string]any{"b": 2, "a": 1}
	if err := StoreJSON(p, "files.js", v); err != nil {
		t.Fatalf("StoreJSON: %v", err)
	}
	got, err := LoadJSON(p, "files.js")
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", got)
	}
	if len(m) != 2 {
		t.Fatalf("expected 2 keys, got %v", m)
	}
}
