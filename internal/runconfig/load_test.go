package runconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRunConfig(t *testing.T, dir string) string {
	t.Helper()
	archive := filepath.Join(dir, "lang_en")
	if err := os.MkdirAll(archive, 0o755); err != nil {
		t.Fatal(err)
	}
	doc := `{
		"game": "th14",
		"build": "v1.00a",
		"thcrap_dir": "` + dir + `",
		"patches": [
			{"id": "lang_en", "archive": "` + archive + `",
			 "servers": ["https://mirror1.example/lang_en/"],
			 "update": true}
		]
	}`
	path := filepath.Join(dir, "th14.js")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeRunConfig(t, dir)

	rc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rc.Game != "th14" || rc.Build != "v1.00a" {
		t.Fatalf("unexpected fields: %+v", rc)
	}
	if len(rc.Patches) != 1 || rc.Patches[0].ID != "lang_en" {
		t.Fatalf("unexpected patches: %+v", rc.Patches)
	}
	if !rc.Patches[0].WantsUpdate() {
		t.Fatal("expected WantsUpdate true")
	}
}

func TestLoadRejectsInvalidSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.js")
	if err := os.WriteFile(path, []byte(`{"patches": [{"archive": "x"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected schema validation error for missing patch id")
	}
}

func TestDecodeManifest(t *testing.T) {
	raw := []byte(`{"th14/data/foo.bin": 3735928559, "th13/obsolete.bin": null}`)
	m, err := DecodeManifest(raw)
	if err != nil {
		t.Fatalf("DecodeManifest: %v", err)
	}
	if m["th13/obsolete.bin"] != nil {
		t.Fatalf("expected tombstone nil, got %v", m["th13/obsolete.bin"])
	}
	if _, ok := m["th14/data/foo.bin"]; !ok {
		t.Fatal("expected key present")
	}
}

func TestPruneUnneeded(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "lang_en")
	if err := os.MkdirAll(filepath.Join(archive, "th14"), 0o755); err != nil {
		t.Fatal(err)
	}
	rc := &RunConfig{
		Build: "v1",
		Patches: []*Patch{
			{ID: "lang_en", Archive: archive},
		},
	}
	dropped := rc.PruneUnneeded("th14")
	if len(dropped) != 0 {
		t.Fatalf("expected patch kept (has th14/ dir), dropped=%v", dropped)
	}

	archive2 := filepath.Join(dir, "unrelated")
	if err := os.MkdirAll(archive2, 0o755); err != nil {
		t.Fatal(err)
	}
	rc2 := &RunConfig{
		Build: "v1",
		Patches: []*Patch{
			{ID: "unrelated", Archive: archive2},
		},
	}
	dropped2 := rc2.PruneUnneeded("th14")
	if len(dropped2) != 1 || dropped2[0] != "unrelated" {
		t.Fatalf("expected patch dropped, got %v", dropped2)
	}
}
