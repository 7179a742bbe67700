package updater

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/SakuraUO/thcrap/internal/crc"
	"github.com/SakuraUO/thcrap/internal/patchfs"
	"github.com/SakuraUO/thcrap/internal/runconfig"
)

// newTestPatch builds a patch rooted at a fresh temp dir, served by
// srv, whose "files.js" response is determined by the caller-supplied
// handler.
func newTestPatch(t *testing.T, mux *http.ServeMux) (*runconfig.Patch, string) {
	t.Helper()
	dir := t.TempDir()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &runconfig.Patch{
		ID:      "test",
		Archive: dir,
		Servers: []string{srv.URL},
	}, dir
}

func serveFile(mux *http.ServeMux, path string, body []byte) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	})
}

func TestUpdatePatchUpToDate(t *testing.T) {
	content := []byte("hello world")
	sum := crc.Bytes(content)

	mux := http.NewServeMux()
	p, dir := newTestPatch(t, mux)

	remoteManifest := []byte(fmt.Sprintf(`{"data/a.txt":%d}`, sum))
	serveFile(mux, "/files.js", remoteManifest)
	serveFile(mux, "/data/a.txt", content)

	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data/a.txt"), content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := patchfs.StoreJSON(p, manifestFile, map[string]any{"data/a.txt": float64(sum)}); err != nil {
		t.Fatal(err)
	}

	status := UpdatePatch(context.Background(), p, nil, nil)
	if status != UpToDate {
		t.Fatalf("expected UpToDate, got %v", status)
	}
}

func TestUpdatePatchDownloadsNewFile(t *testing.T) {
	content := []byte("new patch payload")
	sum := crc.Bytes(content)

	mux := http.NewServeMux()
	p, dir := newTestPatch(t, mux)

	remoteManifest := []byte(fmt.Sprintf(`{"data/new.txt":%d}`, sum))
	serveFile(mux, "/files.js", remoteManifest)
	serveFile(mux, "/data/new.txt", content)

	status := UpdatePatch(context.Background(), p, nil, nil)
	if status != UpToDate {
		t.Fatalf("expected UpToDate after successful fetch, got %v", status)
	}

	got, err := os.ReadFile(filepath.Join(dir, "data/new.txt"))
	if err != nil {
		t.Fatalf("expected file to be stored: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("got %q want %q", got, content)
	}

	local := loadLocalManifest(p)
	if _, ok := local["data/new.txt"]; !ok {
		t.Fatal("expected local manifest to record the new file")
	}
}

func TestUpdatePatchTombstoneHonorsLocalEdit(t *testing.T) {
	original := []byte("original bytes")
	originalSum := crc.Bytes(original)

	mux := http.NewServeMux()
	p, dir := newTestPatch(t, mux)

	// Remote no longer ships this file (tombstone: key maps to null).
	serveFile(mux, "/files.js", []byte(`{"data/old.txt":null}`))

	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	edited := []byte("locally edited bytes, diverged from original")
	if err := os.WriteFile(filepath.Join(dir, "data/old.txt"), edited, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := patchfs.StoreJSON(p, manifestFile, map[string]any{"data/old.txt": float64(originalSum)}); err != nil {
		t.Fatal(err)
	}

	status := UpdatePatch(context.Background(), p, nil, nil)
	if status != UpToDate {
		t.Fatalf("expected UpToDate, got %v", status)
	}

	// The locally-edited file must survive: its CRC no longer matches
	// the manifest's recorded value, so deletion must be skipped.
	got, err := os.ReadFile(filepath.Join(dir, "data/old.txt"))
	if err != nil {
		t.Fatalf("expected edited file to remain on disk: %v", err)
	}
	if string(got) != string(edited) {
		t.Fatalf("local edit was clobbered: got %q", got)
	}
}

func TestUpdatePatchTombstoneDeletesUnchangedFile(t *testing.T) {
	original := []byte("original bytes")
	originalSum := crc.Bytes(original)

	mux := http.NewServeMux()
	p, dir := newTestPatch(t, mux)

	serveFile(mux, "/files.js", []byte(`{"data/old.txt":null}`))

	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data/old.txt"), original, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := patchfs.StoreJSON(p, manifestFile, map[string]any{"data/old.txt": float64(originalSum)}); err != nil {
		t.Fatal(err)
	}

	status := UpdatePatch(context.Background(), p, nil, nil)
	if status != UpToDate {
		t.Fatalf("expected UpToDate, got %v", status)
	}

	if _, err := os.Stat(filepath.Join(dir, "data/old.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected unchanged tombstoned file to be deleted, stat err=%v", err)
	}

	local := loadLocalManifest(p)
	if _, ok := local["data/old.txt"]; ok {
		t.Fatal("expected local manifest entry to be dropped after deletion")
	}
}

func TestUpdatePatchResumesAfterInterrupt(t *testing.T) {
	c1 := []byte("file one contents")
	c2 := []byte("file two contents")
	sum1 := crc.Bytes(c1)
	sum2 := crc.Bytes(c2)

	mux := http.NewServeMux()
	p, dir := newTestPatch(t, mux)

	serveFile(mux, "/files.js", []byte(fmt.Sprintf(`{"a.txt":%d,"b.txt":%d}`, sum1, sum2)))
	serveFile(mux, "/a.txt", c1)
	serveFile(mux, "/b.txt", c2)

	// Simulate an update that was interrupted after fetching a.txt:
	// it's already on disk and in the local manifest, b.txt is not.
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), c1, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := patchfs.StoreJSON(p, manifestFile, map[string]any{"a.txt": float64(sum1)}); err != nil {
		t.Fatal(err)
	}

	status := UpdatePatch(context.Background(), p, nil, nil)
	if status != UpToDate {
		t.Fatalf("expected UpToDate, got %v", status)
	}

	gotA, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil || string(gotA) != string(c1) {
		t.Fatalf("a.txt should be untouched: %v %q", err, gotA)
	}
	gotB, err := os.ReadFile(filepath.Join(dir, "b.txt"))
	if err != nil {
		t.Fatalf("expected b.txt to be fetched on resume: %v", err)
	}
	if string(gotB) != string(c2) {
		t.Fatalf("got %q want %q", gotB, c2)
	}
}

func TestUpdatePatchSkipsUnderRevisionControl(t *testing.T) {
	mux := http.NewServeMux()
	p, dir := newTestPatch(t, mux)

	if err := os.MkdirAll(filepath.Join(dir, "..", ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	status := UpdatePatch(context.Background(), p, nil, nil)
	if status != Skipped {
		t.Fatalf("expected Skipped, got %v", status)
	}
}

func TestUpdatePatchSkipsWhenUpdateFalse(t *testing.T) {
	mux := http.NewServeMux()
	p, _ := newTestPatch(t, mux)
	no := false
	p.Update = &no

	status := UpdatePatch(context.Background(), p, nil, nil)
	if status != Skipped {
		t.Fatalf("expected Skipped, got %v", status)
	}
}

func TestUpdatePatchOfflineWithoutServers(t *testing.T) {
	dir := t.TempDir()
	p := &runconfig.Patch{ID: "test", Archive: dir}

	status := UpdatePatch(context.Background(), p, nil, nil)
	if status != Offline {
		t.Fatalf("expected Offline, got %v", status)
	}
}
