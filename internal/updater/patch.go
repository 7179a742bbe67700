package updater

import (
	"context"
	"encoding/json"
	"os"
	"sort"

	"github.com/SakuraUO/thcrap/internal/blobcache"
	"github.com/SakuraUO/thcrap/internal/crc"
	"github.com/SakuraUO/thcrap/internal/mirror"
	"github.com/SakuraUO/thcrap/internal/patchfs"
	"github.com/SakuraUO/thcrap/internal/runconfig"
	"github.com/SakuraUO/thcrap/internal/xlog"
)

// blobs is the process-wide dedup cache shared by every patch update
// in this run. Nil until SetBlobCache is called, in which case the
// fetch loop skips straight past it.
var blobs *blobcache.Cache

// SetBlobCache enables content dedup across patches: before
// downloading a file whose remote value is a CRC32, the fetch loop
// first checks whether some other patch already fetched bytes with
// that same checksum this run, and reuses them instead of hitting the
// network again.
func SetBlobCache(dir string) {
	blobs = blobcache.Open(dir)
}

const manifestFile = "files.js"

// UpdatePatch runs the patch updater algorithm (component H) against
// one patch: opt-outs, manifest diff against the mirror pool, and a
// per-file fetch loop with CRC verification and tombstone handling.
// The local manifest is persisted to disk after every file, so any
// prefix of successful fetches survives a crash (scenario 6).
func UpdatePatch(ctx context.Context, p *runconfig.Patch, filter Filter, cb FileCallback) Status {
	if patchfs.Exists(p, "../.git") {
		xlog.Info("%s is under revision control, not updating", p.ID)
		return Skipped
	}
	if !p.WantsUpdate() {
		return Skipped
	}
	if len(p.Servers) == 0 {
		return Offline
	}

	pool := mirror.ForPatchServers(p.Servers)
	if pool.Len() == 0 {
		return Offline
	}

	localFiles := loadLocalManifest(p)

	remoteRaw, err := pool.Download(ctx, backendFor(p), manifestFile, nil, nil)
	if err != nil {
		xlog.Warn("%s: no server reachable for files.js: %v", p.ID, err)
		return Offline
	}

	remoteFiles, err := runconfig.DecodeManifest(remoteRaw)
	if err != nil {
		xlog.Error("%s: remote files.js failed validation: %v", p.ID, err)
		return ManifestInvalid
	}

	toGet := diffManifest(p, localFiles, remoteFiles, filter)
	if len(toGet) == 0 {
		xlog.Success("%s: up to date", p.ID)
		return UpToDate
	}
	xlog.Info("%s: need to get %d files", p.ID, len(toGet))

	keys := orderedKeys(toGet)
	fileTotal := len(keys)
	for i, key := range keys {
		fileIndex := i + 1
		if pool.NumActive() == 0 {
			return Offline
		}
		remoteVal := remoteFiles[key]
		localVal := localFiles[key]

		switch {
		case remoteVal == nil && isIntegerManifestValue(localVal):
			if deleteIfUnchanged(p, localFiles, key, localVal) {
				notify(cb, key, "deleted", fileIndex, fileTotal, 0, 0)
			} else {
				notify(cb, key, "skipped", fileIndex, fileTotal, 0, 0)
			}

		case localVal == nil && hasExplicitNullLocal(localFiles, key):
			// local manifest itself tombstones this key (never expected
			// from this updater's own writer, but tolerated per spec).
			deleteEntry(p, localFiles, key)
			notify(cb, key, "deleted", fileIndex, fileTotal, 0, 0)

		case isIntegerManifestValue(remoteVal):
			crcVal, _ := manifestValueToUint32(remoteVal)

			data, fromCache := blobCacheLookup(crcVal)
			if !fromCache {
				var err error
				data, err = pool.Download(ctx, backendFor(p), key, &crcVal, progressAdapter(key, fileIndex, fileTotal, cb))
				if err != nil {
					xlog.Warn("%s: failed to fetch %s: %v", p.ID, key, err)
					notify(cb, key, "error", fileIndex, fileTotal, 0, 0)
					persistLocalManifest(p, localFiles)
					continue
				}
				blobCachePut(crcVal, data)
			} else {
				xlog.Info("%s: reusing cached blob for %s", p.ID, key)
			}

			if err := patchfs.Store(p, key, data); err != nil {
				xlog.Error("%s: failed to store %s: %v", p.ID, key, err)
				notify(cb, key, "error", fileIndex, fileTotal, 0, 0)
				persistLocalManifest(p, localFiles)
				continue
			}
			localFiles[key] = remoteVal
			notify(cb, key, "ok", fileIndex, fileTotal, int64(len(data)), int64(len(data)))

		default:
			data, err := pool.Download(ctx, backendFor(p), key, nil, progressAdapter(key, fileIndex, fileTotal, cb))
			if err != nil {
				xlog.Warn("%s: failed to fetch %s: %v", p.ID, key, err)
				notify(cb, key, "error", fileIndex, fileTotal, 0, 0)
				persistLocalManifest(p, localFiles)
				continue
			}
			if err := patchfs.Store(p, key, data); err != nil {
				xlog.Error("%s: failed to store %s: %v", p.ID, key, err)
				notify(cb, key, "error", fileIndex, fileTotal, 0, 0)
				persistLocalManifest(p, localFiles)
				continue
			}
			localFiles[key] = remoteVal
			notify(cb, key, "ok", fileIndex, fileTotal, int64(len(data)), int64(len(data)))
		}

		persistLocalManifest(p, localFiles)
	}

	xlog.Success("%s: update completed", p.ID)
	return UpToDate
}

// BackendResolver lets a caller override the transport used for a
// patch's mirrors, e.g. routing "s3://" servers to an S3Backend. The
// default resolver always uses plain HTTP.
type BackendResolver func(p *runconfig.Patch) mirror.Backend

var defaultBackendResolver BackendResolver = func(*runconfig.Patch) mirror.Backend {
	return mirror.HTTPBackend{}
}

// SetBackendResolver overrides how UpdatePatch picks a Backend for a
// patch's mirrors. Used by callers that publish some patches on an
// S3-compatible bucket (see internal/mirror.S3Backend).
func SetBackendResolver(r BackendResolver) {
	if r != nil {
		defaultBackendResolver = r
	}
}

func backendFor(p *runconfig.Patch) mirror.Backend {
	return defaultBackendResolver(p)
}

func progressAdapter(key string, fileIndex, fileTotal int, cb FileCallback) func(done, total int64) bool {
	if cb == nil {
		return nil
	}
	return func(done, total int64) bool {
		cb(key, "progress", fileIndex, fileTotal, done, total)
		return true
	}
}

func notify(cb FileCallback, key, status string, fileIndex, fileTotal int, done, total int64) {
	if cb != nil {
		cb(key, status, fileIndex, fileTotal, done, total)
	}
}

func blobCacheLookup(crcVal uint32) ([]byte, bool) {
	if blobs == nil {
		return nil, false
	}
	return blobs.Lookup(crcVal)
}

func blobCachePut(crcVal uint32, data []byte) {
	if blobs == nil {
		return
	}
	if _, err := blobs.Put(crcVal, data); err != nil {
		xlog.Warn("blobcache: failed to store blob: %v", err)
	}
}

func loadLocalManifest(p *runconfig.Patch) map[string]any {
	v, err := patchfs.LoadJSON(p, manifestFile)
	if err != nil {
		return map[string]any{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

func persistLocalManifest(p *runconfig.Patch, localFiles map[string]any) {
	if err := patchfs.StoreJSON(p, manifestFile, localFiles); err != nil {
		xlog.Error("%s: failed to persist local manifest: %v", p.ID, err)
	}
}

// diffManifest determines which remote keys require a fetch, per
// PatchFileRequiresUpdate, recovering the "dropped local file" case
// before filtering and testing for required update.
func diffManifest(p *runconfig.Patch, localFiles, remoteFiles map[string]any, filter Filter) map[string]any {
	toGet := make(map[string]any)
	for key, remoteVal := range remoteFiles {
		localVal, hasLocal := localFiles[key]
		if hasLocal && !patchfs.Exists(p, key) {
			delete(localFiles, key)
			localVal = nil
			hasLocal = false
		}
		if filter != nil && !filter(key) {
			continue
		}
		if requiresUpdate(p, key, localVal, hasLocal, remoteVal) {
			toGet[key] = remoteVal
		}
	}
	return toGet
}

func requiresUpdate(p *runconfig.Patch, key string, localVal any, hasLocal bool, remoteVal any) bool {
	if remoteVal == nil {
		return hasLocal && localVal != nil && patchfs.Exists(p, key)
	}
	if !manifestValuesEqual(localVal, remoteVal) {
		return true
	}
	return !patchfs.Exists(p, key)
}

func manifestValuesEqual(a, b any) bool {
	av, aok := manifestValueToUint32(a)
	bv, bok := manifestValueToUint32(b)
	if aok != bok {
		return false
	}
	if !aok {
		return a == nil && b == nil
	}
	return av == bv
}

func isIntegerManifestValue(v any) bool {
	_, ok := manifestValueToUint32(v)
	return ok
}

func manifestValueToUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return uint32(i), true
	case float64:
		return uint32(n), true
	default:
		return 0, false
	}
}

// deleteIfUnchanged implements the tombstone-with-CRC-check path:
// delete locally and drop the manifest entry only if the on-disk
// bytes are unchanged since the last recorded CRC (scenario 4).
// Reports whether the file was actually deleted.
func deleteIfUnchanged(p *runconfig.Patch, localFiles map[string]any, key string, localVal any) bool {
	expected, _ := manifestValueToUint32(localVal)
	got, err := crc.File(patchfs.ResolveAbsolute(p, key))
	if err != nil {
		xlog.Warn("%s: could not read %s to verify before deletion: %v", p.ID, key, err)
		return false
	}
	if got != expected {
		xlog.Info("%s (locally changed, skipping deletion)", key)
		return false
	}
	deleteEntry(p, localFiles, key)
	return true
}

func deleteEntry(p *runconfig.Patch, localFiles map[string]any, key string) {
	xlog.Info("deleting %s", key)
	if err := patchfs.Delete(p, key); err != nil && !os.IsNotExist(err) {
		xlog.Warn("%s: failed to delete %s: %v", p.ID, key, err)
	}
	delete(localFiles, key)
}

func hasExplicitNullLocal(localFiles map[string]any, key string) bool {
	v, ok := localFiles[key]
	return ok && v == nil
}

// orderedKeys returns toGet's keys in sorted order: Go map iteration
// order is not guaranteed, so we sort for determinism instead of
// relying on insertion order the way the source's json_object_foreach
// does.
func orderedKeys(toGet map[string]any) []string {
	keys := make([]string, 0, len(toGet))
	for k := range toGet {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
