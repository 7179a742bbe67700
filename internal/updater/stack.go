package updater

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/SakuraUO/thcrap/internal/runconfig"
	"github.com/SakuraUO/thcrap/internal/xlog"
)

// StackCallback reports progress for one stack-wide update run. Index
// fields count from 1; stackTotal is the number of patches in the
// run, and fn/fileIndex/fileTotal/status/progressBytes/totalBytes
// mirror FileCallback's per-file reporting for the patch currently
// being processed.
type StackCallback func(stackIndex, stackTotal int, p *runconfig.Patch,
	fn string, status string, fileIndex, fileTotal int, progressBytes, totalBytes int64)

// StackUpdate runs UpdatePatch over every patch in rc's stack,
// sequentially and in stack order, reporting nested progress through
// cb. It returns one Status per patch, aligned with rc.Patches.
func StackUpdate(ctx context.Context, rc *runconfig.RunConfig, filter Filter, cb StackCallback) []Status {
	total := len(rc.Patches)
	statuses := make([]Status, total)
	for i, p := range rc.Patches {
		idx := i
		fileCb := wrapStackCallback(cb, idx, total, p)
		statuses[i] = UpdatePatch(ctx, p, filter, fileCb)
	}
	return statuses
}

func wrapStackCallback(cb StackCallback, stackIdx, stackTotal int, p *runconfig.Patch) FileCallback {
	if cb == nil {
		return nil
	}
	return func(fn, status string, fileIndex, fileTotal int, done, total int64) {
		cb(stackIdx+1, stackTotal, p, fn, status, fileIndex, fileTotal, done, total)
	}
}

// GlobalUpdate discovers every sibling run configuration (*.js files
// in the current directory) in addition to rc's own patches, unions
// them by archive path (rc's own patches take priority; among
// siblings, the first one found wins), and updates the resulting set.
// If a games.js is present alongside the run configurations, its top
// level keys become a game-id allowlist: a patch-relative file is
// only fetched if it either has no path segment (a shared file) or
// its leading segment names one of those game ids.
func GlobalUpdate(ctx context.Context, rc *runconfig.RunConfig, cb StackCallback) ([]Status, error) {
	patches, order := collectGlobalPatches(rc)

	filter := Filter(nil)
	if games, err := loadGameFilter("games.js"); err == nil {
		filter = updateFilterGames(games)
	}

	total := len(order)
	statuses := make([]Status, total)
	for i, archive := range order {
		p := patches[archive]
		fileCb := wrapStackCallback(cb, i, total, p)
		statuses[i] = UpdatePatch(ctx, p, filter, fileCb)
	}
	return statuses, nil
}

// collectGlobalPatches unions rc's own patches with every sibling
// run configuration's patches, keyed by archive path. rc's patches
// are seeded first so they always win; siblings are then scanned
// concurrently (bounded by errgroup) and merged in directory order so
// that "first occurrence wins" stays deterministic regardless of scan
// completion order.
func collectGlobalPatches(rc *runconfig.RunConfig) (map[string]*runconfig.Patch, []string) {
	patches := make(map[string]*runconfig.Patch)
	var order []string

	seed := func(p *runconfig.Patch) {
		if p.Archive == "" {
			return
		}
		if _, exists := patches[p.Archive]; exists {
			return
		}
		patches[p.Archive] = p
		order = append(order, p.Archive)
	}

	for _, p := range rc.Patches {
		seed(p)
	}

	siblings := findSiblingConfigs()
	loaded := make([]*runconfig.RunConfig, len(siblings))

	var g errgroup.Group
	g.SetLimit(4)
	for i, name := range siblings {
		i, name := i, name
		g.Go(func() error {
			sub, err := runconfig.Load(name)
			if err != nil {
				xlog.Warn("global update: skipping %s: %v", name, err)
				return nil
			}
			rebaseArchives(sub, name)
			loaded[i] = sub
			return nil
		})
	}
	_ = g.Wait() // individual load failures are logged and skipped, never fatal

	for _, sub := range loaded {
		if sub == nil {
			continue
		}
		for _, p := range sub.Patches {
			seed(p)
		}
	}

	return patches, order
}

// findSiblingConfigs lists every *.js file in the current directory,
// matching the original scan's FindFirstFile("*.js") sweep.
func findSiblingConfigs() []string {
	entries, err := os.ReadDir(".")
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".js") {
			out = append(out, e.Name())
		}
	}
	return out
}

// rebaseArchives rewrites a sibling run configuration's patch archive
// paths to be relative to the directory this process was started in,
// since they were authored relative to configBase's own directory.
func rebaseArchives(rc *runconfig.RunConfig, configBase string) {
	dir := filepath.Dir(configBase)
	if dir == "." {
		return
	}
	for _, p := range rc.Patches {
		if p.Archive != "" && !filepath.IsAbs(p.Archive) {
			p.Archive = filepath.Join(dir, p.Archive)
		}
	}
}

// loadGameFilter loads games.js's top-level object keys as the
// allowed game-id set. Returns an error if the file is absent or
// invalid, matching the original's "no games.js, no filtering" bail.
func loadGameFilter(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(obj))
	for k := range obj {
		ids = append(ids, k)
	}
	return ids, nil
}

// updateFilterGames implements update_filter_games: a key passes if
// it names a shared, non-game-scoped file (no "/"), or if its leading
// path segment case-insensitively matches one of the configured game
// ids.
func updateFilterGames(gameIDs []string) Filter {
	return func(fn string) bool {
		seg, _, found := strings.Cut(fn, "/")
		if !found {
			return true
		}
		for _, id := range gameIDs {
			if strings.EqualFold(seg, id) {
				return true
			}
		}
		return false
	}
}
