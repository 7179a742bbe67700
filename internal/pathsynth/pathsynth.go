// Package pathsynth produces the per-file candidate variant chains
// the resolution engine walks: generic, build-specific, and
// game-scoped.
package pathsynth

import "strings"

// ForBuild inserts ".<build>" before fn's final extension. A path
// with no extension gets the build tag appended with a "." separator.
// An empty build collapses to fn unchanged.
func ForBuild(fn, build string) string {
	if build == "" {
		return fn
	}
	slash := strings.LastIndexByte(fn, '/')
	base := fn
	prefix := ""
	if slash >= 0 {
		prefix = fn[:slash+1]
		base = fn[slash+1:]
	}
	dot := strings.LastIndexByte(base, '.')
	if dot < 0 {
		return prefix + base + "." + build
	}
	return prefix + base[:dot] + "." + build + base[dot:]
}

// Generic returns the generic-domain variant chain for fn: [fn,
// fn_for_build(fn)]. Duplicates are tolerated when build is empty.
func Generic(fn, build string) []string {
	return []string{fn, ForBuild(fn, build)}
}

// ForGame rewrites fn to "<game>/fn". An empty game leaves fn as-is.
func ForGame(fn, game string) string {
	if game == "" {
		return fn
	}
	return game + "/" + fn
}

// GameScoped returns the game-scoped variant chain for fn: first
// rewrite fn -> "<game>/fn" (or leave as-is with no game), then apply
// the generic build rule to the rewritten name.
func GameScoped(fn, build, game string) []string {
	return Generic(ForGame(fn, game), build)
}
