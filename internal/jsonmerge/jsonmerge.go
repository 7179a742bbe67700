// Package jsonmerge implements the layer-over-layer JSON merge used
// by the overlay resolver (component D): object keys unioned and
// recursed, arrays replaced unless the source key ends in "+" (append
// convention), scalars overwritten by the later layer, and null in
// the source deleting the target key.
package jsonmerge

import "github.com/samber/lo"

// appendSuffix is the JSON-merge array-append convention: a source
// key ending in "+" means "append to the target's key without the
// suffix" rather than replace it. Preserved exactly per the design
// note on this convention; no evidence surfaced that it is unused.
const appendSuffix = "+"

// Merge recursively merges source into target and returns the
// result. target is not mutated; the returned value may share
// structure with target where source left it untouched. The later
// (source) value wins at scalar level, which is why the JSON overlay
// resolver always merges with the higher-priority layer as source.
func Merge(target, source any) any {
	if source == nil {
		// A bare top-level null has no parent key to delete; per-key
		// null deletion is handled in mergeObjects instead.
		return nil
	}

	tObj, tIsObj := target.(map[string]any)
	sObj, sIsObj := source.(map[string]any)
	if tIsObj && sIsObj {
		return mergeObjects(tObj, sObj)
	}

	// Both arrays: source replaces target wholesale at this level (the
	// "+" append convention is keyed on the *parent* object's key, not
	// on array-vs-array merging in isolation, so a bare array-over-array
	// merge with no enclosing key is a plain replace).
	return source
}

func mergeObjects(target, source map[string]any) map[string]any {
	out := make(map[string]any, len(target)+len(source))
	for k, v := range target {
		out[k] = v
	}

	for k, sv := range source {
		if base, isAppend := appendTarget(k); isAppend {
			sArr, sOK := sv.([]any)
			if !sOK {
				// Not actually an array; fall back to plain assignment
				// under the literal (unsuffixed) key.
				out[base] = sv
				continue
			}
			tArr, _ := out[base].([]any)
			out[base] = append(append([]any{}, tArr...), sArr...)
			continue
		}

		if sv == nil {
			delete(out, k)
			continue
		}

		if tv, ok := out[k]; ok {
			out[k] = Merge(tv, sv)
		} else {
			out[k] = sv
		}
	}

	return out
}

// appendTarget reports whether k is a "+"-suffixed append key and, if
// so, returns the target key it appends to.
func appendTarget(k string) (string, bool) {
	if len(k) > len(appendSuffix) && k[len(k)-len(appendSuffix):] == appendSuffix {
		return k[:len(k)-len(appendSuffix)], true
	}
	return "", false
}

// Keys returns the union of keys present in either a or b, both
// expected to be map[string]any (or nil). The order of the returned
// keys is not defined.
func Keys(a, b map[string]any) []string {
	return lo.Union(lo.Keys(a), lo.Keys(b))
}
