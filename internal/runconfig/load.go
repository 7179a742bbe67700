package runconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/SakuraUO/thcrap/internal/pathsynth"
	"github.com/SakuraUO/thcrap/internal/xlog"
)

var runConfigValidator = mustCompile("runconfig.json", runConfigSchema)
var manifestValidator = mustCompile("manifest.json", manifestSchema)

func mustCompile(name, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("runconfig: embedded schema %s: %v", name, err))
	}
	return c.MustCompile(name)
}

// Load reads and validates a runconfig JSON file at path, then warns
// about any configured patch whose archive directory does not exist
// (stack_show_missing).
func Load(path string) (*RunConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runconfig: read %s: %w", path, err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("runconfig: parse %s: %w", path, err)
	}
	if err := runConfigValidator.Validate(doc); err != nil {
		return nil, fmt.Errorf("runconfig: schema validation failed for %s: %w", path, err)
	}

	var rc RunConfig
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, fmt.Errorf("runconfig: decode %s: %w", path, err)
	}

	var extra map[string]json.RawMessage
	if err := json.Unmarshal(raw, &extra); err == nil {
		rc.Extra = make(map[string]any, len(extra))
		for _, known := range []string{"game", "build", "thcrap_dir", "patches"} {
			delete(extra, known)
		}
		for k, v := range extra {
			var val any
			if json.Unmarshal(v, &val) == nil {
				rc.Extra[k] = val
			}
		}
	}

	showMissing(&rc)
	return &rc, nil
}

// ValidateManifest validates a decoded files.js document against the
// manifest schema (object with integer-or-null values).
func ValidateManifest(doc any) error {
	if err := manifestValidator.Validate(doc); err != nil {
		return fmt.Errorf("runconfig: manifest schema validation failed: %w", err)
	}
	return nil
}

// DecodeManifest parses and validates raw files.js bytes into a
// path -> value map where values are either json.Number (CRC32) or
// nil (tombstone).
func DecodeManifest(raw []byte) (map[string]any, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("runconfig: manifest parse: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("runconfig: manifest is not a JSON object")
	}
	if err := ValidateManifest(doc); err != nil {
		return nil, err
	}
	return obj, nil
}

// showMissing warns once about every configured patch whose archive
// directory is absent from disk, per stack_show_missing.
func showMissing(rc *RunConfig) {
	var missing []string
	for _, p := range rc.Patches {
		info, err := os.Stat(p.Archive)
		if err != nil || !info.IsDir() {
			missing = append(missing, p.Archive)
		}
	}
	if len(missing) > 0 {
		xlog.Warn("missing patch archives: %s", strings.Join(missing, ", "))
	}
}

// PruneUnneeded drops, from rc.Patches, any patch that carries none
// of "<game>.js", "<game>/", or "<game>.<build>.js" and therefore
// contributes nothing to this session's overlay. It returns the ids
// of the patches it dropped (stack_remove_if_unneeded).
func (rc *RunConfig) PruneUnneeded(gameID string) []string {
	if gameID == "" {
		return nil
	}
	var dropped []string
	kept := rc.Patches[:0]
	for _, p := range rc.Patches {
		if patchContributes(p, gameID, rc.Build) {
			kept = append(kept, p)
		} else {
			dropped = append(dropped, p.ID)
		}
	}
	rc.Patches = kept
	return dropped
}

func patchContributes(p *Patch, game, build string) bool {
	candidates := []string{
		game + ".js",
		pathsynth.ForBuild(game+".js", build),
	}
	info, err := os.Stat(p.Archive)
	if err != nil || !info.IsDir() {
		// archive itself missing: keep it, showMissing already warned
		return true
	}
	if gameDir, err := os.Stat(p.Archive + "/" + game); err == nil && gameDir.IsDir() {
		return true
	}
	for _, c := range candidates {
		if _, err := os.Stat(p.Archive + "/" + c); err == nil {
			return true
		}
	}
	return false
}
