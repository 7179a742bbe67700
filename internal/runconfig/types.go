// Package runconfig loads and validates the run configuration that
// supplies the ordered patch stack, current game id, and current
// build id for a resolution or update session.
package runconfig

// Patch describes one entry in the patch stack.
type Patch struct {
	ID               string   `json:"id"`
	Archive          string   `json:"archive"`
	Servers          []string `json:"servers,omitempty"`
	MOTD             string   `json:"motd,omitempty"`
	MOTDTitle        string   `json:"motd_title,omitempty"`
	MOTDType         string   `json:"motd_type,omitempty"`
	Update           *bool    `json:"update,omitempty"` // nil means true
	ThcrapVersionMin int64    `json:"thcrap_version_min,omitempty"`
}

// WantsUpdate reports whether this patch opts into updating. An absent
// "update" field means true.
func (p *Patch) WantsUpdate() bool {
	return p.Update == nil || *p.Update
}

// RunConfig is the read-only record loaded at startup: the ordered
// patch stack (index = priority, last = highest), the current game
// and build ids, the install root, and any extra collaborator keys.
type RunConfig struct {
	Game      string         `json:"game,omitempty"`
	Build     string         `json:"build,omitempty"`
	ThcrapDir string         `json:"thcrap_dir,omitempty"`
	Patches   []*Patch       `json:"patches"`
	Extra     map[string]any `json:"-"`
}

// PatchByID returns the patch with the given id, or nil.
func (rc *RunConfig) PatchByID(id string) *Patch {
	for _, p := range rc.Patches {
		if p.ID == id {
			return p
		}
	}
	return nil
}
