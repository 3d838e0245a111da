package security

import (
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// SaveGrants writes the gate's grant table to a JSON file:
//
//	{"grants": {"<plugin id>": ["<permission>", ...]}}
func (g *Gate) SaveGrants(path string) error {
	g.mu.RLock()
	snapshot := make(map[string][]string, len(g.grants))
	for id, granted := range g.grants {
		names := make([]string, 0, len(granted))
		for name := range granted {
			names = append(names, name)
		}
		snapshot[id] = names
	}
	g.mu.RUnlock()

	out := []byte(`{"grants":{}}`)
	for id, names := range snapshot {
		var err error
		out, err = sjson.SetBytes(out, "grants."+escapePath(id), names)
		if err != nil {
			return fmt.Errorf("failed to encode grants for %q: %w", id, err)
		}
	}

	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("failed to write grants file: %w", err)
	}
	g.log.Info("saved grants", "path", path, "plugins", len(snapshot))
	return nil
}

// LoadGrants reads a grants file and applies every grant it contains.
// Permissions not yet registered are registered with an empty
// description so saved grants survive restarts.
func (g *Gate) LoadGrants(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read grants file: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("grants file %s is not valid JSON", path)
	}

	var applyErr error
	gjson.GetBytes(data, "grants").ForEach(func(id, perms gjson.Result) bool {
		for _, perm := range perms.Array() {
			name := perm.String()
			if name == "" {
				continue
			}
			if !g.IsRegistered(name) {
				_ = g.RegisterPermission(name, "")
			}
			if err := g.Grant(id.String(), name); err != nil {
				applyErr = err
				return false
			}
		}
		return true
	})
	if applyErr != nil {
		return applyErr
	}
	g.log.Info("loaded grants", "path", path)
	return nil
}

// escapePath escapes gjson/sjson path metacharacters in a plugin id so
// the id lands as a literal JSON object key. The backslash must be
// covered too or an id containing one re-escapes on the way back in.
func escapePath(id string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		".", `\.`,
		"*", `\*`,
		"?", `\?`,
		"|", `\|`,
		"#", `\#`,
		"@", `\@`,
	)
	return r.Replace(id)
}
