package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMinFrameworkVersion is assumed when a descriptor does not
// declare a minimum framework version.
const DefaultMinFrameworkVersion = "1.0.0"

// Metadata describes a plugin's identity, version, and requirements.
// It is parsed from a JSON descriptor stored separately from the
// module binary and is immutable once loaded.
type Metadata struct {
	// Identity
	ID          string `json:"id"`          // Unique identifier, must match the descriptor file name
	Name        string `json:"name"`        // Human-readable name
	Version     string `json:"version"`     // Semver (e.g., "1.2.0")
	Vendor      string `json:"vendor"`      // Author name or org
	Description string `json:"description"` // Short description

	// Requirements
	MinFrameworkVersion string   `json:"minFrameworkVersion"` // Minimum framework version (default "1.0.0")
	Dependencies        []string `json:"dependencies"`        // Required plugin ids, declared order preserved
	RequiredPermissions []string `json:"requiredPermissions"` // Permissions the plugin requests

	// Display-only
	Category string `json:"category"`
	IconPath string `json:"iconPath"`
}

// Metadata validation errors.
var (
	ErrMissingID      = fmt.Errorf("%w: id is required", ErrMetadataInvalid)
	ErrMissingName    = fmt.Errorf("%w: name is required", ErrMetadataInvalid)
	ErrMissingVersion = fmt.Errorf("%w: version is required", ErrMetadataInvalid)
	ErrMissingVendor  = fmt.Errorf("%w: vendor is required", ErrMetadataInvalid)
)

// ParseMetadata parses and validates a plugin descriptor.
// It never returns a partially populated Metadata: any validation
// failure yields a nil result.
func ParseMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataInvalid, err)
	}

	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// LoadMetadata loads and validates a descriptor from a file.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMetadataMissing, path)
		}
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}
	m, err := ParseMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// applyDefaults sets default values for optional fields.
func (m *Metadata) applyDefaults() {
	if m.MinFrameworkVersion == "" {
		m.MinFrameworkVersion = DefaultMinFrameworkVersion
	}
	if m.Dependencies == nil {
		m.Dependencies = []string{}
	}
	if m.RequiredPermissions == nil {
		m.RequiredPermissions = []string{}
	}
}

// Validate checks that all required fields are present.
func (m *Metadata) Validate() error {
	if m.ID == "" {
		return ErrMissingID
	}
	if m.Name == "" {
		return ErrMissingName
	}
	if m.Version == "" {
		return ErrMissingVersion
	}
	if m.Vendor == "" {
		return ErrMissingVendor
	}
	if _, err := ParseVersion(m.Version); err != nil {
		return fmt.Errorf("%w: %v", ErrMetadataInvalid, err)
	}
	if _, err := ParseVersion(m.MinFrameworkVersion); err != nil {
		return fmt.Errorf("%w: minFrameworkVersion: %v", ErrMetadataInvalid, err)
	}
	return nil
}

// DependsOn returns true if the plugin declares a dependency on id.
func (m *Metadata) DependsOn(id string) bool {
	for _, dep := range m.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// CompatibleWith reports whether the running framework version
// satisfies the plugin's minimum framework version.
func (m *Metadata) CompatibleWith(framework Version) bool {
	min, err := ParseVersion(m.MinFrameworkVersion)
	if err != nil {
		return false
	}
	return framework.AtLeast(min)
}

// String returns a string representation of the metadata.
func (m *Metadata) String() string {
	return fmt.Sprintf("%s v%s", m.ID, m.Version)
}

// Clone creates a deep copy of the metadata.
func (m *Metadata) Clone() *Metadata {
	clone := *m
	if m.Dependencies != nil {
		clone.Dependencies = make([]string, len(m.Dependencies))
		copy(clone.Dependencies, m.Dependencies)
	}
	if m.RequiredPermissions != nil {
		clone.RequiredPermissions = make([]string, len(m.RequiredPermissions))
		copy(clone.RequiredPermissions, m.RequiredPermissions)
	}
	return &clone
}
