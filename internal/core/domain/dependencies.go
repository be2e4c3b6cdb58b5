package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// StringList
// =============================================================================

// StringList decodes either a sequence of strings or a single space-separated
// string ("git curl" and [git, curl] are equivalent).
type StringList []string

func splitFields(s string) StringList {
	f := strings.Fields(s)
	if len(f) == 0 {
		return nil
	}
	return f
}

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = splitFields(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("expected a string or a list of strings: %w", err)
	}
	*l = list
	return nil
}

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = splitFields(node.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

// =============================================================================
// Dependencies
// =============================================================================

// DependenciesConfig declares packages baked into the custom application image.
type DependenciesConfig struct {
	Apt         StringList          `json:"apt,omitempty" yaml:"apt,omitempty"`
	AptArchived bool                `json:"apt_archived,omitempty" yaml:"apt_archived,omitempty"`
	Python      *PythonDependencies `json:"python,omitempty" yaml:"python,omitempty"`
}

// PythonDependencies lists pip packages inline or through requirement files.
type PythonDependencies struct {
	List  StringList `json:"list,omitempty" yaml:"list,omitempty"`
	Files []string   `json:"files,omitempty" yaml:"files,omitempty"`
}

// RequirementFile is a pip requirement file staged into the build context.
type RequirementFile struct {
	HostPath string
	Hash     string
}

// ContainerPath is where the file lands inside the image.
func (r RequirementFile) ContainerPath() string {
	return "/mnt/pip-requirements/" + r.Hash
}

// ContextPath is the file's location relative to the build context root.
func (r RequirementFile) ContextPath() string {
	return "requirements/" + r.Hash
}

// IsEmpty reports whether no dependency at all is declared.
func (d DependenciesConfig) IsEmpty() bool {
	return len(d.Apt) == 0 && (d.Python == nil || (len(d.Python.List) == 0 && len(d.Python.Files) == 0))
}

// PipPackages returns the inline pip packages.
func (d DependenciesConfig) PipPackages() []string {
	if d.Python == nil {
		return nil
	}
	return d.Python.List
}

// RequirementFiles returns the declared requirement files with their hashes.
func (d DependenciesConfig) RequirementFiles() []RequirementFile {
	if d.Python == nil {
		return nil
	}
	out := make([]RequirementFile, 0, len(d.Python.Files))
	for _, f := range d.Python.Files {
		out = append(out, RequirementFile{HostPath: f, Hash: Hash(f)})
	}
	return out
}

func (d *DependenciesConfig) normalize() error {
	if d.Python == nil {
		return nil
	}
	for i, f := range d.Python.Files {
		field := fmt.Sprintf("dependencies.python.files[%d]", i)
		p, err := ExpandPath(f)
		if err != nil {
			return NewConfigError(field, err.Error(), ErrInvalidDependency)
		}
		if st, err := os.Stat(p); err != nil || !st.Mode().IsRegular() {
			return NewConfigError(field, fmt.Sprintf("requirement file %s does not exist", p), ErrInvalidDependency)
		}
		d.Python.Files[i] = p
	}
	return nil
}

// legacyAptPackages are needed to build the python wheels of 11.0.
var legacyAptPackages = []string{"build-essential", "pkg-config", "python3-dev", "libffi-dev"}

// applyLegacyFixes appends build packages missing from old stacks.
func (d *DependenciesConfig) applyLegacyFixes(v Version) {
	if v != "11.0" {
		return
	}
	have := make(map[string]bool, len(d.Apt))
	for _, p := range d.Apt {
		have[p] = true
	}
	for _, p := range legacyAptPackages {
		if !have[p] {
			d.Apt = append(d.Apt, p)
		}
	}
}
