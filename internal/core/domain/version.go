package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SupportedOdooVersions lists the application versions a stack may declare.
var SupportedOdooVersions = []Version{
	"11.0", "12.0", "13.0", "14.0", "15.0", "16.0", "17.0", "18.0", "19.0",
}

// Version is an application release such as "17.0".
//
// Stack files written by hand often carry the version as a bare number
// (version: 17), so decoding accepts numbers and strings and normalizes
// both to the "NN.0" form.
type Version string

// NormalizeVersion turns "17", "17.0" and " 17.0 " into "17.0".
func NormalizeVersion(s string) Version {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return Version(s)
}

// IsSupported reports whether v is in SupportedOdooVersions.
func (v Version) IsSupported() bool {
	for _, s := range SupportedOdooVersions {
		if v == s {
			return true
		}
	}
	return false
}

// Major returns the integer part of the version, or 0 if it cannot be parsed.
func (v Version) Major() int {
	head, _, _ := strings.Cut(string(v), ".")
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return n
}

func (v Version) String() string {
	return string(v)
}

// UnmarshalJSON accepts both 17.0 and "17.0".
func (v *Version) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = NormalizeVersion(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("version must be a string or number: %w", err)
	}
	*v = NormalizeVersion(n.String())
	return nil
}

// UnmarshalYAML accepts any scalar.
func (v *Version) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: version must be a scalar", node.Line)
	}
	*v = NormalizeVersion(node.Value)
	return nil
}
