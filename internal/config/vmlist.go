package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// VMList is a list of guest identifiers that remembers whether its key was
// present in the document. An explicit empty list is Set but has no IDs.
type VMList struct {
	IDs []string
	Set bool
}

// NewVMList returns a Set list holding ids.
func NewVMList(ids ...string) VMList {
	return VMList{IDs: append([]string{}, ids...), Set: true}
}

// UnmarshalYAML accepts a sequence of scalars (numbers or strings).
func (l *VMList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: exclude_vms must be a list", value.Line)
	}

	ids := make([]string, 0, len(value.Content))
	for _, item := range value.Content {
		if item.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: exclude_vms entries must be scalars", item.Line)
		}
		id := strings.TrimSpace(item.Value)
		if id == "" {
			return fmt.Errorf("line %d: exclude_vms entries must not be empty", item.Line)
		}
		ids = append(ids, id)
	}

	l.IDs = ids
	l.Set = true
	return nil
}

// MarshalJSON renders the IDs, or null when unset.
func (l VMList) MarshalJSON() ([]byte, error) {
	if !l.Set {
		return []byte("null"), nil
	}
	return json.Marshal(l.IDs)
}

// Join returns the IDs as vzdump expects them for --exclude.
func (l VMList) Join() string {
	return strings.Join(l.IDs, ",")
}
