package inventory

import (
	"encoding/json"
	"sort"
)

// Field names consumed from SMD responses.
const (
	FieldID            = "ID"
	FieldType          = "Type"
	FieldNID           = "NID"
	FieldComponents    = "Components"
	FieldMembershipID  = "id"
	FieldPartitionName = "partitionName"
	FieldGroupLabels   = "groupLabels"
)

// Record is the field mapping of one component as returned by
// State/Components, updated in place with its membership fields.
type Record map[string]any

// ID returns the component's xname.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// Type returns the component type, e.g. "Node".
func (r Record) Type() string {
	t, _ := r[FieldType].(string)
	return t
}

// PartitionName returns the merged partition, or "" when the component is in none.
func (r Record) PartitionName() string {
	p, _ := r[FieldPartitionName].(string)
	return p
}

// GroupLabels returns the merged group labels.
func (r Record) GroupLabels() []string {
	switch labels := r[FieldGroupLabels].(type) {
	case []string:
		return labels
	case []any:
		out := make([]string, 0, len(labels))
		for _, l := range labels {
			if s, ok := l.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Membership is one entry of the memberships endpoint.
type Membership struct {
	ID            string
	PartitionName string
	GroupLabels   []string

	// Fields holds every field of the entry except the id, as merged into the Record.
	Fields map[string]any
}

// Set is an unordered collection of names.
type Set map[string]struct{}

// Add inserts names, skipping empty ones.
func (s Set) Add(names ...string) {
	for _, n := range names {
		if n != "" {
			s[n] = struct{}{}
		}
	}
}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted JSON list.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes a JSON list of names into a fresh set.
func (s *Set) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = make(Set, len(names))
	s.Add(names...)
	return nil
}

// Inventory is the result of one SMD query run.
type Inventory struct {
	Components map[string]Record `json:"components"`
	Partitions Set               `json:"partitions"`
	Groups     Set               `json:"groups"`
}

// IDs returns component ids in lexical order.
func (inv *Inventory) IDs() []string {
	ids := make([]string, 0, len(inv.Components))
	for id := range inv.Components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
