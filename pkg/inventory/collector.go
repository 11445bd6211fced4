// pkg/inventory/collector.go

package inventory

import (
	"context"
	"fmt"

	"github.com/bmcdonald3/smd-inventory/pkg/smd"
)

// Fetcher is the part of smd.Client the builder needs.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, filter smd.Filter) (any, error)
}

// Build queries components and memberships with the same filter and merges
// them into one record per component. Membership fields overwrite component
// fields on collision; the membership id itself is not copied.
func Build(ctx context.Context, client Fetcher, filter smd.Filter) (*Inventory, error) {
	// A. COMPONENTS
	components, err := Components(ctx, client, filter)
	if err != nil {
		return nil, err
	}

	inv := &Inventory{
		Components: make(map[string]Record, len(components)),
		Partitions: make(Set),
		Groups:     make(Set),
	}
	for i, rec := range components {
		id, ok := rec[FieldID].(string)
		if !ok || id == "" {
			return nil, &FormatError{
				Endpoint: smd.ComponentsEndpoint,
				Field:    FieldID,
				Msg:      fmt.Sprintf("missing or not a string in component %d", i),
			}
		}
		if _, dup := inv.Components[id]; dup {
			return nil, &FormatError{
				Endpoint: smd.ComponentsEndpoint,
				Field:    FieldID,
				Msg:      fmt.Sprintf("duplicate component %q", id),
			}
		}
		inv.Components[id] = rec
	}

	// B. MEMBERSHIPS
	memberships, err := Memberships(ctx, client, filter)
	if err != nil {
		return nil, err
	}

	// C. MERGE
	for _, m := range memberships {
		rec, ok := inv.Components[m.ID]
		if !ok {
			return nil, &LookupError{ID: m.ID}
		}
		for k, v := range m.Fields {
			rec[k] = v
		}
		inv.Partitions.Add(m.PartitionName)
		inv.Groups.Add(m.GroupLabels...)
	}

	return inv, nil
}

// Components runs the State/Components query alone and returns the raw
// component records in response order.
func Components(ctx context.Context, client Fetcher, filter smd.Filter) ([]Record, error) {
	resp, err := client.Fetch(ctx, smd.ComponentsEndpoint, filter)
	if err != nil {
		return nil, err
	}

	body, ok := resp.(map[string]any)
	if !ok {
		return nil, &FormatError{Endpoint: smd.ComponentsEndpoint, Msg: "expected a JSON object"}
	}
	raw, ok := body[FieldComponents]
	if !ok {
		return nil, &FormatError{Endpoint: smd.ComponentsEndpoint, Field: FieldComponents, Msg: "is missing"}
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, &FormatError{Endpoint: smd.ComponentsEndpoint, Field: FieldComponents, Msg: "is not a list"}
	}

	records := make([]Record, 0, len(list))
	for i, item := range list {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, &FormatError{
				Endpoint: smd.ComponentsEndpoint,
				Msg:      fmt.Sprintf("component %d is not an object", i),
			}
		}
		records = append(records, Record(fields))
	}
	return records, nil
}

// Memberships runs the memberships query and validates each entry.
func Memberships(ctx context.Context, client Fetcher, filter smd.Filter) ([]Membership, error) {
	resp, err := client.Fetch(ctx, smd.MembershipsEndpoint, filter)
	if err != nil {
		return nil, err
	}

	list, ok := resp.([]any)
	if !ok {
		return nil, &FormatError{Endpoint: smd.MembershipsEndpoint, Msg: "expected a JSON list"}
	}

	memberships := make([]Membership, 0, len(list))
	for i, item := range list {
		m, ferr := parseMembership(item)
		if ferr != nil {
			ferr.Msg = fmt.Sprintf("%s in membership %d", ferr.Msg, i)
			return nil, ferr
		}
		memberships = append(memberships, m)
	}
	return memberships, nil
}

func parseMembership(item any) (Membership, *FormatError) {
	fields, ok := item.(map[string]any)
	if !ok {
		return Membership{}, &FormatError{Endpoint: smd.MembershipsEndpoint, Msg: "not an object"}
	}
	missing := func(field, msg string) *FormatError {
		return &FormatError{Endpoint: smd.MembershipsEndpoint, Field: field, Msg: msg}
	}

	id, ok := fields[FieldMembershipID].(string)
	if !ok {
		return Membership{}, missing(FieldMembershipID, "is missing or not a string")
	}
	partition, ok := fields[FieldPartitionName].(string)
	if !ok {
		return Membership{}, missing(FieldPartitionName, "is missing or not a string")
	}
	rawLabels, ok := fields[FieldGroupLabels]
	if !ok {
		return Membership{}, missing(FieldGroupLabels, "is missing")
	}
	labelList, ok := rawLabels.([]any)
	if !ok && rawLabels != nil {
		return Membership{}, missing(FieldGroupLabels, "is not a list")
	}
	labels := make([]string, 0, len(labelList))
	for _, l := range labelList {
		s, ok := l.(string)
		if !ok {
			return Membership{}, missing(FieldGroupLabels, "contains a non-string label")
		}
		labels = append(labels, s)
	}

	merged := make(map[string]any, len(fields)-1)
	for k, v := range fields {
		if k != FieldMembershipID {
			merged[k] = v
		}
	}

	return Membership{
		ID:            id,
		PartitionName: partition,
		GroupLabels:   labels,
		Fields:        merged,
	}, nil
}
