package inventory

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bmcdonald3/smd-inventory/pkg/smd"
)

// HostVariable is the host variable carrying the merged SMD record.
const HostVariable = "smd_component"

// Group name prefixes for partitions and group labels.
const (
	PartitionPrefix = "prt_"
	LabelPrefix     = "grp_"
)

// Target is the host inventory being populated.
type Target interface {
	AddGroup(name string) error
	// AddHost adds host to group; an empty group means the default collection only.
	AddHost(host, group string) error
	SetVariable(host, key string, value any) error
}

// Emit creates partition and label groups, then one host per component,
// named from its NID.
func Emit(target Target, inv *Inventory, nidWidth int) error {
	if nidWidth < 1 {
		return &ConfigError{Option: "nid_length", Msg: fmt.Sprintf("must be a positive integer, got %d", nidWidth)}
	}

	for _, p := range inv.Partitions.Sorted() {
		if err := addGroup(target, PartitionPrefix+p); err != nil {
			return err
		}
	}
	for _, g := range inv.Groups.Sorted() {
		if err := addGroup(target, LabelPrefix+g); err != nil {
			return err
		}
	}

	for _, id := range inv.IDs() {
		rec := inv.Components[id]
		host, err := NodeName(rec, nidWidth)
		if err != nil {
			return err
		}

		group := ""
		if p := rec.PartitionName(); p != "" {
			group = PartitionPrefix + p
		}
		if err := target.AddHost(host, group); err != nil {
			return fmt.Errorf("failed to add host %s for %s: %w", host, id, err)
		}

		for _, label := range rec.GroupLabels() {
			if label == "" {
				continue
			}
			if err := target.AddHost(host, LabelPrefix+label); err != nil {
				return fmt.Errorf("failed to add host %s to group %s: %w", host, LabelPrefix+label, err)
			}
		}

		if err := target.SetVariable(host, HostVariable, rec); err != nil {
			return fmt.Errorf("failed to set %s on %s: %w", HostVariable, host, err)
		}
	}
	return nil
}

func addGroup(target Target, name string) error {
	if err := target.AddGroup(name); err != nil {
		return &GroupError{Group: name, Err: err}
	}
	return nil
}

// NodeName returns "nid" followed by the record's NID zero-padded to width.
func NodeName(rec Record, width int) (string, error) {
	nid, err := NID(rec)
	if err != nil {
		return "", err
	}
	padded := ZeroPad(nid, width)
	if len(padded) > width {
		return "", &ConfigError{
			Option: "nid_length",
			Msg:    fmt.Sprintf("%d is too small for NID %d of %s", width, nid, rec.ID()),
		}
	}
	return "nid" + padded, nil
}

// ZeroPad formats n in decimal, left-padded with zeros to width. It never truncates.
func ZeroPad(n uint64, width int) string {
	s := strconv.FormatUint(n, 10)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// NID extracts the numeric node id of a record. Missing, negative,
// fractional or non-numeric values are a FormatError.
func NID(rec Record) (uint64, error) {
	bad := func(msg string) error {
		return &FormatError{
			Endpoint: smd.ComponentsEndpoint,
			Field:    FieldNID,
			Msg:      fmt.Sprintf("%s for component %q", msg, rec.ID()),
		}
	}

	switch v := rec[FieldNID].(type) {
	case nil:
		return 0, bad("is missing")
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		if err != nil {
			return 0, bad(fmt.Sprintf("is not a non-negative integer (%s)", v))
		}
		return n, nil
	case float64:
		if v < 0 || v != math.Trunc(v) || v >= math.MaxUint64 {
			return 0, bad(fmt.Sprintf("is not a non-negative integer (%v)", v))
		}
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, bad(fmt.Sprintf("is negative (%d)", v))
		}
		return uint64(v), nil
	default:
		return 0, bad(fmt.Sprintf("is not a number (%v)", v))
	}
}
