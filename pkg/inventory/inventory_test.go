package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bmcdonald3/smd-inventory/pkg/smd"
)

// fakeSMD answers Fetch from canned JSON bodies keyed by endpoint.
type fakeSMD struct {
	bodies  map[string]string
	filters []smd.Filter
	err     error
}

func (f *fakeSMD) Fetch(_ context.Context, endpoint string, filter smd.Filter) (any, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.bodies[endpoint]
	if !ok {
		return nil, fmt.Errorf("unexpected endpoint %s", endpoint)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func newFake(components, memberships string) *fakeSMD {
	return &fakeSMD{bodies: map[string]string{
		smd.ComponentsEndpoint:  components,
		smd.MembershipsEndpoint: memberships,
	}}
}

// call is one Target operation, recorded in order.
type call struct {
	Op    string
	Name  string
	Group string
	Key   string
	Value any
}

type recordingTarget struct {
	calls    []call
	rejected map[string]bool
}

func (r *recordingTarget) AddGroup(name string) error {
	if r.rejected[name] {
		return errors.New("invalid group name")
	}
	r.calls = append(r.calls, call{Op: "group", Name: name})
	return nil
}

func (r *recordingTarget) AddHost(host, group string) error {
	r.calls = append(r.calls, call{Op: "host", Name: host, Group: group})
	return nil
}

func (r *recordingTarget) SetVariable(host, key string, value any) error {
	r.calls = append(r.calls, call{Op: "var", Name: host, Key: key, Value: value})
	return nil
}

func TestBuildEndToEnd(t *testing.T) {
	fake := newFake(
		`{"Components":[{"ID":"x1","NID":7}]}`,
		`[{"id":"x1","partitionName":"p0","groupLabels":["g1"]}]`,
	)
	filter := smd.Filter{"role": "Compute"}

	inv, err := Build(context.Background(), fake, filter)
	require.NoError(t, err)
	require.Equal(t, []smd.Filter{filter, filter}, fake.filters)

	target := &recordingTarget{}
	require.NoError(t, Emit(target, inv, 3))

	want := Record{
		"ID":            "x1",
		"NID":           json.Number("7"),
		"partitionName": "p0",
		"groupLabels":   []any{"g1"},
	}
	require.Equal(t, []call{
		{Op: "group", Name: "prt_p0"},
		{Op: "group", Name: "grp_g1"},
		{Op: "host", Name: "nid007", Group: "prt_p0"},
		{Op: "host", Name: "nid007", Group: "grp_g1"},
		{Op: "var", Name: "nid007", Key: HostVariable, Value: want},
	}, target.calls)

	out, err := json.Marshal(target.calls[4].Value)
	require.NoError(t, err)
	require.JSONEq(t, `{"ID":"x1","NID":7,"partitionName":"p0","groupLabels":["g1"]}`, string(out))
}

func TestBuildMergePrecedence(t *testing.T) {
	fake := newFake(
		`{"Components":[{"ID":"x1","NID":1,"State":"Ready","partitionName":"stale","Role":"Compute"}]}`,
		`[{"id":"x1","partitionName":"p1","groupLabels":[],"extra":true}]`,
	)
	inv, err := Build(context.Background(), fake, nil)
	require.NoError(t, err)

	require.Equal(t, Record{
		"ID":            "x1",
		"NID":           json.Number("1"),
		"State":         "Ready",
		"Role":          "Compute",
		"partitionName": "p1",
		"groupLabels":   []any{},
		"extra":         true,
	}, inv.Components["x1"])
}

func TestBuildDerivedSets(t *testing.T) {
	fake := newFake(
		`{"Components":[
			{"ID":"x1","NID":1},{"ID":"x2","NID":2},{"ID":"x3","NID":3},{"ID":"x4","NID":4}
		]}`,
		`[
			{"id":"x1","partitionName":"p0","groupLabels":["compute","gpu"]},
			{"id":"x2","partitionName":"p0","groupLabels":["compute"]},
			{"id":"x3","partitionName":"p1","groupLabels":[]},
			{"id":"x4","partitionName":"","groupLabels":null}
		]`,
	)
	inv, err := Build(context.Background(), fake, nil)
	require.NoError(t, err)

	require.Equal(t, []string{"p0", "p1"}, inv.Partitions.Sorted())
	require.Equal(t, []string{"compute", "gpu"}, inv.Groups.Sorted())
	require.Equal(t, []string{"x1", "x2", "x3", "x4"}, inv.IDs())
}

func TestBuildComponentWithoutMembership(t *testing.T) {
	fake := newFake(`{"Components":[{"ID":"x1","NID":1}]}`, `[]`)
	inv, err := Build(context.Background(), fake, nil)
	require.NoError(t, err)
	require.Empty(t, inv.Partitions)

	target := &recordingTarget{}
	require.NoError(t, Emit(target, inv, 6))
	require.Equal(t, []call{
		{Op: "host", Name: "nid000001"},
		{Op: "var", Name: "nid000001", Key: HostVariable, Value: Record{"ID": "x1", "NID": json.Number("1")}},
	}, target.calls)
}

func TestEmitEmptyPartitionAndLabels(t *testing.T) {
	fake := newFake(
		`{"Components":[{"ID":"x1","NID":12}]}`,
		`[{"id":"x1","partitionName":"","groupLabels":[]}]`,
	)
	inv, err := Build(context.Background(), fake, nil)
	require.NoError(t, err)
	require.Empty(t, inv.Partitions)
	require.Empty(t, inv.Groups)

	target := &recordingTarget{}
	require.NoError(t, Emit(target, inv, 4))
	require.Len(t, target.calls, 2)
	require.Equal(t, call{Op: "host", Name: "nid0012"}, target.calls[0])
	require.Equal(t, "var", target.calls[1].Op)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name        string
		components  string
		memberships string
		check       func(t *testing.T, err error)
	}{
		{
			name:        "missing Components key",
			components:  `{"Items":[]}`,
			memberships: `[]`,
			check: func(t *testing.T, err error) {
				var ferr *FormatError
				require.ErrorAs(t, err, &ferr)
				require.Equal(t, FieldComponents, ferr.Field)
			},
		},
		{
			name:        "components not an object",
			components:  `[]`,
			memberships: `[]`,
			check: func(t *testing.T, err error) {
				var ferr *FormatError
				require.ErrorAs(t, err, &ferr)
			},
		},
		{
			name:        "component without ID",
			components:  `{"Components":[{"NID":1}]}`,
			memberships: `[]`,
			check: func(t *testing.T, err error) {
				var ferr *FormatError
				require.ErrorAs(t, err, &ferr)
				require.Equal(t, FieldID, ferr.Field)
			},
		},
		{
			name:        "duplicate component ID",
			components:  `{"Components":[{"ID":"x1","NID":1},{"ID":"x1","NID":2}]}`,
			memberships: `[]`,
			check: func(t *testing.T, err error) {
				var ferr *FormatError
				require.ErrorAs(t, err, &ferr)
				require.Contains(t, ferr.Msg, "duplicate")
			},
		},
		{
			name:        "membership for unknown component",
			components:  `{"Components":[{"ID":"x1","NID":1}]}`,
			memberships: `[{"id":"x1","partitionName":"","groupLabels":[]},{"id":"x9","partitionName":"","groupLabels":[]}]`,
			check: func(t *testing.T, err error) {
				var lerr *LookupError
				require.ErrorAs(t, err, &lerr)
				require.Equal(t, "x9", lerr.ID)
			},
		},
		{
			name:        "membership missing partitionName",
			components:  `{"Components":[{"ID":"x1","NID":1}]}`,
			memberships: `[{"id":"x1","groupLabels":[]}]`,
			check: func(t *testing.T, err error) {
				var ferr *FormatError
				require.ErrorAs(t, err, &ferr)
				require.Equal(t, FieldPartitionName, ferr.Field)
			},
		},
		{
			name:        "membership missing groupLabels",
			components:  `{"Components":[{"ID":"x1","NID":1}]}`,
			memberships: `[{"id":"x1","partitionName":"p0"}]`,
			check: func(t *testing.T, err error) {
				var ferr *FormatError
				require.ErrorAs(t, err, &ferr)
				require.Equal(t, FieldGroupLabels, ferr.Field)
			},
		},
		{
			name:        "memberships not a list",
			components:  `{"Components":[]}`,
			memberships: `{"id":"x1"}`,
			check: func(t *testing.T, err error) {
				var ferr *FormatError
				require.ErrorAs(t, err, &ferr)
				require.Equal(t, smd.MembershipsEndpoint, ferr.Endpoint)
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inv, err := Build(context.Background(), newFake(tc.components, tc.memberships), nil)
			require.Nil(t, inv)
			tc.check(t, err)
		})
	}
}

func TestBuildPropagatesQueryError(t *testing.T) {
	qerr := &smd.QueryError{Endpoint: smd.ComponentsEndpoint, Status: 401, Reason: "Unauthorized"}
	_, err := Build(context.Background(), &fakeSMD{err: qerr}, nil)
	require.ErrorIs(t, err, qerr)
}

func TestZeroPad(t *testing.T) {
	tests := []struct {
		n     uint64
		width int
		want  string
	}{
		{7, 6, "000007"},
		{0, 3, "000"},
		{123456, 6, "123456"},
		{1234567, 6, "1234567"},
		{42, 1, "42"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, ZeroPad(tc.n, tc.width), "ZeroPad(%d, %d)", tc.n, tc.width)
	}
}

func TestNodeName(t *testing.T) {
	name, err := NodeName(Record{"ID": "x1", "NID": json.Number("42")}, 6)
	require.NoError(t, err)
	require.Equal(t, "nid000042", name)

	name, err = NodeName(Record{"ID": "x1", "NID": float64(3)}, 2)
	require.NoError(t, err)
	require.Equal(t, "nid03", name)

	_, err = NodeName(Record{"ID": "x1", "NID": json.Number("1000")}, 3)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "nid_length", cerr.Option)

	for _, nid := range []any{nil, "seven", json.Number("-1"), json.Number("1.5"), float64(-2), 2.5} {
		rec := Record{"ID": "x1"}
		if nid != nil {
			rec["NID"] = nid
		}
		_, err := NodeName(rec, 6)
		var ferr *FormatError
		require.ErrorAs(t, err, &ferr, "NID %v", nid)
		require.Equal(t, FieldNID, ferr.Field)
	}
}

func TestEmitGroupRejected(t *testing.T) {
	inv := &Inventory{
		Components: map[string]Record{},
		Partitions: Set{},
		Groups:     Set{"bad label": {}},
	}
	target := &recordingTarget{rejected: map[string]bool{"grp_bad label": true}}

	err := Emit(target, inv, 6)
	var gerr *GroupError
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, "grp_bad label", gerr.Group)
}

func TestEmitInvalidWidth(t *testing.T) {
	err := Emit(&recordingTarget{}, &Inventory{}, 0)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestSetJSON(t *testing.T) {
	s := Set{}
	s.Add("b", "", "a", "b")
	out, err := json.Marshal(s)
	require.NoError(t, err)
	require.JSONEq(t, `["a","b"]`, string(out))

	var back Set
	require.NoError(t, json.Unmarshal(out, &back))
	require.True(t, back.Has("a"))
	require.True(t, back.Has("b"))
	require.Len(t, back, 2)
}
