package ansible

import (
	"encoding/json"
	"io"
)

// GroupDoc is one group entry of the --list document.
type GroupDoc struct {
	Hosts    []string `json:"hosts,omitempty"`
	Children []string `json:"children,omitempty"`
}

// Meta carries host variables so Ansible does not call --host once per host.
type Meta struct {
	HostVars map[string]map[string]any `json:"hostvars"`
}

// List renders the document expected from `inventory --list`.
func (inv *Inventory) List() map[string]any {
	doc := make(map[string]any)
	var children []string

	for _, name := range inv.Groups() {
		if name == AllGroup {
			continue
		}
		hosts, _ := inv.GroupHosts(name)
		doc[name] = GroupDoc{Hosts: hosts}
		children = append(children, name)
	}
	doc[AllGroup] = GroupDoc{Children: children}

	meta := Meta{HostVars: make(map[string]map[string]any)}
	for _, h := range inv.Hosts() {
		vars, _ := inv.HostVars(h)
		meta.HostVars[h] = vars
	}
	doc["_meta"] = meta
	return doc
}

// WriteList writes the --list document as indented JSON.
func (inv *Inventory) WriteList(w io.Writer) error {
	return writeJSON(w, inv.List())
}

// WriteHost writes the --host document for one host.
func (inv *Inventory) WriteHost(w io.Writer, name string) error {
	vars, err := inv.HostVars(name)
	if err != nil {
		return err
	}
	return writeJSON(w, vars)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
