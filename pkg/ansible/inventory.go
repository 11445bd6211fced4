// Package ansible holds an in-memory Ansible inventory and renders it in the
// dynamic inventory script format (`--list` / `--host`).
package ansible

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/zhangyunhao116/skipmap"
)

const (
	AllGroup       = "all"
	UngroupedGroup = "ungrouped"
)

var (
	ErrEmptyName    = errors.New("name is empty")
	ErrUnknownGroup = errors.New("unknown group")
	ErrUnknownHost  = errors.New("unknown host")
)

var invalidGroupChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

type orderedSet = skipmap.FuncMap[string, struct{}]

func newOrderedSet() *orderedSet {
	return skipmap.NewFunc[string, struct{}](func(a, b string) bool { return a < b })
}

type group struct {
	hosts *orderedSet
}

type host struct {
	vars *skipmap.FuncMap[string, any]
}

// Inventory is a set of hosts and groups with per-host variables. It is safe
// for concurrent readers once populated.
type Inventory struct {
	// TransformInvalidGroupChars rewrites characters Ansible does not accept
	// in group names to "_" instead of only warning about them.
	TransformInvalidGroupChars bool

	groups *skipmap.FuncMap[string, *group]
	hosts  *skipmap.FuncMap[string, *host]
	log    *slog.Logger
}

// New returns an inventory holding the implicit "all" and "ungrouped" groups.
func New(log *slog.Logger) *Inventory {
	if log == nil {
		log = slog.Default()
	}
	less := func(a, b string) bool { return a < b }
	inv := &Inventory{
		groups: skipmap.NewFunc[string, *group](less),
		hosts:  skipmap.NewFunc[string, *host](less),
		log:    log,
	}
	inv.groups.Store(AllGroup, &group{hosts: newOrderedSet()})
	inv.groups.Store(UngroupedGroup, &group{hosts: newOrderedSet()})
	return inv
}

// SafeGroupName returns name with every character Ansible rejects replaced by "_".
func SafeGroupName(name string) string {
	return invalidGroupChars.ReplaceAllString(name, "_")
}

func (inv *Inventory) groupName(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return "", fmt.Errorf("group name %q contains whitespace", name)
	}
	if !invalidGroupChars.MatchString(name) {
		return name, nil
	}
	if inv.TransformInvalidGroupChars {
		safe := SafeGroupName(name)
		inv.log.Debug("replacing invalid characters in group name", "group", name, "safe", safe)
		return safe, nil
	}
	inv.log.Warn("invalid characters were found in group name, but not replaced", "group", name)
	return name, nil
}

// AddGroup creates a group if it does not exist yet.
func (inv *Inventory) AddGroup(name string) error {
	name, err := inv.groupName(name)
	if err != nil {
		return err
	}
	inv.groups.LoadOrStore(name, &group{hosts: newOrderedSet()})
	return nil
}

// AddHost creates host if needed and adds it to group. An empty group only
// registers the host; it shows up under "ungrouped" unless another group holds it.
func (inv *Inventory) AddHost(name, groupName string) error {
	if name == "" {
		return ErrEmptyName
	}
	var g *group
	if groupName != "" {
		var ok bool
		g, ok = inv.groups.Load(groupName)
		if !ok && inv.TransformInvalidGroupChars {
			g, ok = inv.groups.Load(SafeGroupName(groupName))
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownGroup, groupName)
		}
	}

	inv.hosts.LoadOrStore(name, &host{vars: skipmap.NewFunc[string, any](func(a, b string) bool { return a < b })})
	if g != nil {
		g.hosts.Store(name, struct{}{})
	}
	return nil
}

// SetVariable sets a host variable.
func (inv *Inventory) SetVariable(hostName, key string, value any) error {
	h, ok := inv.hosts.Load(hostName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHost, hostName)
	}
	h.vars.Store(key, value)
	return nil
}

// Hosts returns host names in sorted order.
func (inv *Inventory) Hosts() []string {
	var names []string
	inv.hosts.Range(func(name string, _ *host) bool {
		names = append(names, name)
		return true
	})
	return names
}

// Groups returns group names in sorted order, including "all" and "ungrouped".
func (inv *Inventory) Groups() []string {
	var names []string
	inv.groups.Range(func(name string, _ *group) bool {
		names = append(names, name)
		return true
	})
	return names
}

// GroupHosts returns the hosts placed directly in group, in sorted order.
// Hosts in no explicit group are reported under "ungrouped".
func (inv *Inventory) GroupHosts(name string) ([]string, error) {
	if name == UngroupedGroup {
		return inv.ungrouped(), nil
	}
	g, ok := inv.groups.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, name)
	}
	var hosts []string
	g.hosts.Range(func(h string, _ struct{}) bool {
		hosts = append(hosts, h)
		return true
	})
	return hosts, nil
}

// HostVars returns a copy of the variables of one host.
func (inv *Inventory) HostVars(name string) (map[string]any, error) {
	h, ok := inv.hosts.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHost, name)
	}
	vars := make(map[string]any)
	h.vars.Range(func(k string, v any) bool {
		vars[k] = v
		return true
	})
	return vars, nil
}

func (inv *Inventory) ungrouped() []string {
	grouped := make(map[string]bool)
	inv.groups.Range(func(name string, g *group) bool {
		if name == AllGroup || name == UngroupedGroup {
			return true
		}
		g.hosts.Range(func(h string, _ struct{}) bool {
			grouped[h] = true
			return true
		})
		return true
	})

	var hosts []string
	inv.hosts.Range(func(name string, _ *host) bool {
		if !grouped[name] {
			hosts = append(hosts, name)
		}
		return true
	})
	return hosts
}
