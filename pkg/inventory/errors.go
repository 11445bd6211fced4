package inventory

import "fmt"

// ConfigError reports a missing or unusable configuration option.
type ConfigError struct {
	Option string
	Msg    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Option, e.Msg)
}

// FormatError reports an SMD response that lacks an expected field or shape.
type FormatError struct {
	Endpoint string
	Field    string
	Msg      string
}

func (e *FormatError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("unexpected %s response: %s", e.Endpoint, e.Msg)
	}
	return fmt.Sprintf("unexpected %s response: field %q %s", e.Endpoint, e.Field, e.Msg)
}

// LookupError reports a membership whose id matches no component.
type LookupError struct {
	ID string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("membership references unknown component %q (is filter_by narrower than the memberships query?)", e.ID)
}

// GroupError reports a group name the inventory target refused.
type GroupError struct {
	Group string
	Err   error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("inventory rejected group %q: %v", e.Group, e.Err)
}

func (e *GroupError) Unwrap() error { return e.Err }
