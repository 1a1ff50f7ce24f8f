package artifact

import (
	"fmt"
	"strings"
)

// Attribute is a name/value pair qualifying an artifact. An empty Value
// means the value is resolved from the runtime environment at install time.
type Attribute struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value,omitempty"`
}

// Unresolved creates an attribute whose value must be obtained from the
// install script.
func Unresolved(name string) Attribute {
	return Attribute{Name: name}
}

// Resolved reports whether the attribute carries a value.
func (a Attribute) Resolved() bool {
	return a.Value != ""
}

// String returns name=value, or name=<undefined> for unresolved attributes.
func (a Attribute) String() string {
	if !a.Resolved() {
		return a.Name + "=<undefined>"
	}
	return fmt.Sprintf("%s=%s", a.Name, a.Value)
}

// Attributes is an ordered list of attributes. Order is significant for
// identity: the same pairs in a different order form a different key.
type Attributes []Attribute

// Clone returns a copy of the list.
func (as Attributes) Clone() Attributes {
	if as == nil {
		return nil
	}
	out := make(Attributes, len(as))
	copy(out, as)
	return out
}

// HasUnresolved reports whether any attribute lacks a value.
func (as Attributes) HasUnresolved() bool {
	for _, a := range as {
		if !a.Resolved() {
			return true
		}
	}
	return false
}

// Unresolved returns the names of attributes that lack a value.
func (as Attributes) Unresolved() []string {
	var names []string
	for _, a := range as {
		if !a.Resolved() {
			names = append(names, a.Name)
		}
	}
	return names
}

// Cleared returns a copy with every value removed.
func (as Attributes) Cleared() Attributes {
	out := make(Attributes, len(as))
	for i, a := range as {
		out[i] = Unresolved(a.Name)
	}
	return out
}

// Normalized returns a copy with every resolved value normalised.
func (as Attributes) Normalized() Attributes {
	out := make(Attributes, len(as))
	for i, a := range as {
		out[i] = Attribute{Name: a.Name, Value: Normalize(a.Value)}
	}
	return out
}

// Equal reports whether both lists hold the same pairs in the same order.
func (as Attributes) Equal(other Attributes) bool {
	if len(as) != len(other) {
		return false
	}
	for i := range as {
		if as[i] != other[i] {
			return false
		}
	}
	return true
}

// Values returns the resolved values in order.
func (as Attributes) Values() []string {
	values := make([]string, 0, len(as))
	for _, a := range as {
		if a.Resolved() {
			values = append(values, a.Value)
		}
	}
	return values
}

// String returns the attributes as [name=value, ...].
func (as Attributes) String() string {
	parts := make([]string, len(as))
	for i, a := range as {
		parts[i] = a.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ParseAttributes parses "name=value" or bare "name" entries.
func ParseAttributes(specs []string) (Attributes, error) {
	out := make(Attributes, 0, len(specs))
	for _, spec := range specs {
		name, value, _ := strings.Cut(spec, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid attribute %q: empty name", spec)
		}
		out = append(out, Attribute{Name: name, Value: strings.TrimSpace(value)})
	}
	return out, nil
}
