// Package descriptor defines the declarative package records that drive a
// reconciliation run.
package descriptor

import (
	"fmt"
	"strings"
)

// Manager identifies the class of package manager a package belongs to.
type Manager string

const (
	ManagerOS              Manager = "os-package"
	ManagerLanguageRuntime Manager = "language-runtime-package"
)

// Managers lists every recognised manager in a stable order.
var Managers = []Manager{ManagerOS, ManagerLanguageRuntime}

// ParseManager returns the Manager for s, or an error for unknown values.
func ParseManager(s string) (Manager, error) {
	m := Manager(strings.TrimSpace(s))
	names := make([]string, len(Managers))
	for i, known := range Managers {
		if m == known {
			return m, nil
		}
		names[i] = string(known)
	}
	return "", fmt.Errorf("unknown manager %q (expected one of %s)", s, strings.Join(names, ", "))
}

// State is the desired install state of a package.
type State string

const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
)

// ParseState returns the State for s, or an error for unknown values.
func ParseState(s string) (State, error) {
	switch st := State(strings.ToLower(strings.TrimSpace(s))); st {
	case StatePresent, StateAbsent:
		return st, nil
	default:
		return "", fmt.Errorf("unknown desired state %q (expected %s or %s)", s, StatePresent, StateAbsent)
	}
}

// Key is the identity of a descriptor within one run.
type Key struct {
	Name    string
	Manager Manager
}

func (k Key) String() string {
	return string(k.Manager) + "/" + k.Name
}

// Descriptor is an immutable declaration of a package's desired state.
// The zero value is not valid; build descriptors with New.
type Descriptor struct {
	name       string
	manager    Manager
	desired    State
	constraint *Constraint
}

// New validates its input and returns a Descriptor. An empty constraint
// means any installed version is acceptable.
func New(name string, manager Manager, desired State, constraint string) (Descriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Descriptor{}, &InvalidDescriptorError{Field: "name", Reason: "name is required"}
	}
	if strings.ContainsAny(name, " \t\n") {
		return Descriptor{}, &InvalidDescriptorError{Name: name, Field: "name", Reason: "name must not contain whitespace"}
	}

	m, err := ParseManager(string(manager))
	if err != nil {
		return Descriptor{}, &InvalidDescriptorError{Name: name, Field: "manager", Reason: err.Error()}
	}

	st, err := ParseState(string(desired))
	if err != nil {
		return Descriptor{}, &InvalidDescriptorError{Name: name, Field: "state", Reason: err.Error()}
	}

	d := Descriptor{name: name, manager: m, desired: st}
	if strings.TrimSpace(constraint) != "" {
		c, err := ParseConstraint(constraint)
		if err != nil {
			return Descriptor{}, &InvalidDescriptorError{Name: name, Field: "version", Reason: err.Error()}
		}
		d.constraint = c
	}
	return d, nil
}

// MustNew is New for static descriptor lists; it panics on invalid input.
func MustNew(name string, manager Manager, desired State, constraint string) Descriptor {
	d, err := New(name, manager, desired, constraint)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Descriptor) Name() string { return d.name }
func (d Descriptor) Manager() Manager { return d.manager }
func (d Descriptor) Desired() State { return d.desired }
func (d Descriptor) Key() Key { return Key{Name: d.name, Manager: d.manager} }
func (d Descriptor) HasConstraint() bool { return d.constraint != nil }

// Constraint returns the raw version constraint, or "" when unset.
func (d Descriptor) Constraint() string {
	if d.constraint == nil {
		return ""
	}
	return d.constraint.String()
}

// Satisfies reports whether an installed version meets the constraint.
// Without a constraint every version does.
func (d Descriptor) Satisfies(version string) bool {
	if d.constraint == nil {
		return true
	}
	return d.constraint.Check(version)
}

// Pin returns the exact version the constraint pins, or "".
func (d Descriptor) Pin() string {
	if d.constraint == nil {
		return ""
	}
	return d.constraint.Pin()
}

func (d Descriptor) String() string {
	s := fmt.Sprintf("%s (%s, %s", d.name, d.manager, d.desired)
	if d.constraint != nil {
		s += " " + d.constraint.String()
	}
	return s + ")"
}

// CheckDuplicates rejects lists that declare the same key more than once.
// A key declared both present and absent is a ConflictingDesiredStateError
// and takes precedence over plain duplicates.
func CheckDuplicates(ds []Descriptor) error {
	seen := make(map[Key]Descriptor, len(ds))
	var dup error
	for _, d := range ds {
		first, ok := seen[d.Key()]
		if !ok {
			seen[d.Key()] = d
			continue
		}
		if first.desired != d.desired {
			return &ConflictingDesiredStateError{Key: d.Key(), First: first.desired, Later: d.desired}
		}
		if dup == nil {
			dup = &InvalidDescriptorError{Name: d.name, Field: "name", Reason: fmt.Sprintf("duplicate declaration of %s", d.Key())}
		}
	}
	return dup
}
