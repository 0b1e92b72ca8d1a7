// Package scope decides which containers may see a registration.
package scope

// Node is the view of a container a Scope evaluates against.
type Node interface {
	ID() string
	// ParentNode returns the parent container, or nil for a root.
	ParentNode() Node
}

// Scope is a visibility policy. Both predicates are pure: they are evaluated
// during lookup and never change state.
type Scope interface {
	Name() string
	// AllowsRegistration reports whether an entry with this scope may be
	// registered into target.
	AllowsRegistration(target Node) bool
	// AllowsResolving reports whether an entry registered in owner is visible
	// to a query that started in requester.
	AllowsResolving(owner, requester Node) bool
}

var (
	// Internal entries are visible only to queries starting in the container
	// that registered them, never to its children.
	Internal Scope = internal{}
	// Global entries are visible to the registering container and its whole
	// descendant subtree. It is the default.
	Global Scope = global{}
)

type internal struct{}

func (internal) Name() string                   { return "internal" }
func (internal) AllowsRegistration(_ Node) bool { return true }

func (internal) AllowsResolving(owner, requester Node) bool {
	return owner != nil && requester != nil && owner.ID() == requester.ID()
}

type global struct{}

func (global) Name() string                   { return "global" }
func (global) AllowsRegistration(_ Node) bool { return true }

func (global) AllowsResolving(owner, requester Node) bool {
	return IsAncestorOrSelf(owner, requester)
}

// IsAncestorOrSelf reports whether owner is requester or one of its ancestors.
func IsAncestorOrSelf(owner, requester Node) bool {
	if owner == nil {
		return false
	}
	for n := requester; n != nil; n = n.ParentNode() {
		if n.ID() == owner.ID() {
			return true
		}
	}
	return false
}

// Parse maps a scope name back to a built-in Scope.
func Parse(name string) (Scope, bool) {
	switch name {
	case "internal":
		return Internal, true
	case "global", "":
		return Global, true
	}
	return nil, false
}
