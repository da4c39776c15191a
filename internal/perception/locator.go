package perception

import (
	"errors"
	"strings"
)

// Reject codes surfaced when identity resolution fails. These are explicit
// rejects: the manager records the code and falls back rather than failing
// the tool call.
const (
	RejectIdentityConflict = "WINDOW_IDENTITY_CONFLICT"
	RejectKindConflict     = "WINDOW_KIND_CONFLICT"
)

// ErrIdentityConflict is returned when an identity is already bound to a
// different window id.
var ErrIdentityConflict = errors.New(RejectIdentityConflict)

// ErrKindConflict is returned when a lookup expects a different kind than the
// identity is bound to.
var ErrKindConflict = errors.New(RejectKindConflict)

// Identity is the stable key of a window.
type Identity struct {
	Kind WindowKind
	Key  string
}

// ExplorerIdentity builds the identity of a directory window.
func ExplorerIdentity(directory string) Identity {
	return Identity{Kind: KindExplorer, Key: normalizePath(directory)}
}

// SheetIdentity builds the identity of a sheet window.
func SheetIdentity(filePath, sheetName string) Identity {
	return Identity{
		Kind: KindSheet,
		Key:  normalizePath(filePath) + "::" + strings.ToLower(strings.TrimSpace(sheetName)),
	}
}

type binding struct {
	kind WindowKind
	id   string
}

// Locator maintains the bidirectional identity <-> window id map.
type Locator struct {
	byKey map[string]binding
	byID  map[string]string
}

// NewLocator creates an empty locator.
func NewLocator() *Locator {
	return &Locator{
		byKey: make(map[string]binding),
		byID:  make(map[string]string),
	}
}

// Register binds an identity to a window id. Re-registering the same pair is
// a no-op; binding the identity to a different id fails.
func (l *Locator) Register(id string, identity Identity) error {
	if existing, ok := l.byKey[identity.Key]; ok {
		if existing.id == id && existing.kind == identity.Kind {
			return nil
		}
		return ErrIdentityConflict
	}
	l.byKey[identity.Key] = binding{kind: identity.Kind, id: id}
	l.byID[id] = identity.Key
	return nil
}

// Lookup resolves an identity to its window id. A bound key of a different
// kind is a kind conflict; an unbound key resolves to the empty id.
func (l *Locator) Lookup(identity Identity) (string, error) {
	b, ok := l.byKey[identity.Key]
	if !ok {
		return "", nil
	}
	if b.kind != identity.Kind {
		return "", ErrKindConflict
	}
	return b.id, nil
}

// Unregister removes a window id and its identity binding.
func (l *Locator) Unregister(id string) {
	if key, ok := l.byID[id]; ok {
		delete(l.byKey, key)
		delete(l.byID, id)
	}
}
