// Package workspace implements the shared campaign workspace: a namespaced
// JSON artifact store scoped to one campaign run. Every stage receives the
// workspace as an explicit handle; there is no ambient singleton.
//
// Two backends exist: a directory-per-namespace store with atomic
// write-temp-then-rename semantics, and a SQLite-backed store for
// single-file deployments. Both guarantee that a concurrent reader never
// observes a partially written artifact.
package workspace

import (
	"errors"
	"fmt"
)

// Fixed namespaces. Artifact names are scoped per namespace.
const (
	NamespaceData     = "data"
	NamespaceContent  = "content"
	NamespaceDesign   = "design"
	NamespaceHandoffs = "handoffs"
	NamespaceDocs     = "docs"
	NamespaceReports  = "reports"
)

// ErrNotFound is returned when a requested artifact does not exist.
// It is a normal result the caller must handle; it never aborts a campaign.
var ErrNotFound = errors.New("workspace: artifact not found")

// IOError wraps an underlying storage failure. Storage failures are fatal
// and abort the campaign.
type IOError struct {
	Op        string
	Namespace string
	Name      string
	Err       error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("workspace: %s %s/%s: %v", e.Op, e.Namespace, e.Name, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Store is the workspace contract every stage and the handoff broker
// depend on.
type Store interface {
	// ReadJSON decodes the named artifact into out. Returns ErrNotFound
	// when the artifact does not exist.
	ReadJSON(namespace, name string, out any) error

	// WriteJSON persists value atomically under namespace/name.
	WriteJSON(namespace, name string, value any) error

	// ListNamespace returns artifact names in the namespace, sorted.
	ListNamespace(namespace string) ([]string, error)
}

// Namespaces returns every namespace the workspace manages.
func Namespaces() []string {
	return []string{
		NamespaceData,
		NamespaceContent,
		NamespaceDesign,
		NamespaceHandoffs,
		NamespaceDocs,
		NamespaceReports,
	}
}

func validNamespace(namespace string) bool {
	for _, ns := range Namespaces() {
		if ns == namespace {
			return true
		}
	}
	return false
}
