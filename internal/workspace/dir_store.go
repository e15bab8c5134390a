package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"campaignsmith/internal/logging"
)

// DirStore keeps one JSON file per artifact under
// {root}/{namespace}/{name}.json.
type DirStore struct {
	root string
}

// NewDirStore creates the namespace directories under root.
func NewDirStore(root string) (*DirStore, error) {
	for _, ns := range Namespaces() {
		if err := os.MkdirAll(filepath.Join(root, ns), 0755); err != nil {
			return nil, &IOError{Op: "init", Namespace: ns, Err: err}
		}
	}
	logging.WorkspaceDebug("dir store initialized at %s", root)
	return &DirStore{root: root}, nil
}

// Root returns the workspace root directory.
func (s *DirStore) Root() string { return s.root }

func (s *DirStore) path(namespace, name string) string {
	return filepath.Join(s.root, namespace, name+".json")
}

// ReadJSON decodes an artifact. ErrNotFound when the file is absent.
func (s *DirStore) ReadJSON(namespace, name string, out any) error {
	if !validNamespace(namespace) {
		return &IOError{Op: "read", Namespace: namespace, Name: name, Err: fmt.Errorf("unknown namespace")}
	}
	data, err := os.ReadFile(s.path(namespace, name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return &IOError{Op: "read", Namespace: namespace, Name: name, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &IOError{Op: "decode", Namespace: namespace, Name: name, Err: err}
	}
	return nil
}

// WriteJSON persists an artifact atomically. The value is marshaled, written
// to a temp file, fsynced, then renamed over the target so a concurrent
// reader sees either the old or the new artifact, never a partial one.
func (s *DirStore) WriteJSON(namespace, name string, value any) error {
	if !validNamespace(namespace) {
		return &IOError{Op: "write", Namespace: namespace, Name: name, Err: fmt.Errorf("unknown namespace")}
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return &IOError{Op: "encode", Namespace: namespace, Name: name, Err: err}
	}
	if err := writeFileAtomic(s.path(namespace, name), data, 0644); err != nil {
		return &IOError{Op: "write", Namespace: namespace, Name: name, Err: err}
	}
	logging.WorkspaceDebug("wrote %s/%s (%d bytes)", namespace, name, len(data))
	return nil
}

// ListNamespace returns artifact names sorted lexically.
func (s *DirStore) ListNamespace(namespace string) ([]string, error) {
	if !validNamespace(namespace) {
		return nil, &IOError{Op: "list", Namespace: namespace, Err: fmt.Errorf("unknown namespace")}
	}
	entries, err := os.ReadDir(filepath.Join(s.root, namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &IOError{Op: "list", Namespace: namespace, Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// writeFileAtomic writes data to a temporary file, fsyncs, then renames it
// over the target path. Prevents corruption from crashes mid-write.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
