package vfs

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Export materializes the store onto fs. It is meant for session end (or
// for handing a project to tooling outside a session); it never runs while
// edits are being applied.
func Export(s *Store, fs billy.Filesystem) error {
	return s.Walk(func(n Node) error {
		if n.Path == Root {
			return nil
		}
		rel := strings.TrimPrefix(n.Path, "/")
		if n.IsDir() {
			if err := fs.MkdirAll(rel, 0o755); err != nil {
				return fmt.Errorf("export %s: %w", n.Path, err)
			}
			return nil
		}
		if err := util.WriteFile(fs, rel, []byte(n.Content), 0o644); err != nil {
			return fmt.Errorf("export %s: %w", n.Path, err)
		}
		return nil
	})
}

// Import builds a store from the tree rooted at root on fs. Entries are
// added in lexical walk order. Hidden entries (leading dot) are skipped.
func Import(fs billy.Filesystem, root string) (*Store, error) {
	s := New()
	err := util.Walk(fs, root, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, name)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		p := path.Join("/", filepath.ToSlash(rel))
		if info.IsDir() {
			return s.Mkdir(p)
		}
		data, readErr := util.ReadFile(fs, name)
		if readErr != nil {
			return fmt.Errorf("import %s: %w", name, readErr)
		}
		return s.Create(p, string(data))
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
