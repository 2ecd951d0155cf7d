package vfs

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/zeebo/blake3"

	"github.com/agentic-research/atelier/api"
)

// Kind distinguishes files from directories.
type Kind uint8

const (
	File Kind = iota
	Directory
)

func (k Kind) String() string {
	if k == Directory {
		return api.KindDirectory
	}
	return api.KindFile
}

// ParseKind converts a record kind back into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case api.KindFile:
		return File, nil
	case api.KindDirectory:
		return Directory, nil
	default:
		return File, fmt.Errorf("unknown kind %q", s)
	}
}

// Node is a value copy of a store entry. Mutating it has no effect on the store.
type Node struct {
	Path    string
	Kind    Kind
	Content string // files only
}

func (n Node) IsDir() bool { return n.Kind == Directory }

type entry struct {
	id   uint32 // insertion ordinal, orders siblings
	node Node
}

// Store is the in-memory file tree. Entries live in a flat map keyed by
// normalized path; a directory's children are a derived view kept as a
// roaring bitmap of insertion ordinals, so iterating a bitmap yields the
// children in insertion order and no node holds pointers to another.
//
// Every mutating method takes the write lock for its whole duration, so
// readers never observe a half-applied operation.
type Store struct {
	mu       sync.RWMutex
	nodes    map[string]*entry
	children map[string]*roaring.Bitmap // directory path -> ordinals of immediate children
	idPath   map[uint32]string          // ordinal -> current path
	nextID   uint32
}

// New returns a store holding only the root directory.
func New() *Store {
	s := newEmpty()
	s.insert(Node{Path: Root, Kind: Directory})
	return s
}

func newEmpty() *Store {
	return &Store{
		nodes:    make(map[string]*entry),
		children: make(map[string]*roaring.Bitmap),
		idPath:   make(map[uint32]string),
	}
}

// insert adds n without validation. Must be called with s.mu held.
func (s *Store) insert(n Node) {
	id := s.nextID
	s.nextID++
	s.nodes[n.Path] = &entry{id: id, node: n}
	s.idPath[id] = n.Path
	if n.Kind == Directory {
		if _, ok := s.children[n.Path]; !ok {
			s.children[n.Path] = roaring.New()
		}
	}
	if n.Path == Root {
		return
	}
	parent := Parent(n.Path)
	bm, ok := s.children[parent]
	if !ok {
		bm = roaring.New()
		s.children[parent] = bm
	}
	bm.Add(id)
}

// remove deletes a single entry. Must be called with s.mu held.
func (s *Store) remove(p string) {
	e, ok := s.nodes[p]
	if !ok {
		return
	}
	if bm, ok := s.children[Parent(p)]; ok {
		bm.Remove(e.id)
	}
	delete(s.children, p)
	delete(s.idPath, e.id)
	delete(s.nodes, p)
}

// subtree returns p and all its descendants in depth-first pre-order,
// siblings in insertion order. Must be called with s.mu held.
func (s *Store) subtree(p string) []string {
	out := []string{p}
	if bm, ok := s.children[p]; ok {
		for _, id := range bm.ToArray() {
			out = append(out, s.subtree(s.idPath[id])...)
		}
	}
	return out
}

// childNames must be called with s.mu held.
func (s *Store) childNames(dir string) []string {
	bm, ok := s.children[dir]
	if !ok {
		return []string{}
	}
	ids := bm.ToArray()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, Base(s.idPath[id]))
	}
	return names
}

// checkParent verifies the parent of p exists and is a directory.
// Must be called with s.mu held.
func (s *Store) checkParent(op, p string) error {
	parent := Parent(p)
	e, ok := s.nodes[parent]
	if !ok {
		return pathErr(op, p, fmt.Errorf("parent %s: %w", parent, ErrNotFound))
	}
	if e.node.Kind != Directory {
		return pathErr(op, p, fmt.Errorf("parent %s: %w", parent, ErrNotDirectory))
	}
	return nil
}

// Create adds a new file. Intermediate directories are never created
// implicitly: the parent must already exist.
func (s *Store) Create(path, content string) error {
	return s.add("create", path, Node{Kind: File, Content: content})
}

// Mkdir adds a new, empty directory. The parent must already exist.
func (s *Store) Mkdir(path string) error {
	return s.add("mkdir", path, Node{Kind: Directory})
}

func (s *Store) add(op, path string, n Node) error {
	p, err := Normalize(path)
	if err != nil {
		return pathErr(op, path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[p]; ok {
		return pathErr(op, p, ErrAlreadyExists)
	}
	if err := s.checkParent(op, p); err != nil {
		return err
	}
	n.Path = p
	s.insert(n)
	return nil
}

// Stat returns a copy of the node at path.
func (s *Store) Stat(path string) (Node, error) {
	p, err := Normalize(path)
	if err != nil {
		return Node{}, pathErr("stat", path, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.nodes[p]
	if !ok {
		return Node{}, pathErr("stat", p, ErrNotFound)
	}
	return e.node, nil
}

// Exists reports whether path names an entry. Invalid paths never exist.
func (s *Store) Exists(path string) bool {
	_, err := s.Stat(path)
	return err == nil
}

// Entry is the result of Read: content for files, ordered child names
// for directories.
type Entry struct {
	Node
	Children []string
}

// Read returns the file content or the directory listing at path.
func (s *Store) Read(path string) (Entry, error) {
	p, err := Normalize(path)
	if err != nil {
		return Entry{}, pathErr("read", path, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.nodes[p]
	if !ok {
		return Entry{}, pathErr("read", p, ErrNotFound)
	}
	out := Entry{Node: e.node}
	if e.node.Kind == Directory {
		out.Children = s.childNames(p)
	}
	return out, nil
}

// ReadFile returns the content of the file at path.
func (s *Store) ReadFile(path string) (string, error) {
	e, err := s.Read(path)
	if err != nil {
		return "", err
	}
	if e.IsDir() {
		return "", pathErr("read", e.Path, ErrIsDirectory)
	}
	return e.Content, nil
}

// ReadDir returns the child names of the directory at path in insertion order.
func (s *Store) ReadDir(path string) ([]string, error) {
	e, err := s.Read(path)
	if err != nil {
		return nil, err
	}
	if !e.IsDir() {
		return nil, pathErr("readdir", e.Path, ErrNotDirectory)
	}
	return e.Children, nil
}

// Update replaces the content of an existing file. A directory at path is
// reported as not found (and as a directory).
func (s *Store) Update(path, content string) error {
	p, err := Normalize(path)
	if err != nil {
		return pathErr("update", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.nodes[p]
	if !ok {
		return pathErr("update", p, ErrNotFound)
	}
	if e.node.Kind == Directory {
		return pathErr("update", p, fmt.Errorf("%w: %w", ErrNotFound, ErrIsDirectory))
	}
	e.node.Content = content
	return nil
}

// Edit rewrites the content of an existing file with fn while holding the
// write lock, so the read-modify-write is a single step. When fn fails the
// file is left untouched.
func (s *Store) Edit(path string, fn func(content string) (string, error)) error {
	p, err := Normalize(path)
	if err != nil {
		return pathErr("edit", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.nodes[p]
	if !ok {
		return pathErr("edit", p, ErrNotFound)
	}
	if e.node.Kind == Directory {
		return pathErr("edit", p, ErrIsDirectory)
	}
	next, err := fn(e.node.Content)
	if err != nil {
		return err
	}
	e.node.Content = next
	return nil
}

// Delete removes the entry at path. A non-empty directory is removed only
// when recursive is set, in which case the whole subtree goes at once.
func (s *Store) Delete(path string, recursive bool) error {
	p, err := Normalize(path)
	if err != nil {
		return pathErr("delete", path, err)
	}
	if p == Root {
		return pathErr("delete", p, fmt.Errorf("%w: the root cannot be removed", ErrInvalidPath))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.nodes[p]
	if !ok {
		return pathErr("delete", p, ErrNotFound)
	}
	if e.node.Kind == Directory && !s.children[p].IsEmpty() && !recursive {
		return pathErr("delete", p, ErrNotEmpty)
	}
	sub := s.subtree(p)
	for i := len(sub) - 1; i >= 0; i-- {
		s.remove(sub[i])
	}
	return nil
}

// Rename moves the entry (and its subtree) from oldPath to newPath. Moved
// entries keep their insertion ordinals, so sibling order is preserved.
func (s *Store) Rename(oldPath, newPath string) error {
	from, err := Normalize(oldPath)
	if err != nil {
		return pathErr("rename", oldPath, err)
	}
	to, err := Normalize(newPath)
	if err != nil {
		return pathErr("rename", newPath, err)
	}
	if from == Root {
		return pathErr("rename", from, fmt.Errorf("%w: the root cannot be moved", ErrInvalidPath))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	top, ok := s.nodes[from]
	if !ok {
		return pathErr("rename", from, ErrNotFound)
	}
	if _, ok := s.nodes[to]; ok {
		return pathErr("rename", to, ErrAlreadyExists)
	}
	if strings.HasPrefix(to, from+"/") {
		return pathErr("rename", to, fmt.Errorf("%w: cannot move %s into itself", ErrInvalidPath, from))
	}
	if err := s.checkParent("rename", to); err != nil {
		return err
	}

	s.children[Parent(from)].Remove(top.id)
	moved := make(map[string]*roaring.Bitmap)
	for _, q := range s.subtree(from) {
		e := s.nodes[q]
		dst := to + strings.TrimPrefix(q, from)
		if bm, ok := s.children[q]; ok {
			moved[dst] = bm
			delete(s.children, q)
		}
		delete(s.nodes, q)
		e.node.Path = dst
		s.nodes[dst] = e
		s.idPath[e.id] = dst
	}
	for dst, bm := range moved {
		s.children[dst] = bm
	}
	s.children[Parent(to)].Add(top.id)
	return nil
}

// Len returns the number of entries, the root included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Walk visits every entry in depth-first pre-order. The visit list is
// captured under the read lock; fn runs without it held.
func (s *Store) Walk(fn func(Node) error) error {
	s.mu.RLock()
	paths := s.subtree(Root)
	nodes := make([]Node, 0, len(paths))
	for _, p := range paths {
		nodes = append(nodes, s.nodes[p].node)
	}
	s.mu.RUnlock()

	for _, n := range nodes {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// Serialize returns the tree as an ordered record sequence: depth-first
// pre-order, siblings in insertion order, the root first. Equal trees
// serialize identically.
func (s *Store) Serialize() []api.Record {
	var out []api.Record
	_ = s.Walk(func(n Node) error {
		out = append(out, api.Record{Path: n.Path, Kind: n.Kind.String(), Content: n.Content})
		return nil
	})
	return out
}

// Deserialize rebuilds a store from a record sequence. The root record is
// optional. Records may appear in any order; sibling order follows record
// order. Duplicate paths, non-normalized paths, directories with content and
// entries whose parent directory is absent all fail with ErrInvalidSnapshot.
func Deserialize(records []api.Record) (*Store, error) {
	kinds := make(map[string]Kind, len(records))
	for i, r := range records {
		p, err := Normalize(r.Path)
		if err != nil || p != r.Path {
			return nil, fmt.Errorf("%w: record %d: path %q is not normalized", ErrInvalidSnapshot, i, r.Path)
		}
		if _, dup := kinds[p]; dup {
			return nil, fmt.Errorf("%w: record %d: duplicate path %s", ErrInvalidSnapshot, i, p)
		}
		k, err := ParseKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidSnapshot, i, err)
		}
		if k == Directory && r.Content != "" {
			return nil, fmt.Errorf("%w: record %d: directory %s has content", ErrInvalidSnapshot, i, p)
		}
		if p == Root && k != Directory {
			return nil, fmt.Errorf("%w: record %d: root must be a directory", ErrInvalidSnapshot, i)
		}
		kinds[p] = k
	}
	for i, r := range records {
		if r.Path == Root {
			continue
		}
		parent := Parent(r.Path)
		if parent == Root {
			continue
		}
		k, ok := kinds[parent]
		if !ok {
			return nil, fmt.Errorf("%w: record %d: orphaned entry %s (parent %s absent)", ErrInvalidSnapshot, i, r.Path, parent)
		}
		if k != Directory {
			return nil, fmt.Errorf("%w: record %d: parent %s of %s is a file", ErrInvalidSnapshot, i, parent, r.Path)
		}
	}

	s := newEmpty()
	s.insert(Node{Path: Root, Kind: Directory})
	for _, r := range records {
		if r.Path == Root {
			continue
		}
		s.insert(Node{Path: r.Path, Kind: kinds[r.Path], Content: r.Content})
	}
	return s, nil
}

// Digest returns a blake3 hex digest of the serialization. Structurally
// equal trees have equal digests.
func (s *Store) Digest() string {
	h := blake3.New()
	for _, r := range s.Serialize() {
		_, _ = h.Write([]byte(r.Kind))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(r.Path))
		_, _ = h.Write([]byte{0})
		_, _ = fmt.Fprintf(h, "%d", len(r.Content))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(r.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Clone returns an independent deep copy.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := newEmpty()
	c.nextID = s.nextID
	for p, e := range s.nodes {
		cp := *e
		c.nodes[p] = &cp
	}
	for p, bm := range s.children {
		c.children[p] = bm.Clone()
	}
	for id, p := range s.idPath {
		c.idPath[id] = p
	}
	return c
}
