package vfs

import (
	"fmt"
	"strings"
)

// Root is the path of the single root directory.
const Root = "/"

// Normalize returns the canonical form of an absolute path. Repeated
// separators collapse and a trailing separator is dropped (except for the
// root). Empty input, relative paths, NUL bytes and "." or ".." segments are
// rejected rather than resolved.
func Normalize(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if p[0] != '/' {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, p)
	}
	if strings.IndexByte(p, 0) >= 0 {
		return "", fmt.Errorf("%w: %q contains NUL", ErrInvalidPath, p)
	}

	segs := make([]string, 0, strings.Count(p, "/"))
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return "", fmt.Errorf("%w: traversal segment %q in %q", ErrInvalidPath, seg, p)
		}
		segs = append(segs, seg)
	}
	if len(segs) == 0 {
		return Root, nil
	}
	return "/" + strings.Join(segs, "/"), nil
}

// Parent returns the parent directory of a normalized path. The parent of
// the root is the root.
func Parent(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return Root
	}
	return p[:i]
}

// Base returns the last segment of a normalized path ("" for the root).
func Base(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}

// Join appends name to a normalized directory path.
func Join(dir, name string) string {
	if dir == Root {
		return Root + name
	}
	return dir + "/" + name
}

// Within reports whether p is dir itself or lies below it.
func Within(p, dir string) bool {
	if dir == Root || p == dir {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}
