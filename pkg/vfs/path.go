package vfs

import (
	"path"
	"strings"
)

// Root is the logical path of a session's working directory.
const Root = "/"

// Clean normalizes a logical path: forward slashes, leading '/', no trailing
// '/', no dot segments. Backslashes are treated as separators.
func Clean(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	return path.Clean("/" + p)
}

// Join builds a child path from a parent path and a base name.
func Join(parent, name string) string {
	return Clean(path.Join(Clean(parent), name))
}

// Parent returns the parent directory of p; the parent of Root is Root.
func Parent(p string) string {
	return path.Dir(Clean(p))
}

// Base returns the last element of p; Base(Root) is "".
func Base(p string) string {
	p = Clean(p)
	if p == Root {
		return ""
	}
	return path.Base(p)
}

// Segments splits p into its names. Segments(Root) is empty.
func Segments(p string) []string {
	p = Clean(p)
	if p == Root {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

// IsWithin reports whether p equals dir or lies beneath it.
func IsWithin(dir, p string) bool {
	dir, p = Clean(dir), Clean(p)
	if dir == Root || dir == p {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}

// ValidateName rejects names that cannot address a single directory entry.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return newError(KindInvalidArgument, "name must not be empty")
	case name == "." || name == "..":
		return newError(KindInvalidArgument, "name %q is reserved", name)
	case strings.ContainsAny(name, "/\\"):
		return newError(KindInvalidArgument, "name %q must not contain a path separator", name)
	case strings.ContainsRune(name, 0):
		return newError(KindInvalidArgument, "name must not contain NUL")
	}
	return nil
}

// HostJoin appends a logical path to an absolute host base path. The host
// may use either separator style; the base's style is kept.
func HostJoin(base, logical string) string {
	logical = Clean(logical)
	sep := "/"
	if !strings.Contains(base, "/") && strings.Contains(base, "\\") {
		sep = "\\"
	}
	trimmed := strings.TrimRight(base, "/\\")
	if logical == Root {
		if trimmed == "" || isVolume(trimmed) {
			return trimmed + sep
		}
		return trimmed
	}
	return trimmed + sep + strings.Join(Segments(logical), sep)
}

// HostRel converts an absolute host path beneath base back to a logical path.
func HostRel(base, hostPath string) (string, bool) {
	norm := func(s string) string {
		s = strings.ReplaceAll(s, "\\", "/")
		if len(s) > 1 {
			s = strings.TrimRight(s, "/")
		}
		return s
	}
	b, h := norm(base), norm(hostPath)
	if b == h {
		return Root, true
	}
	prefix := strings.TrimRight(b, "/") + "/"
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return Clean(strings.TrimPrefix(h, prefix)), true
}

// HostWithin reports whether hostPath is base or lies beneath it.
func HostWithin(base, hostPath string) bool {
	_, ok := HostRel(base, hostPath)
	return ok
}

// IsProtectedRoot reports whether an absolute host path is a filesystem root
// ("/", "C:\") or a direct child of one. Directories must not be created
// there. Both POSIX and Windows path styles are recognized regardless of the
// local OS, since the host may differ from the caller.
func IsProtectedRoot(hostPath string) bool {
	p := strings.ReplaceAll(strings.TrimSpace(hostPath), "\\", "/")
	if p == "" {
		return false
	}
	switch {
	case isVolume(p[:min(len(p), 2)]):
		p = p[2:]
	case strings.HasPrefix(p, "//"):
		// UNC: //server/share is the root.
		parts := strings.SplitN(strings.TrimPrefix(p, "//"), "/", 3)
		if len(parts) < 3 {
			return true
		}
		p = "/" + parts[2]
	}
	depth := 0
	for _, seg := range strings.Split(path.Clean("/"+p), "/") {
		if seg != "" {
			depth++
		}
	}
	return depth <= 1
}

func isVolume(s string) bool {
	if len(s) != 2 || s[1] != ':' {
		return false
	}
	c := s[0] | 0x20
	return c >= 'a' && c <= 'z'
}
