package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/"},
		{"/", "/"},
		{"a/b", "/a/b"},
		{"/a/b/", "/a/b"},
		{"/a/./b/../c", "/a/c"},
		{"/../..", "/"},
		{"\\sub\\b.txt", "/sub/b.txt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clean(tt.in), "Clean(%q)", tt.in)
	}
}

func TestJoinParentBase(t *testing.T) {
	assert.Equal(t, "/sub/b.txt", Join("/sub", "b.txt"))
	assert.Equal(t, "/a.txt", Join("/", "a.txt"))
	assert.Equal(t, "/sub", Parent("/sub/b.txt"))
	assert.Equal(t, "/", Parent("/a.txt"))
	assert.Equal(t, "/", Parent("/"))
	assert.Equal(t, "b.txt", Base("/sub/b.txt"))
	assert.Equal(t, "", Base("/"))
	assert.Empty(t, Segments("/"))
	assert.Equal(t, []string{"a", "b"}, Segments("/a/b"))
}

func TestIsWithin(t *testing.T) {
	assert.True(t, IsWithin("/", "/anything"))
	assert.True(t, IsWithin("/a", "/a"))
	assert.True(t, IsWithin("/a", "/a/b/c"))
	assert.False(t, IsWithin("/a", "/ab"))
	assert.False(t, IsWithin("/a/b", "/a"))
}

func TestValidateName(t *testing.T) {
	for _, bad := range []string{"", "  ", ".", "..", "a/b", "a\\b", "nul\x00"} {
		err := ValidateName(bad)
		assert.Equal(t, KindInvalidArgument, KindOf(err), "name %q", bad)
	}
	assert.NoError(t, ValidateName("c.txt"))
	assert.NoError(t, ValidateName(".hidden"))
}

func TestHostJoin(t *testing.T) {
	tests := []struct {
		base, logical, want string
	}{
		{"/home/user/proj", "/", "/home/user/proj"},
		{"/home/user/proj/", "/src/main.go", "/home/user/proj/src/main.go"},
		{"C:\\Projects\\x", "/src/a.txt", "C:\\Projects\\x\\src\\a.txt"},
		{"C:\\", "/", "C:\\"},
		{"/", "/etc", "/etc"},
		{"/", "/", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HostJoin(tt.base, tt.logical), "HostJoin(%q, %q)", tt.base, tt.logical)
	}
}

func TestHostRel(t *testing.T) {
	rel, ok := HostRel("/home/user/proj", "/home/user/proj/src/a.go")
	assert.True(t, ok)
	assert.Equal(t, "/src/a.go", rel)

	rel, ok = HostRel("C:\\Projects\\x", "C:\\Projects\\x\\b.txt")
	assert.True(t, ok)
	assert.Equal(t, "/b.txt", rel)

	rel, ok = HostRel("/home/user/proj/", "/home/user/proj")
	assert.True(t, ok)
	assert.Equal(t, "/", rel)

	_, ok = HostRel("/home/user/proj", "/home/user/project2/a")
	assert.False(t, ok)

	assert.True(t, HostWithin("/srv/a", "/srv/a/b"))
	assert.False(t, HostWithin("/srv/a/b", "/srv/a"))
}

func TestIsProtectedRoot(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/", true},
		{"/home", true},
		{"/home/", true},
		{"/home/user", false},
		{"C:\\", true},
		{"C:\\Projects", true},
		{"c:/Projects/x", false},
		{"D:", true},
		{"\\\\server\\share", true},
		{"\\\\server\\share\\dir", true},
		{"\\\\server\\share\\dir\\sub", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsProtectedRoot(tt.path), "IsProtectedRoot(%q)", tt.path)
	}
}
