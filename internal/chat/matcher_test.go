package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchOption(t *testing.T) {
	options := []string{"New Parent", "Existing Parent"}

	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"New Parent", "New Parent", true},
		{"new parent", "New Parent", true},
		{"  NEW PARENT  ", "New Parent", true},
		{"I am a new parent", "New Parent", true},
		{"existing", "Existing Parent", true},
		{"1", "New Parent", true},
		{"2", "Existing Parent", true},
		{"3", "", false},
		{"0", "", false},
		{"", "", false},
		{"grandparent visiting", "", false},
	}
	for _, tt := range tests {
		got, ok := matchOption(tt.input, options)
		require.Equal(t, tt.ok, ok, "input %q", tt.input)
		require.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestNormalizeName(t *testing.T) {
	name, ok := normalizeName("  priya sharma  ")
	require.True(t, ok)
	require.Equal(t, "Priya Sharma", name)

	name, ok = normalizeName("RAHUL")
	require.True(t, ok)
	require.Equal(t, "Rahul", name)

	_, ok = normalizeName("a")
	require.False(t, ok)
	_, ok = normalizeName("  ")
	require.False(t, ok)
	_, ok = normalizeName("42")
	require.False(t, ok)
}

func TestNormalizeMobile(t *testing.T) {
	mobile, ok := normalizeMobile("+91 98765-43210")
	require.True(t, ok)
	require.Equal(t, "919876543210", mobile)

	mobile, ok = normalizeMobile("9876543210")
	require.True(t, ok)
	require.Equal(t, "9876543210", mobile)

	_, ok = normalizeMobile("12345")
	require.False(t, ok)
	_, ok = normalizeMobile("call me maybe")
	require.False(t, ok)
}
