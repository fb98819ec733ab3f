package release

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParse covers well-formed and malformed version strings.
func TestParse(t *testing.T) {
	t.Parallel()

	v, ok := Parse("8.3.20.1")
	require.True(t, ok)
	require.Equal(t, Version{8, 3, 20, 1}, v)
	require.Equal(t, "8.3.20.1", v.String())

	for _, bad := range []string{
		"",
		"8.3.20",
		"8.3.20.1.5",
		"8.3.x.1",
		"8..20.1",
		"8.3.20.-1",
		" 8.3.20.1",
		"notaversion",
	} {
		_, ok = Parse(bad)
		require.False(t, ok, bad)
	}
}

// TestCompare checks tuple ordering with the most significant part first.
func TestCompare(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, mustParse(t, "8.3.20.1").Compare(mustParse(t, "8.3.19.9999")))
	require.Equal(t, -1, mustParse(t, "8.3.9.0").Compare(mustParse(t, "8.3.10.0")))
	require.Equal(t, 0, mustParse(t, "3.0.150.25").Compare(mustParse(t, "3.0.150.25")))
	require.Equal(t, -1, mustParse(t, "2.9.9.9").Compare(mustParse(t, "3.0.0.0")))
}

// TestSame verifies numeric equality for versions and string equality otherwise.
func TestSame(t *testing.T) {
	t.Parallel()

	require.True(t, Same("8.3.20.1", "8.3.20.1"))
	require.True(t, Same("8.3.020.1", "8.3.20.1"))
	require.False(t, Same("8.3.20.2", "8.3.20.1"))
	require.True(t, Same("beta", "beta"))
	require.False(t, Same("", "8.3.20.1"))
}

// mustParse parses a version constant.
func mustParse(t *testing.T, s string) Version {
	t.Helper()

	v, ok := Parse(s)
	require.True(t, ok, s)

	return v
}
