package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCode(t *testing.T) {
	require.Equal(t, "ab3d", NormalizeCode(" A b.3:D\n"))
	require.Equal(t, "", NormalizeCode("…—·"))
	require.Equal(t, "1234", NormalizeCode("1234"))
}

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "datastructures", NormalizeName("  Data Structures\n"))
}
