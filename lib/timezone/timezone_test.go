package timezone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNowIsBeijingTime(t *testing.T) {
	now := Now()
	require.Equal(t, "Asia/Shanghai", now.Location().String())

	_, offset := now.Zone()
	require.Equal(t, 8*3600, offset)
}
