package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaggerHandsOutLowestFree(t *testing.T) {
	tags := newTagger()
	require.Equal(t, 0, tags.acquire())
	require.Equal(t, 1, tags.acquire())
	require.Equal(t, 2, tags.acquire())
}

func TestTaggerReusesReleasedSlot(t *testing.T) {
	tags := newTagger()
	tags.acquire()
	one := tags.acquire()
	tags.acquire()

	tags.release(one)
	require.Equal(t, 1, tags.acquire())
	require.Equal(t, 3, tags.acquire())
}

func TestTaggerReleaseUnknownSlot(t *testing.T) {
	tags := newTagger()
	tags.release(5)
	require.Equal(t, 0, tags.acquire())
}
