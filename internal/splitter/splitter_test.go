package splitter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wincloud/wincloud/internal/common"
)

func TestSplit_InvalidPercentage(t *testing.T) {
	for _, pct := range []int{-1, 101, 1000} {
		_, err := Split([]byte("data"), pct)
		require.ErrorIs(t, err, common.ErrInvalidPercentage)
	}
}

func TestSplitMerge_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("x"),
		[]byte("hello world"),
		bytes.Repeat([]byte{0xAB}, 100),
		bytes.Repeat([]byte{0xCD}, 101),
		bytes.Repeat([]byte("wincloud"), 4096),
	}

	for _, data := range payloads {
		for pct := 0; pct <= 100; pct += 5 {
			res, err := Split(data, pct)
			require.NoError(t, err)

			assert.Equal(t, len(data), res.TotalSize)
			assert.Equal(t, res.TotalSize, res.LocalSize+res.CloudSize)

			merged := Merge(res.Local, res.Cloud)
			if len(data) == 0 {
				assert.Empty(t, merged)
			} else {
				assert.Equal(t, data, merged, "pct=%d len=%d", pct, len(data))
			}
		}
	}
}

func TestSplit_ClampsLargeBlobs(t *testing.T) {
	data := bytes.Repeat([]byte{1}, 5000)

	for _, pct := range []int{0, 100} {
		res, err := Split(data, pct)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.LocalSize, 1, "pct=%d", pct)
		assert.GreaterOrEqual(t, res.CloudSize, 1, "pct=%d", pct)
	}
}

func TestSplit_NoClampBelowThreshold(t *testing.T) {
	data := bytes.Repeat([]byte{1}, 50)

	res, err := Split(data, 0)
	require.NoError(t, err)
	assert.Zero(t, res.LocalSize)
	assert.Equal(t, 50, res.CloudSize)

	res, err = Split(data, 100)
	require.NoError(t, err)
	assert.Equal(t, 50, res.LocalSize)
	assert.Zero(t, res.CloudSize)
}

func TestSplit_DefaultRatio(t *testing.T) {
	data := bytes.Repeat([]byte{1}, 1000)

	res, err := Split(data, 10)
	require.NoError(t, err)
	assert.Equal(t, 100, res.LocalSize)
	assert.Equal(t, 900, res.CloudSize)
}

func TestPlan(t *testing.T) {
	s, err := Plan(1000, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(100), s.LocalSize)
	assert.Equal(t, int64(900), s.CloudSize)
	assert.InDelta(t, 10.0, s.LocalPercent, 0.001)
	assert.InDelta(t, 90.0, s.CloudPercent, 0.001)

	// floor arithmetic, no clamping
	s, err = Plan(9, 10)
	require.NoError(t, err)
	assert.Zero(t, s.LocalSize)
	assert.Equal(t, int64(9), s.CloudSize)

	s, err = Plan(0, 50)
	require.NoError(t, err)
	assert.Zero(t, s.LocalPercent)
	assert.Zero(t, s.CloudPercent)

	_, err = Plan(10, 101)
	require.ErrorIs(t, err, common.ErrInvalidPercentage)
}
