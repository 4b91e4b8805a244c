// Package splitter partitions a compressed blob into the locally retained
// prefix and the cloud-bound suffix, and merges the two back together.
package splitter

import (
	"github.com/wincloud/wincloud/internal/common"
)

// clampThreshold is the blob size above which both parts are forced to be
// non-empty, even at 0% or 100%. Below it, either part may be empty.
const clampThreshold = 100

// Result holds the two parts of a split blob.
type Result struct {
	Local     []byte
	Cloud     []byte
	LocalSize int
	CloudSize int
	TotalSize int
}

// Split partitions data into a local prefix of roughly localPercentage
// percent and a cloud suffix holding the rest. The returned slices alias
// data. For blobs larger than clampThreshold the local size is clamped to
// [1, len(data)-1] so neither side ends up empty.
func Split(data []byte, localPercentage int) (*Result, error) {
	if localPercentage < 0 || localPercentage > 100 {
		return nil, common.ErrInvalidPercentage
	}

	total := len(data)
	localSize := total * localPercentage / 100

	if total > clampThreshold {
		if localSize < 1 {
			localSize = 1
		}
		if localSize > total-1 {
			localSize = total - 1
		}
	}

	return &Result{
		Local:     data[:localSize],
		Cloud:     data[localSize:],
		LocalSize: localSize,
		CloudSize: total - localSize,
		TotalSize: total,
	}, nil
}

// Merge concatenates a local prefix and cloud suffix back into the original
// blob. It is the exact inverse of Split for any percentage.
func Merge(local, cloud []byte) []byte {
	merged := make([]byte, 0, len(local)+len(cloud))
	merged = append(merged, local...)
	return append(merged, cloud...)
}

// Sizes describes a planned split without materializing any bytes.
type Sizes struct {
	TotalSize    int64
	LocalSize    int64
	CloudSize    int64
	LocalPercent float64
	CloudPercent float64
}

// Plan computes the split sizes for a blob of totalSize bytes. Unlike Split
// it applies no clamping; it is an estimator for planning and UI display.
func Plan(totalSize int64, localPercentage int) (*Sizes, error) {
	if localPercentage < 0 || localPercentage > 100 {
		return nil, common.ErrInvalidPercentage
	}

	localSize := totalSize * int64(localPercentage) / 100
	s := &Sizes{
		TotalSize: totalSize,
		LocalSize: localSize,
		CloudSize: totalSize - localSize,
	}
	if totalSize > 0 {
		s.LocalPercent = float64(s.LocalSize) / float64(totalSize) * 100
		s.CloudPercent = float64(s.CloudSize) / float64(totalSize) * 100
	}
	return s, nil
}
