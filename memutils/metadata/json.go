package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// RegionTypeFree and RegionTypeAllocated label the entries written by PrintDetailedMap
const (
	RegionTypeFree      = "FREE"
	RegionTypeAllocated = "ALLOCATED"
)

// BlockJsonData populates a json object with information about this region
func (m *FirstFitBlockMetadata) BlockJsonData(json *jwriter.ObjectState) {
	stats := m.Statistics()
	json.Name("TotalBytes").Int(m.Size())
	json.Name("UnusedBytes").Int(stats.FreeBytes)
	json.Name("Allocations").Int(stats.BlocksAllocated)

	arrayState := json.Name("FreeList").Array()
	defer arrayState.End()

	_ = m.VisitFreeNodes(func(offset int, size int) error {
		arrayState.Int(size)
		return nil
	})
}

// PrintDetailedMap writes every free node and allocation, in address order, to a json array
func (m *FirstFitBlockMetadata) PrintDetailedMap(json *jwriter.ObjectState) error {
	arrayState := json.Name("Regions").Array()
	defer arrayState.End()

	return m.VisitAllRegions(func(offset int, size int, free bool) error {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").Int(offset)
		if free {
			obj.Name("Type").String(RegionTypeFree)
			obj.Name("Size").Int(size - NodeHeaderSize)
		} else {
			obj.Name("Type").String(RegionTypeAllocated)
			obj.Name("Size").Int(size - AllocationHeaderSize)
		}
		return nil
	})
}
