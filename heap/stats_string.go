package heap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/fixedheap/memutils"
)

func printStatistics(json *jwriter.ObjectState, stats *memutils.DetailedStatistics) {
	json.Name("BlocksAllocated").Int(stats.BlocksAllocated)
	json.Name("CurrentSize").Int(stats.CurrSize)
	json.Name("FreeMemory").Int(stats.FreeBytes)
	json.Name("LargestAvailableChunk").Int(stats.MaxChunk)
	json.Name("SmallestAvailableChunk").Int(stats.MinChunk)
	json.Name("AllocationBytes").Int(stats.AllocationBytes)
	json.Name("UnusedRanges").Int(stats.UnusedRangeCount)

	if stats.BlocksAllocated > 0 {
		json.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		json.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}
}

// BuildStatsString returns a json document describing the heap's statistics and free list. When
// detailedMap is true, every free node and allocation in the region is listed in address order.
func (a *Allocator) BuildStatsString(detailedMap bool) string {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	if a.metadata != nil {
		a.metadata.AddDetailedStatistics(&stats)
	}

	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("RegionSize").Int(a.regionSize)
	obj.Name("Flags").String(a.createFlags.String())

	totalObj := obj.Name("Total").Object()
	printStatistics(&totalObj, &stats)
	totalObj.End()

	if a.metadata != nil {
		heapObj := obj.Name("Heap").Object()
		a.metadata.BlockJsonData(&heapObj)

		if detailedMap {
			err := a.metadata.PrintDetailedMap(&heapObj)
			if err != nil {
				heapObj.Name("Error").String(err.Error())
			}
		}

		heapObj.End()
	}

	obj.End()

	return string(writer.Bytes())
}
