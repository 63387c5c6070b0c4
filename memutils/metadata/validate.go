package metadata

import (
	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
)

// freeNodeSet collects the offset and size of every node in the free list. It fails if the list
// visits the same node twice or links outside of the region.
func (m *FirstFitBlockMetadata) freeNodeSet() (*swiss.Map[int, int], error) {
	nodes := swiss.NewMap[int, int](42)
	for current := m.head; current != nilOffset; current = int(m.node(current).next) {
		if current < StatisticsBlockSize || !m.region.Contains(current, NodeHeaderSize) {
			return nil, errors.Errorf("free list links to offset %d, which is outside of the heap", current)
		}
		if nodes.Has(current) {
			return nil, errors.Errorf("free list visits the node at offset %d more than once", current)
		}

		nodes.Put(current, int(m.node(current).size))
	}

	return nodes, nil
}

// VisitAllRegions walks the region in address order, reporting each free node and allocation with
// its header included in the size.
func (m *FirstFitBlockMetadata) VisitAllRegions(handleBlock func(offset int, size int, free bool) error) error {
	nodes, err := m.freeNodeSet()
	if err != nil {
		return err
	}

	for offset := StatisticsBlockSize; offset < m.region.Size(); {
		var size int
		nodeSize, free := nodes.Get(offset)
		if free {
			size = nodeSize + NodeHeaderSize
		} else {
			if !m.region.Contains(offset, AllocationHeaderSize) {
				return errors.Errorf("region at offset %d is too small to hold a header", offset)
			}

			header := m.header(offset)
			if header.magic != guardMagic {
				return errors.Errorf("region at offset %d is neither in the free list nor a live allocation", offset)
			}
			size = int(header.allocatedSize) + AllocationHeaderSize
		}

		if size <= 0 || !m.region.Contains(offset, size) {
			return errors.Errorf("region at offset %d with size %d does not fit within the heap", offset, size)
		}

		err = handleBlock(offset, size, free)
		if err != nil {
			return err
		}

		offset += size
	}

	return nil
}

func (m *FirstFitBlockMetadata) Validate() error {
	nodes, err := m.freeNodeSet()
	if err != nil {
		return err
	}

	info := m.info()
	var allocCount, freeCount, freeSize, end int
	lastFree := false

	err = m.VisitAllRegions(func(offset int, size int, free bool) error {
		if free && lastFree {
			return errors.Errorf("free node at offset %d directly follows another free node", offset)
		}
		lastFree = free

		if free {
			freeCount++
			freeSize += size - NodeHeaderSize
		} else {
			allocCount++
		}

		end = offset + size
		return nil
	})
	if err != nil {
		return err
	}

	if end != m.region.Size() {
		return errors.Errorf("the regions of the heap end at offset %d, but the heap is %d bytes", end, m.region.Size())
	}

	if freeCount != nodes.Count() {
		return errors.Errorf("the free list holds %d nodes, but only %d were found in the heap", nodes.Count(), freeCount)
	}

	if allocCount != int(info.blocksAllocated) {
		return errors.Errorf("the allocation count of the heap is %d, but the live allocations only added up to %d", info.blocksAllocated, allocCount)
	}

	stats := m.Statistics()
	if freeSize != stats.FreeBytes {
		return errors.Errorf("the free size of the heap is %d, but the free nodes only added up to %d", stats.FreeBytes, freeSize)
	}

	if maxChunk := m.scanMaxChunk(); maxChunk != stats.MaxChunk {
		return errors.Errorf("the largest free chunk is recorded as %d, but is actually %d", stats.MaxChunk, maxChunk)
	}

	if minChunk := m.scanMinChunk(); minChunk != stats.MinChunk {
		return errors.Errorf("the smallest free chunk is recorded as %d, but is actually %d", stats.MinChunk, minChunk)
	}

	return nil
}
