package transport

import "sort"

// numRange is an inclusive-exclusive [start, end) interval over a 62-bit
// number line. It is used both for received-packet-number tracking and for
// stream byte-offset reassembly, per the Data Model in the specification:
// a "set of sorted non-overlapping ranges".
type numRange struct {
	start, end uint64 // [start, end)
}

func (r numRange) len() uint64 {
	return r.end - r.start
}

// rangeSet is a sorted, non-overlapping, coalesced set of numRanges kept in
// ascending order. It backs the received-PN set in packetNumberSpace and the
// out-of-order reassembly buffer in Stream's recv side.
type rangeSet []numRange

// push inserts [start, end) and merges it with any overlapping or adjacent
// ranges already present.
func (s *rangeSet) push(start, end uint64) {
	if start >= end {
		return
	}
	r := *s
	i := sort.Search(len(r), func(i int) bool { return r[i].start >= start })
	// Merge with the range immediately preceding i, if it overlaps or touches.
	if i > 0 && r[i-1].end >= start {
		i--
		start = r[i].start
		if r[i].end > end {
			end = r[i].end
		}
		r = append(r[:i], r[i+1:]...)
	}
	// Absorb every following range that overlaps or touches [start, end).
	j := i
	for j < len(r) && r[j].start <= end {
		if r[j].end > end {
			end = r[j].end
		}
		j++
	}
	r = append(r[:i], r[j:]...)
	r = append(r, numRange{})
	copy(r[i+1:], r[i:])
	r[i] = numRange{start, end}
	*s = r
}

// contains reports whether n falls within any range in the set.
func (s rangeSet) contains(n uint64) bool {
	for _, r := range s {
		if n >= r.start && n < r.end {
			return true
		}
		if n < r.start {
			break
		}
	}
	return false
}

// removeUntil drops everything at or below n, trimming a straddling range.
func (s *rangeSet) removeUntil(n uint64) {
	r := *s
	i := 0
	for i < len(r) && r[i].end <= n+1 {
		i++
	}
	if i < len(r) && r[i].start <= n {
		r[i].start = n + 1
	}
	*s = r[i:]
}

// largest returns the end-1 of the final range, or -1 if empty.
func (s rangeSet) largest() int64 {
	if len(s) == 0 {
		return -1
	}
	return int64(s[len(s)-1].end) - 1
}

// smallest returns the start of the first range, or -1 if empty.
func (s rangeSet) smallest() int64 {
	if len(s) == 0 {
		return -1
	}
	return int64(s[0].start)
}

func (s rangeSet) empty() bool {
	return len(s) == 0
}

// prefixLen returns the length of the contiguous range starting at from.
// It is used to compute how many bytes of a stream are readable.
func (s rangeSet) prefixLen(from uint64) uint64 {
	for _, r := range s {
		if r.start > from {
			return 0
		}
		if r.end > from {
			return r.end - from
		}
	}
	return 0
}

// ackRange holds the gap/length encoding of an ACK frame's ranges,
// largest-first, as used by ackFrame.
type ackRange struct {
	gap    uint64
	length uint64 // as in the wire encoding: number of packets in the range minus 1
}
