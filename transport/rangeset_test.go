package transport

import "testing"

func TestRangeSetPushMerge(t *testing.T) {
	var s rangeSet
	s.push(1, 3)
	s.push(5, 7)
	s.push(3, 5)
	if len(s) != 1 {
		t.Fatalf("expected ranges to coalesce into one, got %v", s)
	}
	if s[0].start != 1 || s[0].end != 7 {
		t.Fatalf("unexpected merged range %v", s[0])
	}
}

func TestRangeSetContains(t *testing.T) {
	var s rangeSet
	s.push(2, 4)
	s.push(10, 12)
	for _, n := range []uint64{2, 3, 10, 11} {
		if !s.contains(n) {
			t.Fatalf("expected %d to be contained in %v", n, s)
		}
	}
	for _, n := range []uint64{0, 1, 4, 9, 12} {
		if s.contains(n) {
			t.Fatalf("did not expect %d to be contained in %v", n, s)
		}
	}
}

func TestRangeSetRemoveUntil(t *testing.T) {
	var s rangeSet
	s.push(0, 10)
	s.removeUntil(4)
	if s.smallest() != 5 {
		t.Fatalf("expected smallest 5, got %d", s.smallest())
	}
}

func TestRangeSetPrefixLen(t *testing.T) {
	var s rangeSet
	s.push(0, 5)
	s.push(6, 8)
	if got := s.prefixLen(0); got != 5 {
		t.Fatalf("expected contiguous prefix of 5, got %d", got)
	}
	if got := s.prefixLen(5); got != 0 {
		t.Fatalf("expected no contiguous prefix at a gap, got %d", got)
	}
}

func TestRangeSetLargestSmallestEmpty(t *testing.T) {
	var s rangeSet
	if s.largest() != -1 || s.smallest() != -1 {
		t.Fatalf("expected -1 for an empty set")
	}
	if !s.empty() {
		t.Fatalf("expected empty set to report empty")
	}
}
