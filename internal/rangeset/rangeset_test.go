package rangeset_test

import (
	"testing"

	"github.com/axonops/protock/internal/rangeset"
)

func TestContainsAgreesWithUnion(t *testing.T) {
	s := rangeset.Build([]rangeset.Range{{Start: 2, End: 5}, {Start: 10, End: 12}})

	cases := map[int64]bool{
		0: false, 1: false, 2: true, 3: true, 4: true, 5: false,
		9: false, 10: true, 11: true, 12: false, 100: false,
	}
	for val, want := range cases {
		if got := s.Contains(val); got != want {
			t.Errorf("Contains(%d) = %v, want %v", val, got, want)
		}
	}
}

func TestOverlappingRangesMerge(t *testing.T) {
	s := rangeset.Build([]rangeset.Range{{Start: 0, End: 5}, {Start: 3, End: 8}})
	ranges := s.Ranges()
	if len(ranges) != 1 || ranges[0] != (rangeset.Range{Start: 0, End: 8}) {
		t.Fatalf("expected merged single range [0,8), got %+v", ranges)
	}
}

func TestAdjacentRangesMerge(t *testing.T) {
	s := rangeset.Build([]rangeset.Range{{Start: 0, End: 5}, {Start: 5, End: 8}})
	ranges := s.Ranges()
	if len(ranges) != 1 || ranges[0] != (rangeset.Range{Start: 0, End: 8}) {
		t.Fatalf("expected merged single range [0,8), got %+v", ranges)
	}
}

func TestFullContainsEverything(t *testing.T) {
	s := rangeset.Full()
	for _, v := range []int64{-1000, 0, 1000, 1 << 40} {
		if !s.Contains(v) {
			t.Errorf("Full().Contains(%d) = false, want true", v)
		}
	}
}

func TestEmptySetContainsNothing(t *testing.T) {
	var s rangeset.Set
	if s.Contains(0) {
		t.Fatal("empty set should contain nothing")
	}
}
