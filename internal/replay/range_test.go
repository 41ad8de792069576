package replay

import (
	"reflect"
	"testing"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(1, 6, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []LineRange{
		{From: 1, To: 2},
		{From: 3, To: 4},
		{From: 5, To: 6},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeSingle(t *testing.T) {
	got, err := SplitRange(5, 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []LineRange{{From: 5, To: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeUpperBound(t *testing.T) {
	const top = ^uint64(0)
	got, err := SplitRange(top-2, top, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []LineRange{{From: top - 2, To: top - 1}, {From: top, To: top}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	if _, err := SplitRange(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := SplitRange(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}
