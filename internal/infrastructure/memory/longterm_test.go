package memory

import (
	"math"
	"testing"

	"github.com/aria-ai/aria/internal/domain/entity"
)

func mem(id, content string) entity.Memory {
	return entity.Memory{ID: id, Content: content}
}

func ids(memories []entity.Memory) []string {
	out := make([]string, len(memories))
	for i, m := range memories {
		out[i] = m.ID
	}
	return out
}

func TestRRFFuseBothLanes(t *testing.T) {
	a := mem("a", "prefers dark roast coffee")
	b := mem("b", "lives in Berlin")
	c := mem("c", "uses dvorak keyboard")

	// Vector lane [A, B], lexical lane [A, C]: A scores 1/61 + 1/61,
	// B and C tie at 1/62 and keep first-seen order, so B comes first.
	fused := rrfFuse([]entity.Memory{a, b}, []entity.Memory{a, c}, 60)

	got := ids(fused)
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}

	if diff := math.Abs(fused[0].Score - 2.0/61.0); diff > 1e-12 {
		t.Errorf("A score = %v, want 2/61", fused[0].Score)
	}
	if diff := math.Abs(fused[1].Score - 1.0/62.0); diff > 1e-12 {
		t.Errorf("B score = %v, want 1/62", fused[1].Score)
	}
	if fused[1].Score != fused[2].Score {
		t.Errorf("tied scores differ: %v vs %v", fused[1].Score, fused[2].Score)
	}
}

func TestRRFFuseTieBreakIsFirstSeen(t *testing.T) {
	// Each rank holds one vector-lane and one lexical-lane document
	// with identical scores; ties keep first-seen order, so the
	// vector-lane entry precedes the lexical one at every rank.
	fused := rrfFuse(
		[]entity.Memory{mem("v1", ""), mem("v2", "")},
		[]entity.Memory{mem("l1", ""), mem("l2", "")},
		60,
	)
	if len(fused) != 4 {
		t.Fatalf("fused = %v", ids(fused))
	}
	if fused[0].ID != "v1" || fused[1].ID != "l1" {
		t.Errorf("order = %v", ids(fused))
	}
	if fused[2].ID != "v2" || fused[3].ID != "l2" {
		t.Errorf("order = %v", ids(fused))
	}
}

func TestRRFFuseSingleLane(t *testing.T) {
	// One lane failing feeds an empty list; the other lane's order and
	// reciprocal scores carry through unchanged.
	lexical := []entity.Memory{mem("x", ""), mem("y", ""), mem("z", "")}

	fused := rrfFuse(nil, lexical, 60)
	got := ids(fused)
	for i, want := range []string{"x", "y", "z"} {
		if got[i] != want {
			t.Fatalf("order = %v", got)
		}
	}
	for i, m := range fused {
		want := 1.0 / float64(60+i+1)
		if diff := math.Abs(m.Score - want); diff > 1e-12 {
			t.Errorf("rank %d score = %v, want %v", i, m.Score, want)
		}
	}

	if fused := rrfFuse(nil, nil, 60); len(fused) != 0 {
		t.Errorf("both lanes empty: %v", ids(fused))
	}
}
