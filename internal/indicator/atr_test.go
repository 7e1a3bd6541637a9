package indicator

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= eps
}

func TestTrueRange_Fixture(t *testing.T) {
	high := []float64{10, 12, 11}
	low := []float64{8, 9, 9}
	closes := []float64{9, 11, 10}

	tr := TrueRange(high, low, closes)
	want := []float64{2, 3, 2}
	for i := range want {
		if tr[i] != want[i] {
			t.Errorf("tr[%d] = %v, want %v", i, tr[i], want[i])
		}
	}
}

func TestRMA_Fixture(t *testing.T) {
	// RMA of tr=[2,3,2] with period=2 (alpha=0.5): [2, 2.5, 2.25]
	out := RMA([]float64{2, 3, 2}, 2)
	want := []float64{2, 2.5, 2.25}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("rma[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestATR_Fixture(t *testing.T) {
	high := []float64{10, 12, 11}
	low := []float64{8, 9, 9}
	closes := []float64{9, 11, 10}

	atr := ATR(high, low, closes, 2)
	want := []float64{2, 2.5, 2.25}
	for i := range want {
		if atr[i] != want[i] {
			t.Errorf("atr[%d] = %v, want %v", i, atr[i], want[i])
		}
	}
}

func TestRMA_NaNCarriesPrevious(t *testing.T) {
	out := RMA([]float64{1, math.NaN(), 3}, 2)
	want := []float64{1, 1, 2} // NaN input carries out[0]=1, then 0.5*3+0.5*1
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("rma[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestRMA_LeadingNaN(t *testing.T) {
	out := RMA([]float64{math.NaN(), math.NaN(), 4, 2}, 2)
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Errorf("leading outputs should stay NaN, got %v", out[:2])
	}
	if out[2] != 4 {
		t.Errorf("first defined output = %v, want 4", out[2])
	}
	if out[3] != 3 {
		t.Errorf("rma[3] = %v, want 3", out[3])
	}
}

func TestTrueRangeFrom_UsesPreviousClose(t *testing.T) {
	high := []float64{10}
	low := []float64{9}

	fresh := TrueRange(high, low, []float64{9.5})
	if fresh[0] != 1 {
		t.Errorf("fresh tr[0] = %v, want 1", fresh[0])
	}

	// Gap from a previous close of 5: tr = max(1, |10-5|, |9-5|) = 5
	cont := TrueRangeFrom(high, low, []float64{9.5}, 5)
	if cont[0] != 5 {
		t.Errorf("continued tr[0] = %v, want 5", cont[0])
	}
}

func TestRMAFrom_ExactContinuation(t *testing.T) {
	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8}
	const period = 3
	full := RMA(values, period)

	for _, k := range []int{1, 4, 7} {
		seed := &ATRSeed{PrevATR: full[k-1]}
		cont := RMAFrom(values[k:], period, seed)
		for i := range cont {
			if !almostEqual(cont[i], full[k+i], 1e-12) {
				t.Errorf("split at %d: cont[%d] = %v, want %v", k, i, cont[i], full[k+i])
			}
		}
	}
}

func TestRMAFrom_WindowFallback(t *testing.T) {
	// Without PrevATR the seed window is replayed and discarded; the result
	// must still be a valid recurrence over the new values (finite, defined).
	seed := &ATRSeed{PrevATR: math.NaN(), TRWindow: []float64{2, 3, 2}}
	out := RMAFrom([]float64{1, 1, 1}, 3, seed)
	for i, v := range out {
		if math.IsNaN(v) {
			t.Fatalf("out[%d] is NaN", i)
		}
	}
	// Replaying the window and discarding the prefix is the same recurrence
	// as running it over the concatenation.
	want := RMA([]float64{2, 3, 2, 1, 1, 1}, 3)[3:]
	for i := range out {
		if !almostEqual(out[i], want[i], 1e-12) {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestTailWindow(t *testing.T) {
	got := TailWindow([]float64{1, 2, 3}, []float64{4, 5}, 3)
	want := []float64{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("window[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	short := TailWindow(nil, []float64{4, 5}, 3)
	if len(short) != 2 || short[0] != 4 || short[1] != 5 {
		t.Errorf("short window = %v, want [4 5]", short)
	}
}
