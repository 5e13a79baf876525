package word

import (
	"math/rand"
	"testing"
)

func TestAddComplementIsZero(t *testing.T) {
	cases := []uint64{0, 1, 0x123456789abcdef, Mask60, Mask60 / 2}
	for _, a := range cases {
		got := Add60(a, Negate60(a))
		if got != 0 && got != Mask60 {
			t.Errorf("a+~a = %#o, want 0 (or negative zero %#o)", got, Mask60)
		}
	}
}

func TestAdd60Associative(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		a := uint64(r.Int63()) & Mask60
		b := uint64(r.Int63()) & Mask60
		c := uint64(r.Int63()) & Mask60
		lhs := Add60(Add60(a, b), c)
		rhs := Add60(a, Add60(b, c))
		if lhs != rhs {
			t.Fatalf("associativity failed: (%#o+%#o)+%#o=%#o, %#o+(%#o+%#o)=%#o", a, b, c, lhs, a, b, c, rhs)
		}
	}
}

func TestAdd18EndAroundCarry(t *testing.T) {
	// 0777777 + 1 must end-around-carry to 1, not 0.
	got := Add18(Mask18, 1)
	if got != 1 {
		t.Errorf("Add18(0777777,1) = %o, want 1", got)
	}
}

func TestShiftLeftCircularPeriod60(t *testing.T) {
	x := uint64(0x0123456789abcde)
	if got := ShiftLeftCircular(x, 60); got != x {
		t.Errorf("ShiftLeftCircular(x,60) = %#o, want %#o", got, x)
	}
}

func TestShiftLeftCircularComposes(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	x := uint64(r.Int63()) & Mask60
	for i := 0; i < 60; i++ {
		for j := 0; j < 60; j++ {
			lhs := ShiftLeftCircular(ShiftLeftCircular(x, uint(i)), uint(j))
			rhs := ShiftLeftCircular(x, uint((i+j)%60))
			if lhs != rhs {
				t.Fatalf("shift(%d) then shift(%d) != shift(%d): %#o vs %#o", i, j, (i+j)%60, lhs, rhs)
			}
		}
	}
}

func TestPopCount60(t *testing.T) {
	tests := []struct {
		in   uint64
		want int
	}{
		{0, 0},
		{Mask60, 60},
		{1, 1},
		{0x0f, 4},
	}
	for _, tc := range tests {
		if got := PopCount60(tc.in); got != tc.want {
			t.Errorf("PopCount60(%#o) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestPopCount60Random(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		x := uint64(r.Int63()) & Mask60
		want := 0
		for b := x; b != 0; b >>= 1 {
			want += int(b & 1)
		}
		if got := PopCount60(x); got != want {
			t.Fatalf("PopCount60(%#o) = %d, want %d", x, got, want)
		}
	}
}

func TestShiftRightArithmeticSignFill(t *testing.T) {
	neg := signBit60 | 1
	got := ShiftRightArithmetic(neg, 4)
	if !IsNegative60(got) {
		t.Errorf("arithmetic right shift of negative operand lost sign: %#o", got)
	}
	pos := uint64(0x1000)
	if got := ShiftRightArithmetic(pos, 64); got != 0 {
		t.Errorf("ShiftRightArithmetic(pos, 64) = %#o, want 0", got)
	}
}
