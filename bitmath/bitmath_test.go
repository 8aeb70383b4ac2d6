package bitmath

import "testing"

func TestOrderToSize(t *testing.T) {
	cases := map[uint8]uint64{0: 1, 3: 8, 10: 1024, 26: 64 << 20}
	for order, want := range cases {
		if got := OrderToSize(order); got != want {
			t.Errorf("OrderToSize(%d) = %d, want %d", order, got, want)
		}
	}
}

func TestSizeToOrder(t *testing.T) {
	cases := []struct {
		n    uint64
		want uint8
	}{
		{1, 3}, {8, 3}, {9, 4}, {16, 4}, {17, 5}, {32, 5}, {33, 6}, {64, 6}, {65, 7},
	}
	for _, c := range cases {
		if got := SizeToOrder(c.n); got != c.want {
			t.Errorf("SizeToOrder(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestSizeToOrderRoundTrips(t *testing.T) {
	for order := uint8(3); order < 40; order++ {
		size := OrderToSize(order)
		if got := SizeToOrder(size); got != order {
			t.Errorf("SizeToOrder(OrderToSize(%d)=%d) = %d", order, size, got)
		}
	}
}

func TestRoundUp(t *testing.T) {
	cases := []struct{ v, p, want uint64 }{
		{0, 8, 0}, {1, 8, 8}, {8, 8, 8}, {9, 8, 16}, {4096, 4096, 4096}, {4097, 4096, 8192},
	}
	for _, c := range cases {
		if got := RoundUp(c.v, c.p); got != c.want {
			t.Errorf("RoundUp(%d,%d) = %d, want %d", c.v, c.p, got, c.want)
		}
	}
}

func TestRoundUpPowerOfTwo(t *testing.T) {
	cases := []struct{ n, want uint64 }{
		{0, 0}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {64, 64}, {65, 128},
	}
	for _, c := range cases {
		if got := RoundUpPowerOfTwo(c.n); got != c.want {
			t.Errorf("RoundUpPowerOfTwo(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, n := range []uint64{0, 1, 2, 4, 1024} {
		if !IsPowerOfTwo(n) {
			t.Errorf("IsPowerOfTwo(%d) = false, want true", n)
		}
	}
	for _, n := range []uint64{3, 5, 6, 100} {
		if IsPowerOfTwo(n) {
			t.Errorf("IsPowerOfTwo(%d) = true, want false", n)
		}
	}
}

func TestIsValidAddress(t *testing.T) {
	if IsValidAddress(0) {
		t.Error("zero address must be invalid")
	}
	if !IsValidAddress(0x100) {
		t.Error("256-aligned address in 48-bit space must be valid")
	}
	if IsValidAddress(0x101) {
		t.Error("non-256-aligned address must be invalid")
	}
	if IsValidAddress(uint64(1) << 49) {
		t.Error("address outside 48-bit space must be invalid")
	}
}

func TestOrderDivMul(t *testing.T) {
	if OrderDiv(1024, 3) != 128 {
		t.Error("OrderDiv mismatch")
	}
	if OrderMul(128, 3) != 1024 {
		t.Error("OrderMul mismatch")
	}
}
