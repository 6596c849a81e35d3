package marketplace

import (
	"errors"
	"math"
	"testing"
)

func TestSplitPriceReferenceSale(t *testing.T) {
	fee, seller, err := SplitPrice(1_000_000, 250)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if fee != 25_000 || seller != 975_000 {
		t.Fatalf("unexpected split: fee=%d seller=%d", fee, seller)
	}
}

func TestSplitPriceConservesPrice(t *testing.T) {
	prices := []uint64{1, 3, 9_999, 10_000, 10_001, 123_456_789, math.MaxUint64 / PurchaseFeeCapBps}
	for _, price := range prices {
		for _, bps := range []uint16{0, 1, 33, 250, 4_999, PurchaseFeeCapBps} {
			fee, seller, err := SplitPrice(price, bps)
			if err != nil {
				t.Fatalf("split %d@%d: %v", price, bps, err)
			}
			if fee+seller != price {
				t.Fatalf("split %d@%d leaked lamports: fee=%d seller=%d", price, bps, fee, seller)
			}
			if fee > price/2 {
				t.Fatalf("fee %d exceeds half of %d", fee, price)
			}
		}
	}
}

func TestSplitPriceRoundsFeeDown(t *testing.T) {
	fee, seller, err := SplitPrice(399, 250)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if fee != 9 || seller != 390 {
		t.Fatalf("expected floor rounding, got fee=%d seller=%d", fee, seller)
	}
}

func TestSplitPriceFeeCap(t *testing.T) {
	if _, _, err := SplitPrice(1_000, PurchaseFeeCapBps+1); !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("expected ErrFeeTooHigh, got %v", err)
	}
	if _, _, err := SplitPrice(1_000, MaxFeeBps); !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("expected ErrFeeTooHigh at 100%%, got %v", err)
	}
}

func TestSplitPriceOverflow(t *testing.T) {
	if _, _, err := SplitPrice(math.MaxUint64, 2); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected ErrMathOverflow, got %v", err)
	}
	fee, seller, err := SplitPrice(math.MaxUint64, 0)
	if err != nil {
		t.Fatalf("zero fee must not overflow: %v", err)
	}
	if fee != 0 || seller != math.MaxUint64 {
		t.Fatalf("unexpected split: fee=%d seller=%d", fee, seller)
	}
}
