package marketplace

import (
	"fmt"

	"github.com/holiman/uint256"
)

// SplitPrice divides price into the treasury fee and the seller's share:
// fee = floor(price * feeBps / 10000), sellerAmount = price - fee. Each step
// is checked in 64-bit arithmetic; feeBps above the purchase cap is rejected.
func SplitPrice(price uint64, feeBps uint16) (fee, sellerAmount uint64, err error) {
	if feeBps > PurchaseFeeCapBps {
		return 0, 0, fmt.Errorf("%w: %d bps exceeds %d", ErrFeeTooHigh, feeBps, PurchaseFeeCapBps)
	}
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(uint64(feeBps)), uint256.NewInt(price))
	if overflow || !product.IsUint64() {
		return 0, 0, fmt.Errorf("%w: %d * %d", ErrMathOverflow, price, feeBps)
	}
	feeInt := new(uint256.Int).Div(product, uint256.NewInt(bpsDenominator))
	remainder, underflow := new(uint256.Int).SubOverflow(uint256.NewInt(price), feeInt)
	if underflow {
		return 0, 0, fmt.Errorf("%w: %d - %s", ErrMathOverflow, price, feeInt.Dec())
	}
	return feeInt.Uint64(), remainder.Uint64(), nil
}
