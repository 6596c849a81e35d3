package marketplace

import (
	"errors"

	"nftmarket/core/state"
)

var (
	ErrNameTooLong          = errors.New("marketplace: name is too long")
	ErrInvalidCollection    = errors.New("marketplace: collection is not valid")
	ErrUnverifiedCollection = errors.New("marketplace: collection is not verified")
	ErrNumericalOverflow    = errors.New("marketplace: numerical overflow")
	ErrMathOverflow         = errors.New("marketplace: mathematical operation overflow")
	ErrFeeTooHigh           = errors.New("marketplace: fee percentage too high")
	ErrUnauthorized         = errors.New("marketplace: unauthorized")
	ErrFeeOutOfRange        = errors.New("marketplace: fee bps out of range")
	ErrInvalidPrice         = errors.New("marketplace: price must be positive")
	ErrListingExists        = errors.New("marketplace: listing already exists")
	ErrListingNotFound      = errors.New("marketplace: listing not found")
	ErrAssetNotHeld         = errors.New("marketplace: maker does not hold the asset")
	ErrInsufficientFunds    = errors.New("marketplace: insufficient funds")
	ErrMarketplaceExists    = errors.New("marketplace: already initialized")
	ErrMarketplaceNotFound  = errors.New("marketplace: not found")
	ErrNotMasterEdition     = errors.New("marketplace: asset is not a master edition")

	errNilState  = errors.New("marketplace engine: state not configured")
	errNilOracle = errors.New("marketplace engine: authenticity oracle not configured")
)

// ErrorCode pairs an error with the stable numeric code surfaced to callers.
type ErrorCode struct {
	Err  error
	Code uint32
	Name string
}

var errorCodes = []ErrorCode{
	{ErrNameTooLong, 6000, "NameTooLong"},
	{ErrInvalidCollection, 6001, "InvalidCollection"},
	{ErrUnverifiedCollection, 6002, "UnverifiedCollection"},
	{ErrNumericalOverflow, 6003, "NumericalOverflow"},
	{ErrMathOverflow, 6004, "MathOverflow"},
	{ErrFeeTooHigh, 6005, "FeeTooHigh"},
	{ErrUnauthorized, 6006, "Unauthorized"},
	{ErrFeeOutOfRange, 6007, "FeeOutOfRange"},
	{ErrInvalidPrice, 6008, "InvalidPrice"},
	{ErrListingExists, 6009, "ListingExists"},
	{ErrListingNotFound, 6010, "ListingNotFound"},
	{ErrAssetNotHeld, 6011, "AssetNotHeld"},
	{ErrInsufficientFunds, 6012, "InsufficientFunds"},
	{ErrMarketplaceExists, 6013, "MarketplaceExists"},
	{ErrMarketplaceNotFound, 6014, "MarketplaceNotFound"},
	{ErrNotMasterEdition, 6015, "NotMasterEdition"},
	{state.ErrAuthorityMismatch, 6016, "AuthorityMismatch"},
}

// Classify returns the code entry matching err. ok is false for errors
// outside the marketplace taxonomy.
func Classify(err error) (ErrorCode, bool) {
	if err == nil {
		return ErrorCode{}, false
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.Err) {
			return entry, true
		}
	}
	return ErrorCode{}, false
}

// translateStateErr maps ledger-level failures onto the marketplace
// taxonomy while keeping the original error in the chain.
func translateStateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, state.ErrInsufficientBalance):
		return errors.Join(ErrInsufficientFunds, err)
	case errors.Is(err, state.ErrBalanceOverflow):
		return errors.Join(ErrNumericalOverflow, err)
	case errors.Is(err, state.ErrInsufficientHolding):
		return errors.Join(ErrAssetNotHeld, err)
	default:
		return err
	}
}
