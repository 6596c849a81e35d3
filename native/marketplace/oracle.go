package marketplace

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// AssetMetadata is what the authenticity oracle knows about an asset.
type AssetMetadata struct {
	Asset         solana.PublicKey
	Collection    solana.PublicKey
	Verified      bool
	MasterEdition bool
}

// AuthenticityOracle answers whether an asset belongs to a collection. It is
// consulted only when a listing is created.
type AuthenticityOracle interface {
	AssetMetadata(ctx context.Context, asset solana.PublicKey) (*AssetMetadata, bool, error)
}

// VerifyCollection checks that asset is a singleton edition whose verified
// collection is collection.
func VerifyCollection(ctx context.Context, oracle AuthenticityOracle, asset, collection solana.PublicKey) error {
	if oracle == nil {
		return errNilOracle
	}
	meta, ok, err := oracle.AssetMetadata(ctx, asset)
	if err != nil {
		return fmt.Errorf("marketplace: authenticity lookup for %s: %w", asset, err)
	}
	if !ok || meta == nil || meta.Collection.IsZero() || !meta.Collection.Equals(collection) {
		return fmt.Errorf("%w: asset %s, collection %s", ErrInvalidCollection, asset, collection)
	}
	if !meta.Verified {
		return fmt.Errorf("%w: asset %s, collection %s", ErrUnverifiedCollection, asset, collection)
	}
	if !meta.MasterEdition {
		return fmt.Errorf("%w: %s", ErrNotMasterEdition, asset)
	}
	return nil
}
