package marketplace

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"

	"nftmarket/core/state"
)

// DefaultProgramID is the program identity the marketplace derives its
// addresses under when none is configured.
var DefaultProgramID = solana.PublicKeyFromBytes(ethcrypto.Keccak256([]byte("nftmarket/escrow/v1")))

var (
	marketplaceSeed = []byte("marketplace")
	treasurySeed    = []byte("treasury")
	rewardsSeed     = []byte("rewards")
	vaultSeed       = []byte("vault")
)

// MarketplaceAddress derives the configuration record address for name.
func MarketplaceAddress(program solana.PublicKey, name string) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{marketplaceSeed, []byte(name)}, program)
}

// TreasuryAddress derives the fee treasury of a marketplace.
func TreasuryAddress(program, marketplace solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{treasurySeed, marketplace[:]}, program)
}

// RewardsAddress derives the rewards address of a marketplace. Only its bump
// is persisted.
func RewardsAddress(program, marketplace solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{rewardsSeed, marketplace[:]}, program)
}

// ListingAddress derives the listing record address, which is also the
// custody authority of the listing's vault.
func ListingAddress(program, marketplace, asset solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{marketplace[:], asset[:]}, program)
}

// VaultAddress derives the custody account holding a listed asset.
func VaultAddress(program, listing, asset solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{listing[:], vaultSeed, asset[:]}, program)
}

// ListingSigner returns the seeds that stand in for the listing's signature
// on vault operations.
func ListingSigner(marketplace, asset solana.PublicKey, bump uint8) state.SignerSeeds {
	return state.SignerSeeds{
		Seeds: [][]byte{append([]byte(nil), marketplace[:]...), append([]byte(nil), asset[:]...)},
		Bump:  bump,
	}
}

func treasuryFromBump(program, marketplace solana.PublicKey, bump uint8) (solana.PublicKey, error) {
	return solana.CreateProgramAddress([][]byte{treasurySeed, marketplace[:], {bump}}, program)
}
