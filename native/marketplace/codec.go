package marketplace

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// EncodeMarketplace serialises the configuration in its borsh layout:
// admin(32) | fee_bps(2) | bump(1) | treasury_bump(1) | rewards_bump(1) | name(4+n).
func EncodeMarketplace(m *Marketplace) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(m); err != nil {
		return nil, fmt.Errorf("encode marketplace: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeMarketplace parses a stored configuration record.
func DecodeMarketplace(data []byte) (*Marketplace, error) {
	m := new(Marketplace)
	dec := bin.NewBorshDecoder(data)
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode marketplace: %w", err)
	}
	if dec.Remaining() != 0 {
		return nil, fmt.Errorf("decode marketplace: %d trailing bytes", dec.Remaining())
	}
	if len(m.Name) > MaxNameLength {
		return nil, fmt.Errorf("decode marketplace: %w", ErrNameTooLong)
	}
	return m, nil
}

// EncodeListing serialises a listing: maker(32) | asset(32) | price(8) | bump(1).
func EncodeListing(l *Listing) ([]byte, error) {
	if l == nil {
		return nil, fmt.Errorf("encode listing: nil listing")
	}
	buf := new(bytes.Buffer)
	buf.Grow(ListingSpace)
	if err := bin.NewBorshEncoder(buf).Encode(l); err != nil {
		return nil, fmt.Errorf("encode listing: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeListing parses a stored listing record.
func DecodeListing(data []byte) (*Listing, error) {
	if len(data) != ListingSpace {
		return nil, fmt.Errorf("decode listing: expected %d bytes, got %d", ListingSpace, len(data))
	}
	l := new(Listing)
	if err := bin.NewBorshDecoder(data).Decode(l); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return l, nil
}
