package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"

	"nftmarket/native/marketplace"
)

// ErrDuplicateAsset indicates the registry already holds metadata for an asset.
var ErrDuplicateAsset = errors.New("oracle: duplicate asset")

// Registry is an in-process authenticity oracle keyed by asset identity.
type Registry struct {
	mu     sync.RWMutex
	assets map[solana.PublicKey]marketplace.AssetMetadata
}

// entryFile mirrors the YAML representation of a registry entry.
type entryFile struct {
	Asset         string `yaml:"asset"`
	Collection    string `yaml:"collection"`
	Verified      bool   `yaml:"verified"`
	MasterEdition *bool  `yaml:"master_edition"`
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{assets: make(map[solana.PublicKey]marketplace.AssetMetadata)}
}

// LoadRegistry reads registry entries from the YAML file at path.
func LoadRegistry(path string) (*Registry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open oracle registry: %w", err)
	}
	defer file.Close()
	return ParseRegistry(file)
}

// ParseRegistry decodes a YAML list of entries. master_edition defaults to
// true when omitted.
func ParseRegistry(r io.Reader) (*Registry, error) {
	var entries []entryFile
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode oracle registry: %w", err)
	}
	registry := NewRegistry()
	for i, entry := range entries {
		asset, err := solana.PublicKeyFromBase58(strings.TrimSpace(entry.Asset))
		if err != nil {
			return nil, fmt.Errorf("entry %d asset: %w", i, err)
		}
		collection, err := solana.PublicKeyFromBase58(strings.TrimSpace(entry.Collection))
		if err != nil {
			return nil, fmt.Errorf("entry %d collection: %w", i, err)
		}
		master := true
		if entry.MasterEdition != nil {
			master = *entry.MasterEdition
		}
		if err := registry.Register(marketplace.AssetMetadata{
			Asset:         asset,
			Collection:    collection,
			Verified:      entry.Verified,
			MasterEdition: master,
		}); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return registry, nil
}

// Register adds metadata for a new asset.
func (r *Registry) Register(meta marketplace.AssetMetadata) error {
	if meta.Asset.IsZero() {
		return fmt.Errorf("oracle: asset required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.assets[meta.Asset]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAsset, meta.Asset)
	}
	r.assets[meta.Asset] = meta
	return nil
}

// Len returns the number of registered assets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.assets)
}

// AssetMetadata implements marketplace.AuthenticityOracle.
func (r *Registry) AssetMetadata(ctx context.Context, asset solana.PublicKey) (*marketplace.AssetMetadata, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.assets[asset]
	if !ok {
		return nil, false, nil
	}
	return &meta, true, nil
}
