package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/soldihq/soldi/internal/core/domain"
)

const assetDir = "asset"

type assetCatalog struct {
	store *badgerhold.Store
}

func NewAssetCatalog(baseDir string, logger badger.Logger) (domain.AssetCatalog, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, assetDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset store: %s", err)
	}
	return &assetCatalog{store}, nil
}

func (r *assetCatalog) ListActive(ctx context.Context) ([]domain.AcceptedAsset, error) {
	var assets []domain.AcceptedAsset
	if err := r.store.Find(&assets, badgerhold.Where("Active").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to list active assets: %w", err)
	}
	return assets, nil
}

func (r *assetCatalog) Upsert(ctx context.Context, asset domain.AcceptedAsset) error {
	if asset.Symbol == "" {
		return fmt.Errorf("asset symbol is required")
	}
	if asset.RequiresMint() && asset.Mint == "" {
		return fmt.Errorf("asset %s is an SPL token and needs a mint", asset.Symbol)
	}
	return r.store.Upsert(asset.Symbol, asset)
}

func (r *assetCatalog) Close() {
	// nolint:all
	r.store.Close()
}
