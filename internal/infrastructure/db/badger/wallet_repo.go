package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/soldihq/soldi/internal/core/domain"
)

const walletDir = "wallet"

type walletRepository struct {
	store *badgerhold.Store
}

func NewWalletRepository(baseDir string, logger badger.Logger) (domain.OneTimeWalletRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, walletDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet store: %s", err)
	}
	return &walletRepository{store}, nil
}

func (r *walletRepository) Add(ctx context.Context, wallet domain.OneTimeWallet) error {
	if err := r.store.Insert(wallet.ID, wallet); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("wallet %s already exists", wallet.ID)
		}
		return err
	}
	return nil
}

func (r *walletRepository) Get(ctx context.Context, walletID string) (*domain.OneTimeWallet, error) {
	var wallet domain.OneTimeWallet
	if err := r.store.Get(walletID, &wallet); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("wallet %s: %w", walletID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) Update(ctx context.Context, wallet domain.OneTimeWallet) error {
	wallet.UpdatedAt = time.Now()
	if err := r.store.Update(wallet.ID, &wallet); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("wallet %s: %w", wallet.ID, domain.ErrNotFound)
		}
		return err
	}
	return nil
}

func (r *walletRepository) UpdateState(
	ctx context.Context, walletID string, state domain.WalletState,
) error {
	wallet, err := r.Get(ctx, walletID)
	if err != nil {
		return err
	}
	wallet.State = state
	return r.Update(ctx, *wallet)
}

func (r *walletRepository) FindByStates(
	ctx context.Context, states ...domain.WalletState,
) ([]domain.OneTimeWallet, error) {
	values := make([]interface{}, 0, len(states))
	for _, state := range states {
		values = append(values, state)
	}
	var wallets []domain.OneTimeWallet
	if err := r.store.Find(&wallets, badgerhold.Where("State").In(values...)); err != nil {
		return nil, fmt.Errorf("failed to find wallets by state: %w", err)
	}
	return wallets, nil
}

func (r *walletRepository) UpdateStateBulk(
	ctx context.Context, walletIDs []string, state domain.WalletState,
) error {
	if len(walletIDs) == 0 {
		return nil
	}
	keys := make([]interface{}, 0, len(walletIDs))
	for _, id := range walletIDs {
		keys = append(keys, id)
	}
	now := time.Now()
	return r.store.UpdateMatching(
		&domain.OneTimeWallet{}, badgerhold.Where(badgerhold.Key).In(keys...),
		func(record interface{}) error {
			wallet, ok := record.(*domain.OneTimeWallet)
			if !ok {
				return fmt.Errorf("record is not a wallet: %T", record)
			}
			wallet.State = state
			wallet.UpdatedAt = now
			return nil
		},
	)
}

func (r *walletRepository) Close() {
	// nolint:all
	r.store.Close()
}
