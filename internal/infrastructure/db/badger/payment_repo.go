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

const paymentDir = "payment"

type paymentRepository struct {
	store *badgerhold.Store
}

func NewPaymentRepository(baseDir string, logger badger.Logger) (domain.PaymentRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, paymentDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open payment store: %s", err)
	}
	return &paymentRepository{store}, nil
}

func (r *paymentRepository) Add(ctx context.Context, payment domain.Payment) error {
	if err := r.store.Insert(payment.ID, payment); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("payment %s already exists", payment.ID)
		}
		return err
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, paymentID string) (*domain.Payment, error) {
	var payment domain.Payment
	if err := r.store.Get(paymentID, &payment); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("payment %s: %w", paymentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

func (r *paymentRepository) GetByAddress(ctx context.Context, address string) (*domain.Payment, error) {
	var payment domain.Payment
	if err := r.store.FindOne(&payment, badgerhold.Where("Address").Eq(address)); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("payment with address %s: %w", address, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payment by address: %w", err)
	}
	return &payment, nil
}

func (r *paymentRepository) GetByWallet(ctx context.Context, walletID string) (*domain.Payment, error) {
	var payment domain.Payment
	if err := r.store.FindOne(&payment, badgerhold.Where("WalletID").Eq(walletID)); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("payment for wallet %s: %w", walletID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payment by wallet: %w", err)
	}
	return &payment, nil
}

func (r *paymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	payment.UpdatedAt = time.Now()
	if err := r.store.Update(payment.ID, &payment); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("payment %s: %w", payment.ID, domain.ErrNotFound)
		}
		return err
	}
	return nil
}

func (r *paymentRepository) MarkExpiredBefore(
	ctx context.Context, deadline time.Time,
) ([]domain.Payment, error) {
	// single transaction so a payment settled by a concurrent verification
	// can never be flipped back to expired
	now := time.Now()
	var expired []domain.Payment
	query := badgerhold.Where("Status").Eq(domain.PaymentInitiated).
		And("ExpirationDate").Lt(deadline)
	if err := r.store.UpdateMatching(
		&domain.Payment{}, query,
		func(record interface{}) error {
			payment, ok := record.(*domain.Payment)
			if !ok {
				return fmt.Errorf("record is not a payment: %T", record)
			}
			payment.Status = domain.PaymentExpired
			payment.UpdatedAt = now
			expired = append(expired, *payment)
			return nil
		},
	); err != nil {
		return nil, fmt.Errorf("failed to expire overdue payments: %w", err)
	}
	return expired, nil
}

func (r *paymentRepository) FindInitiated(ctx context.Context, limit int) ([]domain.Payment, error) {
	query := badgerhold.Where("Status").Eq(domain.PaymentInitiated).
		SortBy("UpdatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	var payments []domain.Payment
	if err := r.store.Find(&payments, query); err != nil {
		return nil, fmt.Errorf("failed to find initiated payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) Close() {
	// nolint:all
	r.store.Close()
}
