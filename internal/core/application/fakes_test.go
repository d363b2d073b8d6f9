package application_test

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/soldihq/soldi/internal/core/domain"
	"github.com/soldihq/soldi/internal/core/ports"
)

type fakePaymentRepo struct {
	payments map[string]domain.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]domain.Payment)}
}

func (r *fakePaymentRepo) Add(_ context.Context, payment domain.Payment) error {
	if _, ok := r.payments[payment.ID]; ok {
		return fmt.Errorf("payment %s already exists", payment.ID)
	}
	r.payments[payment.ID] = payment
	return nil
}

func (r *fakePaymentRepo) Get(_ context.Context, paymentID string) (*domain.Payment, error) {
	payment, ok := r.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", paymentID, domain.ErrNotFound)
	}
	return &payment, nil
}

func (r *fakePaymentRepo) GetByAddress(_ context.Context, address string) (*domain.Payment, error) {
	for _, payment := range r.payments {
		if payment.Address == address {
			p := payment
			return &p, nil
		}
	}
	return nil, fmt.Errorf("payment with address %s: %w", address, domain.ErrNotFound)
}

func (r *fakePaymentRepo) GetByWallet(_ context.Context, walletID string) (*domain.Payment, error) {
	for _, payment := range r.payments {
		if payment.WalletID == walletID {
			p := payment
			return &p, nil
		}
	}
	return nil, fmt.Errorf("payment for wallet %s: %w", walletID, domain.ErrNotFound)
}

func (r *fakePaymentRepo) Update(_ context.Context, payment domain.Payment) error {
	if _, ok := r.payments[payment.ID]; !ok {
		return fmt.Errorf("payment %s: %w", payment.ID, domain.ErrNotFound)
	}
	payment.UpdatedAt = time.Now()
	r.payments[payment.ID] = payment
	return nil
}

func (r *fakePaymentRepo) MarkExpiredBefore(
	_ context.Context, deadline time.Time,
) ([]domain.Payment, error) {
	var expired []domain.Payment
	for id, payment := range r.payments {
		if payment.Status != domain.PaymentInitiated || !payment.ExpirationDate.Before(deadline) {
			continue
		}
		payment.Status = domain.PaymentExpired
		r.payments[id] = payment
		expired = append(expired, payment)
	}
	return expired, nil
}

func (r *fakePaymentRepo) FindInitiated(_ context.Context, limit int) ([]domain.Payment, error) {
	var payments []domain.Payment
	for _, payment := range r.payments {
		if payment.Status != domain.PaymentInitiated {
			continue
		}
		payments = append(payments, payment)
	}
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].UpdatedAt.After(payments[j].UpdatedAt)
	})
	if limit > 0 && len(payments) > limit {
		payments = payments[:limit]
	}
	return payments, nil
}

func (r *fakePaymentRepo) Close() {}

type fakeWalletRepo struct {
	wallets map[string]domain.OneTimeWallet
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{wallets: make(map[string]domain.OneTimeWallet)}
}

func (r *fakeWalletRepo) Add(_ context.Context, wallet domain.OneTimeWallet) error {
	if _, ok := r.wallets[wallet.ID]; ok {
		return fmt.Errorf("wallet %s already exists", wallet.ID)
	}
	r.wallets[wallet.ID] = wallet
	return nil
}

func (r *fakeWalletRepo) Get(_ context.Context, walletID string) (*domain.OneTimeWallet, error) {
	wallet, ok := r.wallets[walletID]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", walletID, domain.ErrNotFound)
	}
	return &wallet, nil
}

func (r *fakeWalletRepo) Update(_ context.Context, wallet domain.OneTimeWallet) error {
	if _, ok := r.wallets[wallet.ID]; !ok {
		return fmt.Errorf("wallet %s: %w", wallet.ID, domain.ErrNotFound)
	}
	wallet.UpdatedAt = time.Now()
	r.wallets[wallet.ID] = wallet
	return nil
}

func (r *fakeWalletRepo) UpdateState(
	ctx context.Context, walletID string, state domain.WalletState,
) error {
	wallet, err := r.Get(ctx, walletID)
	if err != nil {
		return err
	}
	wallet.State = state
	return r.Update(ctx, *wallet)
}

func (r *fakeWalletRepo) FindByStates(
	_ context.Context, states ...domain.WalletState,
) ([]domain.OneTimeWallet, error) {
	var wallets []domain.OneTimeWallet
	for _, wallet := range r.wallets {
		for _, state := range states {
			if wallet.State == state {
				wallets = append(wallets, wallet)
				break
			}
		}
	}
	return wallets, nil
}

func (r *fakeWalletRepo) UpdateStateBulk(
	ctx context.Context, walletIDs []string, state domain.WalletState,
) error {
	for _, id := range walletIDs {
		if err := r.UpdateState(ctx, id, state); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeWalletRepo) Close() {}

type fakeAssetCatalog struct {
	assets map[string]domain.AcceptedAsset
}

func newFakeAssetCatalog() *fakeAssetCatalog {
	return &fakeAssetCatalog{assets: make(map[string]domain.AcceptedAsset)}
}

func (r *fakeAssetCatalog) ListActive(_ context.Context) ([]domain.AcceptedAsset, error) {
	var assets []domain.AcceptedAsset
	for _, asset := range r.assets {
		if asset.Active {
			assets = append(assets, asset)
		}
	}
	return assets, nil
}

func (r *fakeAssetCatalog) Upsert(_ context.Context, asset domain.AcceptedAsset) error {
	r.assets[asset.Symbol] = asset
	return nil
}

func (r *fakeAssetCatalog) Close() {}

type fakeRepoManager struct {
	payments *fakePaymentRepo
	wallets  *fakeWalletRepo
	assets   *fakeAssetCatalog
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		payments: newFakePaymentRepo(),
		wallets:  newFakeWalletRepo(),
		assets:   newFakeAssetCatalog(),
	}
}

func (m *fakeRepoManager) Payments() domain.PaymentRepository      { return m.payments }
func (m *fakeRepoManager) Wallets() domain.OneTimeWalletRepository { return m.wallets }
func (m *fakeRepoManager) Assets() domain.AssetCatalog             { return m.assets }
func (m *fakeRepoManager) Close()                                  {}

type sendRecord struct {
	from   solana.PublicKey
	dest   solana.PublicKey
	mint   solana.PublicKey
	amount decimal.Decimal
	native bool
}

type closeRecord struct {
	accounts []solana.PublicKey
	program  solana.PublicKey
}

// fakeChain is an in-memory stand-in for the chain gateway. Balances, history
// and confirmation statuses are seeded by the test; every mutating call is
// recorded.
type fakeChain struct {
	feePayer solana.PrivateKey

	native   map[solana.PublicKey]decimal.Decimal
	tokens   map[string]decimal.Decimal
	history  map[solana.PublicKey][]ports.TxEvidence
	statuses map[solana.Signature]ports.ConfirmationStatus
	states   map[solana.PublicKey]*ports.TokenAccountState

	sendStatus ports.ConfirmationStatus
	sendErr    error

	created [][]solana.PublicKey
	closed  []closeRecord
	sends   []sendRecord

	readCalls int
}

func newFakeChain() *fakeChain {
	feePayer := solana.NewWallet().PrivateKey
	return &fakeChain{
		feePayer:   feePayer,
		native:     make(map[solana.PublicKey]decimal.Decimal),
		tokens:     make(map[string]decimal.Decimal),
		history:    make(map[solana.PublicKey][]ports.TxEvidence),
		statuses:   make(map[solana.Signature]ports.ConfirmationStatus),
		states:     make(map[solana.PublicKey]*ports.TokenAccountState),
		sendStatus: ports.ConfirmationFinalized,
	}
}

func tokenKey(owner, mint solana.PublicKey) string {
	return owner.String() + "/" + mint.String()
}

func randomSignature() solana.Signature {
	var sig solana.Signature
	// nolint:all
	rand.Read(sig[:])
	return sig
}

func (c *fakeChain) FeePayer() solana.PublicKey {
	return c.feePayer.PublicKey()
}

func (c *fakeChain) NativeBalance(
	_ context.Context, addr solana.PublicKey,
) (decimal.Decimal, error) {
	c.readCalls++
	return c.native[addr], nil
}

func (c *fakeChain) TokenBalance(
	_ context.Context, owner, mint solana.PublicKey,
) (decimal.Decimal, error) {
	c.readCalls++
	return c.tokens[tokenKey(owner, mint)], nil
}

func (c *fakeChain) DeriveTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	account, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	return account, err
}

func (c *fakeChain) EnsureTokenAccount(
	_ context.Context, owner, mint solana.PublicKey,
) (solana.PublicKey, error) {
	account, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	return account, err
}

func (c *fakeChain) CreateTokenAccounts(
	_ context.Context, _ solana.PublicKey, mints []solana.PublicKey,
) error {
	c.created = append(c.created, mints)
	return nil
}

func (c *fakeChain) TokenAccountState(
	_ context.Context, account solana.PublicKey,
) (*ports.TokenAccountState, error) {
	return c.states[account], nil
}

func (c *fakeChain) CloseTokenAccounts(
	_ context.Context,
	_ solana.PrivateKey, accounts []solana.PublicKey, program, _ solana.PublicKey,
) error {
	c.closed = append(c.closed, closeRecord{accounts: accounts, program: program})
	return nil
}

func (c *fakeChain) RecentTransactions(
	_ context.Context, addr solana.PublicKey, limit int,
) ([]ports.TxEvidence, error) {
	c.readCalls++
	txs := c.history[addr]
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (c *fakeChain) ConfirmationStatus(
	_ context.Context, sig solana.Signature,
) (ports.ConfirmationStatus, error) {
	return c.statuses[sig], nil
}

func (c *fakeChain) SendNative(
	_ context.Context, signer solana.PrivateKey, dest solana.PublicKey, amount decimal.Decimal,
) (*ports.SendResult, error) {
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	c.sends = append(c.sends, sendRecord{
		from: signer.PublicKey(), dest: dest, amount: amount, native: true,
	})
	return &ports.SendResult{Signature: randomSignature(), Status: c.sendStatus}, nil
}

func (c *fakeChain) SendToken(
	_ context.Context,
	signer solana.PrivateKey, dest, mint solana.PublicKey, amount decimal.Decimal,
) (*ports.SendResult, error) {
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	c.sends = append(c.sends, sendRecord{
		from: signer.PublicKey(), dest: dest, mint: mint, amount: amount,
	})
	return &ports.SendResult{Signature: randomSignature(), Status: c.sendStatus}, nil
}

type fakePublisher struct {
	events []domain.PaymentAcceptedEvent
}

func (p *fakePublisher) PublishPaymentAccepted(
	_ context.Context, event domain.PaymentAcceptedEvent,
) error {
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Close() {}
