package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/soldihq/soldi/internal/core/domain"
	"github.com/soldihq/soldi/internal/core/ports"
	"github.com/soldihq/soldi/utils"
)

// DefaultTokenAccountBatchSize bounds how many token accounts are created or
// closed in a single transaction, to stay under the transaction size limit.
const DefaultTokenAccountBatchSize = 8

// WalletService manages the lifecycle of one-time custodial wallets: key
// generation, token account provisioning, and rent reclamation once a wallet
// is spent or abandoned.
type WalletService struct {
	repoManager ports.RepoManager
	chainSvc    ports.ChainService
	cypher      *SecretCypher

	tokenAccountBatchSize int
}

func NewWalletService(
	repoManager ports.RepoManager, chainSvc ports.ChainService,
	cypher *SecretCypher, tokenAccountBatchSize int,
) *WalletService {
	if tokenAccountBatchSize <= 0 {
		tokenAccountBatchSize = DefaultTokenAccountBatchSize
	}
	return &WalletService{
		repoManager:           repoManager,
		chainSvc:              chainSvc,
		cypher:                cypher,
		tokenAccountBatchSize: tokenAccountBatchSize,
	}
}

// CreateWallet generates a fresh keypair, persists it and optionally creates
// the associated token accounts for every active SPL asset. Provisioning is
// best-effort: a failure there leaves the wallet usable, the accounts are
// created lazily at verification time.
func (s *WalletService) CreateWallet(
	ctx context.Context, provisionTokenAccounts bool,
) (*domain.OneTimeWallet, error) {
	account := solana.NewWallet()
	stored, err := s.cypher.Protect(utils.SerializeKeypair(account.PrivateKey))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	wallet := domain.OneTimeWallet{
		ID:           uuid.NewString(),
		Address:      account.PublicKey().String(),
		StoredSecret: stored,
		State:        domain.WalletCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repoManager.Wallets().Add(ctx, wallet); err != nil {
		return nil, err
	}
	log.Infof("generated one-time wallet %s", wallet.Address)

	if provisionTokenAccounts {
		if err := s.provisionTokenAccounts(ctx, account.PublicKey()); err != nil {
			log.WithError(err).Warnf(
				"failed to provision token accounts for wallet %s", wallet.Address,
			)
		}
	}
	return &wallet, nil
}

func (s *WalletService) provisionTokenAccounts(
	ctx context.Context, owner solana.PublicKey,
) error {
	assets, err := s.repoManager.Assets().ListActive(ctx)
	if err != nil {
		return err
	}
	mints := make([]solana.PublicKey, 0, len(assets))
	for _, asset := range assets {
		if !asset.RequiresMint() {
			continue
		}
		mint, err := solana.PublicKeyFromBase58(asset.Mint)
		if err != nil {
			return fmt.Errorf("invalid mint %s for asset %s: %w", asset.Mint, asset.Symbol, err)
		}
		mints = append(mints, mint)
	}
	for _, batch := range utils.Chunk(mints, s.tokenAccountBatchSize) {
		if err := s.chainSvc.CreateTokenAccounts(ctx, owner, batch); err != nil {
			return err
		}
	}
	return nil
}

// Signer decrypts the wallet's secret material for the duration of a signing
// operation.
func (s *WalletService) Signer(wallet *domain.OneTimeWallet) (solana.PrivateKey, error) {
	secret, err := s.cypher.Reveal(wallet.StoredSecret)
	if err != nil {
		return nil, err
	}
	signer, err := utils.ParseKeypair(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair for wallet %s: %w", wallet.ID, err)
	}
	return signer, nil
}

// CloseWalletTokenAccounts closes the wallet's associated token accounts and
// sends the recovered rent to rentDest. Accounts that were never created, or
// that still hold tokens, are skipped. It returns true when every account
// linked to the wallet is gone, either closed now or never created.
func (s *WalletService) CloseWalletTokenAccounts(
	ctx context.Context, wallet *domain.OneTimeWallet, rentDest solana.PublicKey,
) (bool, error) {
	signer, err := s.Signer(wallet)
	if err != nil {
		return false, err
	}
	owner := signer.PublicKey()

	payment, err := s.repoManager.Payments().GetByWallet(ctx, wallet.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	mints := payment.TokenMints()
	if len(mints) == 0 {
		log.Debugf("no token accounts linked to wallet %s", wallet.Address)
		return true, nil
	}

	// close instructions are built per owning program, so accounts spanning
	// the classic token program and token-2022 go in separate transactions
	toClose := make(map[solana.PublicKey][]solana.PublicKey)
	allClosable := true
	for _, rawMint := range mints {
		mint, err := solana.PublicKeyFromBase58(rawMint)
		if err != nil {
			return false, fmt.Errorf("invalid mint %s: %w", rawMint, err)
		}
		account, err := s.chainSvc.DeriveTokenAccount(owner, mint)
		if err != nil {
			return false, err
		}
		state, err := s.chainSvc.TokenAccountState(ctx, account)
		if err != nil {
			return false, err
		}
		if state == nil {
			continue
		}
		if state.Balance > 0 {
			log.Infof(
				"token account %s of wallet %s still holds tokens, skipping close",
				account, wallet.Address,
			)
			allClosable = false
			continue
		}
		toClose[state.Program] = append(toClose[state.Program], account)
	}
	if len(toClose) == 0 {
		return allClosable, nil
	}

	closed := 0
	for program, accounts := range toClose {
		for _, batch := range utils.Chunk(accounts, s.tokenAccountBatchSize) {
			if err := s.chainSvc.CloseTokenAccounts(ctx, signer, batch, program, rentDest); err != nil {
				return false, err
			}
			closed += len(batch)
		}
	}
	log.Infof("closed %d token accounts of wallet %s", closed, wallet.Address)
	return allClosable, nil
}

// CloseExpiredWallets reclaims rent from wallets whose payment expired, then
// marks them closed. Wallets that fail to close are retried on a later run.
func (s *WalletService) CloseExpiredWallets(
	ctx context.Context, rateLimitDelay time.Duration,
) error {
	wallets, err := s.repoManager.Wallets().FindByStates(ctx, domain.WalletPaymentExpired)
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		return nil
	}
	log.Infof("found %d expired one-time wallets to close", len(wallets))

	rentDest := s.chainSvc.FeePayer()
	closed := make([]string, 0, len(wallets))
	for i := range wallets {
		wallet := wallets[i]
		done, err := s.CloseWalletTokenAccounts(ctx, &wallet, rentDest)
		if err != nil {
			log.WithError(err).Warnf("failed to close expired wallet %s", wallet.Address)
		} else if done {
			closed = append(closed, wallet.ID)
		}
		if rateLimitDelay > 0 {
			time.Sleep(rateLimitDelay)
		}
	}
	if len(closed) == 0 {
		return nil
	}
	if err := s.repoManager.Wallets().UpdateStateBulk(
		ctx, closed, domain.WalletExpiredAndClosed,
	); err != nil {
		return err
	}
	log.Infof("closed %d of %d expired one-time wallets", len(closed), len(wallets))
	return nil
}
