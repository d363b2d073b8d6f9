package application

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/soldihq/soldi/internal/core/domain"
	"github.com/soldihq/soldi/internal/core/ports"
)

// SweepService forwards settled funds from one-time wallets to the long-lived
// receiving wallet and records the outcome on the wallet state. Submission
// failures never propagate: the wallet is parked in FAILED_TO_SEND_FUNDS and
// picked up again by the settled-wallets batch job.
type SweepService struct {
	repoManager ports.RepoManager
	chainSvc    ports.ChainService
	walletSvc   *WalletService
}

func NewSweepService(
	repoManager ports.RepoManager, chainSvc ports.ChainService, walletSvc *WalletService,
) *SweepService {
	return &SweepService{
		repoManager: repoManager,
		chainSvc:    chainSvc,
		walletSvc:   walletSvc,
	}
}

// Sweep moves amount of the given asset from the one-time wallet to
// destination. When reclaimRent is set and the transfer confirms, the wallet's
// empty token accounts are closed and their rent recovered.
func (s *SweepService) Sweep(
	ctx context.Context,
	wallet *domain.OneTimeWallet, destination solana.PublicKey,
	amount decimal.Decimal, tokenType domain.TokenType, mint string,
	reclaimRent bool,
) error {
	if tokenType == domain.TokenTypeSPL && mint == "" {
		return fmt.Errorf("a mint is required to sweep an SPL token")
	}

	wallets := s.repoManager.Wallets()
	if err := wallets.UpdateState(ctx, wallet.ID, domain.WalletProcessingFunds); err != nil {
		return err
	}
	wallet.State = domain.WalletProcessingFunds

	signer, err := s.walletSvc.Signer(wallet)
	if err != nil {
		return err
	}

	log.Infof(
		"sweeping %s %s from wallet %s to %s",
		amount, tokenType, wallet.Address, destination,
	)

	var result *ports.SendResult
	var sendErr error
	if tokenType == domain.TokenTypeSPL {
		mintKey, err := solana.PublicKeyFromBase58(mint)
		if err != nil {
			return fmt.Errorf("invalid mint %s: %w", mint, err)
		}
		result, sendErr = s.chainSvc.SendToken(ctx, signer, destination, mintKey, amount)
	} else {
		result, sendErr = s.chainSvc.SendNative(ctx, signer, destination, amount)
	}

	wallet.ReceiverAddress = destination.String()
	if sendErr != nil {
		log.WithError(sendErr).Errorf("failed to sweep funds from wallet %s", wallet.Address)
		wallet.State = domain.WalletFailedToSendFunds
		return wallets.Update(ctx, *wallet)
	}

	if !result.Status.AtLeast(ports.ConfirmationConfirmed) {
		log.Warnf(
			"sweep %s from wallet %s did not confirm, will retry",
			result.Signature, wallet.Address,
		)
		wallet.State = domain.WalletFailedToSendFunds
		return wallets.Update(ctx, *wallet)
	}

	wallet.State = domain.WalletSentFunds
	if err := wallets.Update(ctx, *wallet); err != nil {
		return err
	}
	log.Infof("swept funds from wallet %s, tx %s", wallet.Address, result.Signature)

	if reclaimRent {
		if _, err := s.walletSvc.CloseWalletTokenAccounts(
			ctx, wallet, s.chainSvc.FeePayer(),
		); err != nil {
			log.WithError(err).Warnf(
				"failed to reclaim token account rent for wallet %s", wallet.Address,
			)
		}
	}
	return nil
}
