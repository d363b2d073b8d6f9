package solanachain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/soldihq/soldi/internal/core/ports"
)

const (
	submitMaxRetries       = 4
	submitInitialInterval  = time.Second
	submitMaxInterval      = 5 * time.Second
	defaultConfirmTimeout  = 45 * time.Second
	defaultConfirmInterval = 2 * time.Second
)

// service talks to a Solana cluster over JSON-RPC. Amounts cross this
// boundary as decimals holding raw base units (lamports for the native coin,
// raw token units for SPL assets).
type service struct {
	client   *rpc.Client
	feePayer solana.PrivateKey

	readCommitment rpc.CommitmentType
	confirmTimeout time.Duration
}

func NewService(
	rpcURL string, feePayer solana.PrivateKey, readCommitment rpc.CommitmentType,
) (ports.ChainService, error) {
	if len(feePayer) != 64 {
		return nil, fmt.Errorf("invalid fee payer keypair")
	}
	if readCommitment == "" {
		readCommitment = rpc.CommitmentConfirmed
	}
	return &service{
		client:         rpc.New(rpcURL),
		feePayer:       feePayer,
		readCommitment: readCommitment,
		confirmTimeout: defaultConfirmTimeout,
	}, nil
}

func (s *service) FeePayer() solana.PublicKey {
	return s.feePayer.PublicKey()
}

func (s *service) NativeBalance(
	ctx context.Context, addr solana.PublicKey,
) (decimal.Decimal, error) {
	resp, err := s.client.GetBalance(ctx, addr, s.readCommitment)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance of %s: %w", addr, err)
	}
	return rawAmount(resp.Value), nil
}

func (s *service) TokenBalance(
	ctx context.Context, owner, mint solana.PublicKey,
) (decimal.Decimal, error) {
	account, err := s.DeriveTokenAccount(owner, mint)
	if err != nil {
		return decimal.Zero, err
	}
	// an account that was never created holds nothing
	if _, err := s.client.GetAccountInfo(ctx, account); err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("failed to get account %s: %w", account, err)
	}
	resp, err := s.client.GetTokenAccountBalance(ctx, account, s.readCommitment)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get token balance of %s: %w", account, err)
	}
	if resp.Value == nil {
		return decimal.Zero, nil
	}
	balance, err := decimal.NewFromString(resp.Value.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid token amount %s: %w", resp.Value.Amount, err)
	}
	return balance, nil
}

func (s *service) DeriveTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	account, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf(
			"failed to derive token account for %s: %w", owner, err,
		)
	}
	return account, nil
}

func (s *service) EnsureTokenAccount(
	ctx context.Context, owner, mint solana.PublicKey,
) (solana.PublicKey, error) {
	account, err := s.DeriveTokenAccount(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	_, err = s.client.GetAccountInfo(ctx, account)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, rpc.ErrNotFound) {
		return solana.PublicKey{}, fmt.Errorf("failed to get account %s: %w", account, err)
	}
	if err := s.CreateTokenAccounts(ctx, owner, []solana.PublicKey{mint}); err != nil {
		return solana.PublicKey{}, err
	}
	return account, nil
}

func (s *service) CreateTokenAccounts(
	ctx context.Context, owner solana.PublicKey, mints []solana.PublicKey,
) error {
	if len(mints) == 0 {
		return nil
	}
	builder := solana.NewTransactionBuilder().SetFeePayer(s.feePayer.PublicKey())
	for _, mint := range mints {
		ix, err := associatedtokenaccount.NewCreateInstruction(
			s.feePayer.PublicKey(), owner, mint,
		).ValidateAndBuild()
		if err != nil {
			return fmt.Errorf("failed to build create account instruction: %w", err)
		}
		builder = builder.AddInstruction(ix)
	}

	result, err := s.signAndSubmit(ctx, builder, s.feePayer)
	if err != nil {
		return err
	}
	log.Debugf("created %d token accounts for %s, tx %s", len(mints), owner, result.Signature)
	return nil
}

func (s *service) TokenAccountState(
	ctx context.Context, account solana.PublicKey,
) (*ports.TokenAccountState, error) {
	info, err := s.client.GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account %s: %w", account, err)
	}
	if info.Value == nil {
		return nil, nil
	}

	var data token.Account
	if err := bin.NewBinDecoder(info.Value.Data.GetBinary()).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode token account %s: %w", account, err)
	}
	return &ports.TokenAccountState{
		Balance: data.Amount,
		Program: info.Value.Owner,
	}, nil
}

func (s *service) CloseTokenAccounts(
	ctx context.Context,
	owner solana.PrivateKey, accounts []solana.PublicKey,
	program, rentDest solana.PublicKey,
) error {
	if len(accounts) == 0 {
		return nil
	}
	if !program.IsZero() && !program.Equals(solana.TokenProgramID) {
		return fmt.Errorf("unsupported token program %s", program)
	}

	builder := solana.NewTransactionBuilder().SetFeePayer(s.feePayer.PublicKey())
	for _, account := range accounts {
		ix, err := token.NewCloseAccountInstruction(
			account, rentDest, owner.PublicKey(), nil,
		).ValidateAndBuild()
		if err != nil {
			return fmt.Errorf("failed to build close account instruction: %w", err)
		}
		builder = builder.AddInstruction(ix)
	}

	result, err := s.signAndSubmit(ctx, builder, s.feePayer, owner)
	if err != nil {
		return err
	}
	log.Debugf("closed %d token accounts of %s, tx %s", len(accounts), owner.PublicKey(), result.Signature)
	return nil
}

func (s *service) RecentTransactions(
	ctx context.Context, addr solana.PublicKey, limit int,
) ([]ports.TxEvidence, error) {
	opts := &rpc.GetSignaturesForAddressOpts{Commitment: s.readCommitment}
	if limit > 0 {
		opts.Limit = &limit
	}
	sigs, err := s.client.GetSignaturesForAddressWithOpts(ctx, addr, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures for %s: %w", addr, err)
	}

	maxVersion := uint64(0)
	evidence := make([]ports.TxEvidence, 0, len(sigs))
	for _, sig := range sigs {
		if sig.Err != nil {
			continue
		}
		resp, err := s.client.GetTransaction(ctx, sig.Signature, &rpc.GetTransactionOpts{
			Commitment:                     s.readCommitment,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get transaction %s: %w", sig.Signature, err)
		}
		tx, err := resp.Transaction.GetTransaction()
		if err != nil {
			return nil, fmt.Errorf("failed to decode transaction %s: %w", sig.Signature, err)
		}
		if len(tx.Message.AccountKeys) == 0 {
			continue
		}
		evidence = append(evidence, ports.TxEvidence{
			Signature: sig.Signature,
			// the first account key of a transaction message is its fee payer
			FeePayer: tx.Message.AccountKeys[0],
		})
	}
	return evidence, nil
}

func (s *service) ConfirmationStatus(
	ctx context.Context, sig solana.Signature,
) (ports.ConfirmationStatus, error) {
	resp, err := s.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return ports.ConfirmationUnknown, fmt.Errorf(
			"failed to get status of %s: %w", sig, err,
		)
	}
	if len(resp.Value) == 0 || resp.Value[0] == nil {
		return ports.ConfirmationUnknown, nil
	}
	return fromRPCStatus(resp.Value[0].ConfirmationStatus), nil
}

func (s *service) SendNative(
	ctx context.Context,
	signer solana.PrivateKey, dest solana.PublicKey, amount decimal.Decimal,
) (*ports.SendResult, error) {
	lamports := amount.BigInt()
	if !lamports.IsUint64() || lamports.Uint64() == 0 {
		return nil, fmt.Errorf("invalid native amount %s", amount)
	}

	ix := system.NewTransferInstruction(
		lamports.Uint64(), signer.PublicKey(), dest,
	).Build()
	// the service wallet pays the fee so the full balance can move
	builder := solana.NewTransactionBuilder().
		AddInstruction(ix).
		SetFeePayer(s.feePayer.PublicKey())

	return s.signAndSubmit(ctx, builder, s.feePayer, signer)
}

func (s *service) SendToken(
	ctx context.Context,
	signer solana.PrivateKey, dest, mint solana.PublicKey, amount decimal.Decimal,
) (*ports.SendResult, error) {
	raw := amount.BigInt()
	if !raw.IsUint64() || raw.Uint64() == 0 {
		return nil, fmt.Errorf("invalid token amount %s", amount)
	}

	source, err := s.DeriveTokenAccount(signer.PublicKey(), mint)
	if err != nil {
		return nil, err
	}
	destination, err := s.EnsureTokenAccount(ctx, dest, mint)
	if err != nil {
		return nil, err
	}
	decimals, err := s.mintDecimals(ctx, mint)
	if err != nil {
		return nil, err
	}

	ix, err := token.NewTransferCheckedInstructionBuilder().
		SetAmount(raw.Uint64()).
		SetDecimals(decimals).
		SetSourceAccount(source).
		SetMintAccount(mint).
		SetDestinationAccount(destination).
		SetOwnerAccount(signer.PublicKey()).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer instruction: %w", err)
	}

	builder := solana.NewTransactionBuilder().
		AddInstruction(ix).
		SetFeePayer(s.feePayer.PublicKey())

	return s.signAndSubmit(ctx, builder, s.feePayer, signer)
}

func (s *service) mintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	info, err := s.client.GetAccountInfo(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("failed to get mint account %s: %w", mint, err)
	}
	var data token.Mint
	if err := bin.NewBinDecoder(info.Value.Data.GetBinary()).Decode(&data); err != nil {
		return 0, fmt.Errorf("failed to decode mint %s: %w", mint, err)
	}
	return data.Decimals, nil
}

// signAndSubmit finalizes the transaction with a fresh blockhash, signs it
// with the given keys and submits it, retrying transient RPC failures with
// capped exponential backoff. It then waits for the transaction to reach the
// confirmed commitment; on timeout the last observed status is returned.
func (s *service) signAndSubmit(
	ctx context.Context,
	builder *solana.TransactionBuilder, signers ...solana.PrivateKey,
) (*ports.SendResult, error) {
	blockhash, err := s.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	tx, err := builder.SetRecentBlockHash(blockhash.Value.Blockhash).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	keyring := make(map[solana.PublicKey]*solana.PrivateKey, len(signers))
	for i := range signers {
		keyring[signers[i].PublicKey()] = &signers[i]
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		return keyring[key]
	}); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	var sig solana.Signature
	submit := func() error {
		var err error
		sig, err = s.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
		if err != nil {
			log.WithError(err).Debug("transaction submission failed, retrying")
		}
		return err
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = submitInitialInterval
	policy.MaxInterval = submitMaxInterval
	if err := backoff.Retry(submit, backoff.WithContext(
		backoff.WithMaxRetries(policy, submitMaxRetries), ctx,
	)); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	status, err := s.waitForConfirmation(ctx, sig)
	if err != nil {
		return nil, err
	}
	return &ports.SendResult{Signature: sig, Status: status}, nil
}

func (s *service) waitForConfirmation(
	ctx context.Context, sig solana.Signature,
) (ports.ConfirmationStatus, error) {
	deadline := time.Now().Add(s.confirmTimeout)
	ticker := time.NewTicker(defaultConfirmInterval)
	defer ticker.Stop()

	last := ports.ConfirmationUnknown
	for {
		status, err := s.ConfirmationStatus(ctx, sig)
		if err != nil {
			return last, err
		}
		last = status
		if status.AtLeast(ports.ConfirmationConfirmed) || time.Now().After(deadline) {
			return last, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

func rawAmount(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func fromRPCStatus(status rpc.ConfirmationStatusType) ports.ConfirmationStatus {
	switch status {
	case rpc.ConfirmationStatusProcessed:
		return ports.ConfirmationProcessed
	case rpc.ConfirmationStatusConfirmed:
		return ports.ConfirmationConfirmed
	case rpc.ConfirmationStatusFinalized:
		return ports.ConfirmationFinalized
	}
	return ports.ConfirmationUnknown
}
