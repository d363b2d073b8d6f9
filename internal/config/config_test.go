package config_test

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/soldihq/soldi/internal/config"
	"github.com/soldihq/soldi/internal/core/ports"
	"github.com/soldihq/soldi/utils"
)

func setRequiredEnv(t *testing.T) (solana.PublicKey, solana.PrivateKey) {
	receiver := solana.NewWallet().PublicKey()
	feePayer := solana.NewWallet().PrivateKey
	t.Setenv("SOLDI_DATADIR", t.TempDir())
	t.Setenv("SOLDI_RECEIVER_ADDRESS", receiver.String())
	t.Setenv("SOLDI_FEE_PAYER_KEY", utils.SerializeKeypair(feePayer))
	return receiver, feePayer
}

func TestLoadConfigDefaults(t *testing.T) {
	receiver, feePayer := setRequiredEnv(t)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "badger", cfg.DbType)
	require.Equal(t, uint32(30), cfg.ExpirationMinutes)
	require.Equal(t, uint32(8), cfg.TokenAccountBatchSize)
	require.Equal(t, ports.ConfirmationFinalized, cfg.AcceptanceCommitment())
	require.Equal(t, receiver, cfg.Receiver())
	require.Equal(t, feePayer, cfg.FeePayer())
	require.False(t, cfg.EncryptWalletSecrets)
}

func TestLoadConfigMissingReceiver(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SOLDI_RECEIVER_ADDRESS", "")

	_, err := config.LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigMissingFeePayer(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SOLDI_FEE_PAYER_KEY", "not a keypair")

	_, err := config.LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigInvalidCommitment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SOLDI_COMMITMENT", "instant")

	_, err := config.LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigEncryptionRequiresKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SOLDI_ENCRYPT_WALLET_SECRETS", "true")

	_, err := config.LoadConfig()
	require.Error(t, err)

	t.Setenv("SOLDI_WALLET_ENCRYPTION_KEY", "some key")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.EncryptWalletSecrets)
}

func TestEnvSpecsCoverConfigFields(t *testing.T) {
	specs := config.EnvSpecs()
	require.NotEmpty(t, specs)

	byName := make(map[string]config.EnvVar)
	for _, spec := range specs {
		require.Equal(t, "SOLDI_"+spec.Name, spec.FullName)
		byName[spec.Name] = spec
	}
	require.Contains(t, byName, "DATADIR")
	require.Contains(t, byName, "RPC_URL")
	require.Contains(t, byName, "RECEIVER_ADDRESS")
	require.Equal(t, "30", byName["EXPIRATION_MINUTES"].Default)
}
