package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/viper"

	"github.com/soldihq/soldi/internal/core/ports"
	"github.com/soldihq/soldi/utils"
)

const badgerDb = "badger"

type Config struct {
	Datadir  string `mapstructure:"DATADIR" envDefault:"soldi" envInfo:"Data directory for Soldi state"`
	DbType   string `mapstructure:"DB_TYPE" envDefault:"badger" envInfo:"Database backend: badger"`
	LogLevel uint32 `mapstructure:"LOG_LEVEL" envDefault:"4" envInfo:"Log verbosity (higher = more verbose)"`

	RpcURL          string `mapstructure:"RPC_URL" envDefault:"https://api.devnet.solana.com" envInfo:"Solana JSON-RPC endpoint"`
	ReceiverAddress string `mapstructure:"RECEIVER_ADDRESS" envDefault:"" envInfo:"Long-lived wallet receiving swept funds"`
	FeePayerKey     string `mapstructure:"FEE_PAYER_KEY" envDefault:"" envInfo:"Keypair paying infrastructure fees (json byte array or base58)"`
	Commitment      string `mapstructure:"COMMITMENT" envDefault:"finalized" envInfo:"Commitment a payment must reach to settle: processed | confirmed | finalized"`

	ExpirationMinutes     uint32 `mapstructure:"EXPIRATION_MINUTES" envDefault:"30" envInfo:"Minutes a payer has to settle a payment"`
	TokenAccountBatchSize uint32 `mapstructure:"TOKEN_ACCOUNT_BATCH_SIZE" envDefault:"8" envInfo:"Token accounts created or closed per transaction"`

	EncryptWalletSecrets bool   `mapstructure:"ENCRYPT_WALLET_SECRETS" envDefault:"false" envInfo:"Encrypt one-time wallet keys at rest"`
	WalletEncryptionKey  string `mapstructure:"WALLET_ENCRYPTION_KEY" envDefault:"" envInfo:"Key protecting one-time wallet keys (required when encryption is on)"`

	RedisURL string `mapstructure:"REDIS_URL" envDefault:"" envInfo:"Redis URL for payment events (empty disables publishing)"`

	ExpireJobIntervalSeconds  uint32 `mapstructure:"EXPIRE_JOB_INTERVAL" envDefault:"60" envInfo:"Seconds between payment expiry runs"`
	SweepJobIntervalSeconds   uint32 `mapstructure:"SWEEP_JOB_INTERVAL" envDefault:"120" envInfo:"Seconds between settled-wallet sweep runs"`
	RecheckJobIntervalSeconds uint32 `mapstructure:"RECHECK_JOB_INTERVAL" envDefault:"300" envInfo:"Seconds between payment recheck runs"`
	CloseJobIntervalSeconds   uint32 `mapstructure:"CLOSE_JOB_INTERVAL" envDefault:"600" envInfo:"Seconds between expired-wallet close runs"`
	RecheckLimit              uint32 `mapstructure:"RECHECK_LIMIT" envDefault:"50" envInfo:"Max payments rechecked per run"`
	RateLimitDelayMillis      uint32 `mapstructure:"RATE_LIMIT_DELAY" envDefault:"500" envInfo:"Milliseconds between RPC-heavy batch items"`

	receiver solana.PublicKey
	feePayer solana.PrivateKey
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("SOLDI")
	v.AutomaticEnv()

	if err := setDefaultConfig(v); err != nil {
		return nil, fmt.Errorf("error setting default config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %v", err)
	}

	if err := config.initDb(); err != nil {
		return nil, fmt.Errorf("error initializing data directory: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.ReceiverAddress == "" {
		return fmt.Errorf("missing receiver address")
	}
	receiver, err := solana.PublicKeyFromBase58(c.ReceiverAddress)
	if err != nil {
		return fmt.Errorf("invalid receiver address: %w", err)
	}
	c.receiver = receiver

	if c.FeePayerKey == "" {
		return fmt.Errorf("missing fee payer keypair")
	}
	feePayer, err := utils.ParseKeypair(c.FeePayerKey)
	if err != nil {
		return fmt.Errorf("invalid fee payer keypair: %w", err)
	}
	c.feePayer = feePayer

	if c.EncryptWalletSecrets && c.WalletEncryptionKey == "" {
		return fmt.Errorf("wallet encryption is enabled but no encryption key is set")
	}

	if c.AcceptanceCommitment() == ports.ConfirmationUnknown {
		return fmt.Errorf(
			"invalid commitment %s, must be one of processed, confirmed, finalized", c.Commitment,
		)
	}
	return nil
}

func (c *Config) Receiver() solana.PublicKey {
	return c.receiver
}

func (c *Config) FeePayer() solana.PrivateKey {
	return c.feePayer
}

// AcceptanceCommitment is the commitment a settlement transaction must reach
// before the payment is accepted.
func (c *Config) AcceptanceCommitment() ports.ConfirmationStatus {
	switch strings.ToLower(c.Commitment) {
	case "processed":
		return ports.ConfirmationProcessed
	case "confirmed":
		return ports.ConfirmationConfirmed
	case "finalized":
		return ports.ConfirmationFinalized
	}
	return ports.ConfirmationUnknown
}

// ReadCommitment is the commitment used for balance and history reads. Reads
// at processed would be rolled back too easily, so confirmed is the floor.
func (c *Config) ReadCommitment() rpc.CommitmentType {
	if c.AcceptanceCommitment() == ports.ConfirmationFinalized {
		return rpc.CommitmentFinalized
	}
	return rpc.CommitmentConfirmed
}

func (c *Config) PaymentValidity() time.Duration {
	return time.Duration(c.ExpirationMinutes) * time.Minute
}

func (c *Config) RateLimitDelay() time.Duration {
	return time.Duration(c.RateLimitDelayMillis) * time.Millisecond
}

func (c *Config) initDb() error {
	if c.DbType != badgerDb {
		return fmt.Errorf("unsupported db type: %s", c.DbType)
	}

	if c.Datadir == "soldi" {
		c.Datadir = appDatadir("soldi", false)
	}
	return makeDirectoryIfNotExists(c.Datadir)
}

func setDefaultConfig(v *viper.Viper) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("mapstructure")
		def := f.Tag.Get("envDefault")
		if def != "" {
			v.SetDefault(key, def)
		}
		err := v.BindEnv(key)
		if err != nil {
			return fmt.Errorf("error binding env variable for key %s: %w", key, err)
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// appDatadir returns an operating system specific directory to be used for
// storing application data for an application.
func appDatadir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}

	appName = strings.TrimPrefix(appName, ".")
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]

	var homeDir string
	usr, err := user.Current()
	if err == nil {
		homeDir = usr.HomeDir
	}
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}

	goos := runtime.GOOS
	switch goos {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if roaming || appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appNameUpper)
		}

	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library",
				"Application Support", appNameUpper)
		}

	case "plan9":
		if homeDir != "" {
			return filepath.Join(homeDir, appNameLower)
		}

	default:
		if homeDir != "" {
			return filepath.Join(homeDir, "."+appNameLower)
		}
	}

	return "."
}
