package db

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/soldihq/soldi/internal/core/domain"
	"github.com/soldihq/soldi/internal/core/ports"
	badgerdb "github.com/soldihq/soldi/internal/infrastructure/db/badger"
)

var allowedTypes = strings.Join([]string{"badger"}, ",")

type ServiceConfig struct {
	DbType   string
	DbConfig []any
}

type service struct {
	paymentRepo domain.PaymentRepository
	walletRepo  domain.OneTimeWalletRepository
	assetRepo   domain.AssetCatalog
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	var (
		paymentRepo domain.PaymentRepository
		walletRepo  domain.OneTimeWalletRepository
		assetRepo   domain.AssetCatalog
		err         error
	)

	switch config.DbType {
	case "badger":
		if len(config.DbConfig) != 2 {
			return nil, fmt.Errorf("badger db config must have 2 elements, got %d", len(config.DbConfig))
		}
		baseDir, ok := config.DbConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}
		var logger badger.Logger
		if config.DbConfig[1] != nil {
			logger, ok = config.DbConfig[1].(badger.Logger)
			if !ok {
				return nil, fmt.Errorf("invalid logger")
			}
		}
		paymentRepo, err = badgerdb.NewPaymentRepository(baseDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open payment db: %s", err)
		}
		walletRepo, err = badgerdb.NewWalletRepository(baseDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open wallet db: %s", err)
		}
		assetRepo, err = badgerdb.NewAssetCatalog(baseDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open asset db: %s", err)
		}
	default:
		return nil, fmt.Errorf("unsupported db type %s, please select one of %s", config.DbType, allowedTypes)
	}

	return &service{
		paymentRepo: paymentRepo,
		walletRepo:  walletRepo,
		assetRepo:   assetRepo,
	}, nil
}

func (s *service) Payments() domain.PaymentRepository {
	return s.paymentRepo
}

func (s *service) Wallets() domain.OneTimeWalletRepository {
	return s.walletRepo
}

func (s *service) Assets() domain.AssetCatalog {
	return s.assetRepo
}

func (s *service) Close() {
	s.paymentRepo.Close()
	s.walletRepo.Close()
	s.assetRepo.Close()
}
