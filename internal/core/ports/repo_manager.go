package ports

import "github.com/soldihq/soldi/internal/core/domain"

type RepoManager interface {
	Payments() domain.PaymentRepository
	Wallets() domain.OneTimeWalletRepository
	Assets() domain.AssetCatalog
	Close()
}
