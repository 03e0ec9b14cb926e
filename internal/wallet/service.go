package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/evtrade/auctioncore/pkg/db"
	"github.com/evtrade/auctioncore/pkg/db/models"
	"github.com/evtrade/auctioncore/pkg/enums"
	"github.com/evtrade/auctioncore/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the wallet ledger. Every balance mutation appends the matching
// WalletTransaction inside the same database transaction.
type Service interface {
	EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error)
	Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error)
	LedgerEntries(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error)
	HasReleaseForBid(ctx context.Context, bidID uuid.UUID) (bool, error)

	// Transaction-scoped mutators for callers that already hold a tx.
	HoldTx(ctx context.Context, tx *gorm.DB, input HoldInput) error
	ReleaseTx(ctx context.Context, tx *gorm.DB, input ReleaseInput) (bool, error)
	SettleTx(ctx context.Context, tx *gorm.DB, input SettleInput) error
}

// HoldInput moves spendable funds into the held bucket for a bid.
type HoldInput struct {
	UserID    uuid.UUID
	BidID     uuid.UUID
	AuctionID uuid.UUID
	Amount    decimal.Decimal
}

// ReleaseInput reverses the hold recorded for OriginalBidID.
type ReleaseInput struct {
	UserID        uuid.UUID
	OriginalBidID uuid.UUID
	AuctionID     uuid.UUID
	Amount        decimal.Decimal
}

// SettleInput converts the winner's hold into a payment and credits the seller.
type SettleInput struct {
	WinnerUserID uuid.UUID
	SellerUserID uuid.UUID
	WinningBidID uuid.UUID
	AuctionID    uuid.UUID
	Amount       decimal.Decimal
	Commission   decimal.Decimal
}

type service struct {
	db   txRunner
	repo Repository
}

// NewService wires the wallet ledger.
func NewService(db txRunner, repo Repository) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	return &service{db: db, repo: repo}, nil
}

func (s *service) EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	existing, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	wallet := &models.Wallet{
		UserID:     userID,
		Balance:    decimal.Zero,
		HeldAmount: decimal.Zero,
		Currency:   enums.CurrencyVND,
		Status:     enums.WalletStatusActive,
	}
	if err := s.repo.Create(ctx, wallet); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_wallets_user") {
			return s.repo.FindByUserID(ctx, userID)
		}
		return nil, err
	}
	return wallet, nil
}

func (s *service) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	wallet, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, errors.New(errors.CodeNotFound, "wallet not found")
	}
	return wallet, nil
}

func (s *service) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	var updated *models.Wallet
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wallet, err := lockActiveWallet(ctx, repo, userID)
		if err != nil {
			return err
		}
		wallet.Balance = wallet.Balance.Add(amount)
		if err := repo.UpdateAmounts(ctx, wallet.ID, wallet.Balance, wallet.HeldAmount); err != nil {
			return err
		}
		if err := repo.CreateTransaction(ctx, &models.WalletTransaction{
			WalletID: wallet.ID,
			Amount:   amount,
			Type:     enums.WalletTransactionTypeDeposit,
		}); err != nil {
			return err
		}
		updated = wallet
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	var updated *models.Wallet
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wallet, err := lockActiveWallet(ctx, repo, userID)
		if err != nil {
			return err
		}
		// Held funds are not spendable.
		if wallet.Balance.LessThan(amount) {
			return errors.New(errors.CodeInsufficientFunds, "insufficient spendable balance")
		}
		wallet.Balance = wallet.Balance.Sub(amount)
		if err := repo.UpdateAmounts(ctx, wallet.ID, wallet.Balance, wallet.HeldAmount); err != nil {
			return err
		}
		if err := repo.CreateTransaction(ctx, &models.WalletTransaction{
			WalletID: wallet.ID,
			Amount:   amount.Neg(),
			Type:     enums.WalletTransactionTypeWithdraw,
		}); err != nil {
			return err
		}
		updated = wallet
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) LedgerEntries(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	wallet, err := s.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, wallet.ID, limit)
}

func (s *service) HasReleaseForBid(ctx context.Context, bidID uuid.UUID) (bool, error) {
	if bidID == uuid.Nil {
		return false, errors.New(errors.CodeValidation, "bid id is required")
	}
	return s.repo.HasTransaction(ctx, enums.WalletTransactionTypeRelease, bidID)
}

func (s *service) HoldTx(ctx context.Context, tx *gorm.DB, input HoldInput) error {
	if tx == nil {
		return errors.New(errors.CodeInternal, "transaction required")
	}
	if err := validateAmount(input.Amount); err != nil {
		return err
	}
	if input.BidID == uuid.Nil {
		return errors.New(errors.CodeValidation, "bid id is required")
	}
	repo := s.repo.WithTx(tx)
	wallet, err := lockActiveWallet(ctx, repo, input.UserID)
	if err != nil {
		return err
	}
	if wallet.Balance.LessThan(input.Amount) {
		return errors.New(errors.CodeInsufficientFunds, "insufficient spendable balance for hold")
	}
	wallet.Balance = wallet.Balance.Sub(input.Amount)
	wallet.HeldAmount = wallet.HeldAmount.Add(input.Amount)
	if err := repo.UpdateAmounts(ctx, wallet.ID, wallet.Balance, wallet.HeldAmount); err != nil {
		return err
	}
	auctionID := input.AuctionID
	bidID := input.BidID
	return repo.CreateTransaction(ctx, &models.WalletTransaction{
		WalletID:  wallet.ID,
		Amount:    input.Amount.Neg(),
		Type:      enums.WalletTransactionTypeHold,
		RefID:     &bidID,
		AuctionID: &auctionID,
	})
}

// ReleaseTx reports false when a release for OriginalBidID already exists. The
// unique index on (type, ref_id) is the authoritative guard; the pre-check
// only avoids a doomed insert.
func (s *service) ReleaseTx(ctx context.Context, tx *gorm.DB, input ReleaseInput) (bool, error) {
	if tx == nil {
		return false, errors.New(errors.CodeInternal, "transaction required")
	}
	if err := validateAmount(input.Amount); err != nil {
		return false, err
	}
	if input.OriginalBidID == uuid.Nil {
		return false, errors.New(errors.CodeValidation, "original bid id is required")
	}
	repo := s.repo.WithTx(tx)
	exists, err := repo.HasTransaction(ctx, enums.WalletTransactionTypeRelease, input.OriginalBidID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	wallet, err := lockActiveWallet(ctx, repo, input.UserID)
	if err != nil {
		return false, err
	}
	bidID := input.OriginalBidID
	auctionID := input.AuctionID
	if err := repo.CreateTransaction(ctx, &models.WalletTransaction{
		WalletID:  wallet.ID,
		Amount:    input.Amount,
		Type:      enums.WalletTransactionTypeRelease,
		RefID:     &bidID,
		AuctionID: &auctionID,
	}); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_wallet_transactions_type_ref") {
			return false, nil
		}
		return false, err
	}
	wallet.Balance = wallet.Balance.Add(input.Amount)
	wallet.HeldAmount = subtractFloored(wallet.HeldAmount, input.Amount)
	if err := repo.UpdateAmounts(ctx, wallet.ID, wallet.Balance, wallet.HeldAmount); err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) SettleTx(ctx context.Context, tx *gorm.DB, input SettleInput) error {
	if tx == nil {
		return errors.New(errors.CodeInternal, "transaction required")
	}
	if err := validateAmount(input.Amount); err != nil {
		return err
	}
	if input.Commission.IsNegative() || input.Commission.GreaterThan(input.Amount) {
		return errors.New(errors.CodeValidation, "commission must be within [0, amount]")
	}
	if input.WinningBidID == uuid.Nil {
		return errors.New(errors.CodeValidation, "winning bid id is required")
	}
	repo := s.repo.WithTx(tx)

	exists, err := repo.HasTransaction(ctx, enums.WalletTransactionTypePayment, input.WinningBidID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	winner, err := lockActiveWallet(ctx, repo, input.WinnerUserID)
	if err != nil {
		return err
	}
	// Insert the debit before mutating the wallet so a lost unique-index race
	// leaves the held amount untouched.
	bidID := input.WinningBidID
	auctionID := input.AuctionID
	if err := repo.CreateTransaction(ctx, &models.WalletTransaction{
		WalletID:  winner.ID,
		Amount:    input.Amount.Neg(),
		Type:      enums.WalletTransactionTypePayment,
		RefID:     &bidID,
		AuctionID: &auctionID,
	}); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_wallet_transactions_type_ref") {
			return nil
		}
		return err
	}
	winner.HeldAmount = subtractFloored(winner.HeldAmount, input.Amount)
	if err := repo.UpdateAmounts(ctx, winner.ID, winner.Balance, winner.HeldAmount); err != nil {
		return err
	}

	seller, err := lockActiveWallet(ctx, repo, input.SellerUserID)
	if err != nil {
		return err
	}
	net := input.Amount.Sub(input.Commission)
	seller.Balance = seller.Balance.Add(net)
	if err := repo.UpdateAmounts(ctx, seller.ID, seller.Balance, seller.HeldAmount); err != nil {
		return err
	}
	// Seller credit keeps a NULL ref_id so it never collides with the winner's
	// payment debit on the (type, ref_id) unique index.
	return repo.CreateTransaction(ctx, &models.WalletTransaction{
		WalletID:  seller.ID,
		Amount:    net,
		Type:      enums.WalletTransactionTypePayment,
		AuctionID: &auctionID,
	})
}

func lockActiveWallet(ctx context.Context, repo Repository, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	wallet, err := repo.FindByUserIDForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, errors.New(errors.CodeNotFound, "wallet not found")
	}
	if wallet.Status != enums.WalletStatusActive {
		return nil, errors.Newf(errors.CodeStateConflict, "wallet is %s", wallet.Status)
	}
	return wallet, nil
}

func subtractFloored(held, amount decimal.Decimal) decimal.Decimal {
	next := held.Sub(amount)
	if next.IsNegative() {
		return decimal.Zero
	}
	return next
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.New(errors.CodeValidation, "amount must be positive")
	}
	return nil
}
