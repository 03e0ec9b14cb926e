package wallet

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/evtrade/auctioncore/pkg/db/models"
	"github.com/evtrade/auctioncore/pkg/enums"
	"github.com/evtrade/auctioncore/pkg/errors"
)

type fakeRepo struct {
	wallets      map[uuid.UUID]*models.Wallet
	transactions []models.WalletTransaction
	createTxErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{wallets: map[uuid.UUID]*models.Wallet{}}
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) Create(_ context.Context, wallet *models.Wallet) error {
	if wallet.ID == uuid.Nil {
		wallet.ID = uuid.New()
	}
	f.wallets[wallet.UserID] = wallet
	return nil
}

func (f *fakeRepo) FindByUserID(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, ok := f.wallets[userID]
	if !ok {
		return nil, nil
	}
	copied := *wallet
	return &copied, nil
}

func (f *fakeRepo) FindByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return f.FindByUserID(ctx, userID)
}

func (f *fakeRepo) UpdateAmounts(_ context.Context, walletID uuid.UUID, balance, held decimal.Decimal) error {
	for _, wallet := range f.wallets {
		if wallet.ID == walletID {
			wallet.Balance = balance
			wallet.HeldAmount = held
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeRepo) CreateTransaction(_ context.Context, entry *models.WalletTransaction) error {
	if f.createTxErr != nil {
		err := f.createTxErr
		f.createTxErr = nil
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	f.transactions = append(f.transactions, *entry)
	return nil
}

func (f *fakeRepo) HasTransaction(_ context.Context, txType enums.WalletTransactionType, refID uuid.UUID) (bool, error) {
	for _, entry := range f.transactions {
		if entry.Type == txType && entry.RefID != nil && *entry.RefID == refID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) ListTransactions(_ context.Context, walletID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	var entries []models.WalletTransaction
	for _, entry := range f.transactions {
		if entry.WalletID == walletID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

func newTestService(t *testing.T) (Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	svc, err := NewService(fakeTxRunner{}, repo)
	require.NoError(t, err)
	return svc, repo
}

func seedWallet(t *testing.T, repo *fakeRepo, balance, held string) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	require.NoError(t, repo.Create(context.Background(), &models.Wallet{
		UserID:     userID,
		Balance:    decimal.RequireFromString(balance),
		HeldAmount: decimal.RequireFromString(held),
		Currency:   enums.CurrencyVND,
		Status:     enums.WalletStatusActive,
	}))
	return userID
}

func TestDepositCreditsBalanceAndAppendsEntry(t *testing.T) {
	svc, repo := newTestService(t)
	userID := seedWallet(t, repo, "1000", "0")

	wallet, err := svc.Deposit(context.Background(), userID, decimal.RequireFromString("500"))
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.RequireFromString("1500")))

	require.Len(t, repo.transactions, 1)
	entry := repo.transactions[0]
	assert.Equal(t, enums.WalletTransactionTypeDeposit, entry.Type)
	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("500")))
	assert.Nil(t, entry.RefID)
}

func TestWithdrawCannotTouchHeldFunds(t *testing.T) {
	svc, repo := newTestService(t)
	userID := seedWallet(t, repo, "200", "800")

	_, err := svc.Withdraw(context.Background(), userID, decimal.RequireFromString("500"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInsufficientFunds))
	assert.Empty(t, repo.transactions)
}

func TestWithdrawDebitsSpendableBalance(t *testing.T) {
	svc, repo := newTestService(t)
	userID := seedWallet(t, repo, "1000", "0")

	wallet, err := svc.Withdraw(context.Background(), userID, decimal.RequireFromString("300"))
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.RequireFromString("700")))

	require.Len(t, repo.transactions, 1)
	assert.Equal(t, enums.WalletTransactionTypeWithdraw, repo.transactions[0].Type)
	assert.True(t, repo.transactions[0].Amount.Equal(decimal.RequireFromString("-300")))
}

func TestHoldTxMovesSpendableIntoHeld(t *testing.T) {
	svc, repo := newTestService(t)
	userID := seedWallet(t, repo, "1200000", "0")
	bidID := uuid.New()
	auctionID := uuid.New()

	err := svc.HoldTx(context.Background(), &gorm.DB{}, HoldInput{
		UserID:    userID,
		BidID:     bidID,
		AuctionID: auctionID,
		Amount:    decimal.RequireFromString("1100000"),
	})
	require.NoError(t, err)

	wallet := repo.wallets[userID]
	assert.True(t, wallet.Balance.Equal(decimal.RequireFromString("100000")))
	assert.True(t, wallet.HeldAmount.Equal(decimal.RequireFromString("1100000")))

	require.Len(t, repo.transactions, 1)
	entry := repo.transactions[0]
	assert.Equal(t, enums.WalletTransactionTypeHold, entry.Type)
	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("-1100000")))
	require.NotNil(t, entry.RefID)
	assert.Equal(t, bidID, *entry.RefID)
}

func TestHoldTxRejectsInsufficientBalance(t *testing.T) {
	svc, repo := newTestService(t)
	userID := seedWallet(t, repo, "1000", "0")

	err := svc.HoldTx(context.Background(), &gorm.DB{}, HoldInput{
		UserID:    userID,
		BidID:     uuid.New(),
		AuctionID: uuid.New(),
		Amount:    decimal.RequireFromString("1001"),
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInsufficientFunds))
	assert.Empty(t, repo.transactions)
}

func TestReleaseTxIsIdempotentPerOriginalBid(t *testing.T) {
	svc, repo := newTestService(t)
	userID := seedWallet(t, repo, "0", "1100000")
	bidID := uuid.New()
	input := ReleaseInput{
		UserID:        userID,
		OriginalBidID: bidID,
		AuctionID:     uuid.New(),
		Amount:        decimal.RequireFromString("1100000"),
	}

	applied, err := svc.ReleaseTx(context.Background(), &gorm.DB{}, input)
	require.NoError(t, err)
	assert.True(t, applied)

	// Duplicate delivery of the same outbid event.
	applied, err = svc.ReleaseTx(context.Background(), &gorm.DB{}, input)
	require.NoError(t, err)
	assert.False(t, applied)

	wallet := repo.wallets[userID]
	assert.True(t, wallet.Balance.Equal(decimal.RequireFromString("1100000")))
	assert.True(t, wallet.HeldAmount.IsZero())

	releases := 0
	for _, entry := range repo.transactions {
		if entry.Type == enums.WalletTransactionTypeRelease {
			releases++
		}
	}
	assert.Equal(t, 1, releases)
}

func TestSettleTxPaysSellerNetOfCommission(t *testing.T) {
	svc, repo := newTestService(t)
	winnerID := seedWallet(t, repo, "0", "1200000")
	sellerID := seedWallet(t, repo, "50", "0")
	bidID := uuid.New()

	err := svc.SettleTx(context.Background(), &gorm.DB{}, SettleInput{
		WinnerUserID: winnerID,
		SellerUserID: sellerID,
		WinningBidID: bidID,
		AuctionID:    uuid.New(),
		Amount:       decimal.RequireFromString("1200000"),
		Commission:   decimal.RequireFromString("60000"),
	})
	require.NoError(t, err)

	winner := repo.wallets[winnerID]
	assert.True(t, winner.HeldAmount.IsZero())
	assert.True(t, winner.Balance.IsZero())

	seller := repo.wallets[sellerID]
	assert.True(t, seller.Balance.Equal(decimal.RequireFromString("1140050")))

	require.Len(t, repo.transactions, 2)
	debit := repo.transactions[0]
	assert.Equal(t, enums.WalletTransactionTypePayment, debit.Type)
	require.NotNil(t, debit.RefID)
	assert.Equal(t, bidID, *debit.RefID)
	credit := repo.transactions[1]
	assert.Equal(t, enums.WalletTransactionTypePayment, credit.Type)
	assert.Nil(t, credit.RefID)
	assert.True(t, credit.Amount.Equal(decimal.RequireFromString("1140000")))
}

func TestSettleTxSkipsWhenPaymentAlreadyRecorded(t *testing.T) {
	svc, repo := newTestService(t)
	winnerID := seedWallet(t, repo, "0", "1200000")
	sellerID := seedWallet(t, repo, "0", "0")
	bidID := uuid.New()

	input := SettleInput{
		WinnerUserID: winnerID,
		SellerUserID: sellerID,
		WinningBidID: bidID,
		AuctionID:    uuid.New(),
		Amount:       decimal.RequireFromString("1200000"),
		Commission:   decimal.Zero,
	}
	require.NoError(t, svc.SettleTx(context.Background(), &gorm.DB{}, input))
	require.NoError(t, svc.SettleTx(context.Background(), &gorm.DB{}, input))

	seller := repo.wallets[sellerID]
	assert.True(t, seller.Balance.Equal(decimal.RequireFromString("1200000")))
	assert.Len(t, repo.transactions, 2)
}

func TestSettleTxLosingUniqueRaceLeavesHeldUntouched(t *testing.T) {
	svc, repo := newTestService(t)
	winnerID := seedWallet(t, repo, "0", "1200000")
	sellerID := seedWallet(t, repo, "0", "0")
	repo.createTxErr = fmt.Errorf("UNIQUE constraint failed: wallet_transactions.type, wallet_transactions.ref_id")

	err := svc.SettleTx(context.Background(), &gorm.DB{}, SettleInput{
		WinnerUserID: winnerID,
		SellerUserID: sellerID,
		WinningBidID: uuid.New(),
		AuctionID:    uuid.New(),
		Amount:       decimal.RequireFromString("1200000"),
		Commission:   decimal.Zero,
	})
	require.NoError(t, err)

	winner := repo.wallets[winnerID]
	assert.True(t, winner.HeldAmount.Equal(decimal.RequireFromString("1200000")))
	assert.True(t, repo.wallets[sellerID].Balance.IsZero())
	assert.Empty(t, repo.transactions)
}

// reconcileLedger folds a wallet's transaction rows back into the balances
// they should produce. A hold superseded by its payment debit is skipped (the
// debit already carries the amount); a hold with neither a release nor a
// payment is still outstanding and makes up the held amount.
func reconcileLedger(entries []models.WalletTransaction, walletID uuid.UUID) (balance, held decimal.Decimal) {
	settled := map[uuid.UUID]bool{}
	released := map[uuid.UUID]bool{}
	for _, entry := range entries {
		if entry.WalletID != walletID || entry.RefID == nil {
			continue
		}
		switch entry.Type {
		case enums.WalletTransactionTypePayment:
			settled[*entry.RefID] = true
		case enums.WalletTransactionTypeRelease:
			released[*entry.RefID] = true
		}
	}
	balance, held = decimal.Zero, decimal.Zero
	for _, entry := range entries {
		if entry.WalletID != walletID {
			continue
		}
		if entry.Type == enums.WalletTransactionTypeHold {
			if settled[*entry.RefID] {
				continue
			}
			if !released[*entry.RefID] {
				held = held.Add(entry.Amount.Neg())
			}
		}
		balance = balance.Add(entry.Amount)
	}
	return balance, held
}

func TestLedgerReconcilesToWalletBalances(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	winnerID := seedWallet(t, repo, "0", "0")
	rivalID := seedWallet(t, repo, "0", "0")
	sellerID := seedWallet(t, repo, "0", "0")
	auctionID := uuid.New()

	_, err := svc.Deposit(ctx, winnerID, decimal.RequireFromString("2000000"))
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, rivalID, decimal.RequireFromString("1200000"))
	require.NoError(t, err)

	// Rival leads, winner follows, then the winner raises their own bid:
	// release the prior hold and hold the full new amount.
	rivalBid := uuid.New()
	require.NoError(t, svc.HoldTx(ctx, &gorm.DB{}, HoldInput{
		UserID: rivalID, BidID: rivalBid, AuctionID: auctionID,
		Amount: decimal.RequireFromString("1200000"),
	}))
	firstBid := uuid.New()
	require.NoError(t, svc.HoldTx(ctx, &gorm.DB{}, HoldInput{
		UserID: winnerID, BidID: firstBid, AuctionID: auctionID,
		Amount: decimal.RequireFromString("1300000"),
	}))
	_, err = svc.ReleaseTx(ctx, &gorm.DB{}, ReleaseInput{
		UserID: winnerID, OriginalBidID: firstBid, AuctionID: auctionID,
		Amount: decimal.RequireFromString("1300000"),
	})
	require.NoError(t, err)
	winningBid := uuid.New()
	require.NoError(t, svc.HoldTx(ctx, &gorm.DB{}, HoldInput{
		UserID: winnerID, BidID: winningBid, AuctionID: auctionID,
		Amount: decimal.RequireFromString("1500000"),
	}))

	// Rival is outbid and released; the winner settles net of commission.
	_, err = svc.ReleaseTx(ctx, &gorm.DB{}, ReleaseInput{
		UserID: rivalID, OriginalBidID: rivalBid, AuctionID: auctionID,
		Amount: decimal.RequireFromString("1200000"),
	})
	require.NoError(t, err)
	require.NoError(t, svc.SettleTx(ctx, &gorm.DB{}, SettleInput{
		WinnerUserID: winnerID, SellerUserID: sellerID,
		WinningBidID: winningBid, AuctionID: auctionID,
		Amount:     decimal.RequireFromString("1500000"),
		Commission: decimal.RequireFromString("75000"),
	}))
	_, err = svc.Withdraw(ctx, winnerID, decimal.RequireFromString("100000"))
	require.NoError(t, err)

	for name, userID := range map[string]uuid.UUID{
		"winner": winnerID,
		"rival":  rivalID,
		"seller": sellerID,
	} {
		wallet := repo.wallets[userID]
		balance, held := reconcileLedger(repo.transactions, wallet.ID)
		assert.True(t, balance.Equal(wallet.Balance),
			"%s ledger balance %s != wallet balance %s", name, balance, wallet.Balance)
		assert.True(t, held.Equal(wallet.HeldAmount),
			"%s ledger held %s != wallet held %s", name, held, wallet.HeldAmount)
	}

	assert.True(t, repo.wallets[winnerID].Balance.Equal(decimal.RequireFromString("400000")))
	assert.True(t, repo.wallets[winnerID].HeldAmount.IsZero())
	assert.True(t, repo.wallets[rivalID].Balance.Equal(decimal.RequireFromString("1200000")))
	assert.True(t, repo.wallets[sellerID].Balance.Equal(decimal.RequireFromString("1425000")))
}

func TestEnsureWalletCreatesOnce(t *testing.T) {
	svc, repo := newTestService(t)
	userID := uuid.New()

	first, err := svc.EnsureWallet(context.Background(), userID)
	require.NoError(t, err)
	second, err := svc.EnsureWallet(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.wallets, 1)
}
