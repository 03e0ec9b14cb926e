package enums

import "fmt"

// WalletTransactionType maps to the wallet_transaction_type_enum enum in Postgres.
//
// Hold and payment entries carry negative amounts; release, deposit and the
// seller-side payment credit carry positive amounts. The signed sum of a
// wallet's entries reconciles to its balance.
type WalletTransactionType string

const (
	WalletTransactionTypeHold     WalletTransactionType = "hold"
	WalletTransactionTypeRelease  WalletTransactionType = "release"
	WalletTransactionTypePayment  WalletTransactionType = "payment"
	WalletTransactionTypeDeposit  WalletTransactionType = "deposit"
	WalletTransactionTypeWithdraw WalletTransactionType = "withdraw"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTransactionTypeHold,
	WalletTransactionTypeRelease,
	WalletTransactionTypePayment,
	WalletTransactionTypeDeposit,
	WalletTransactionTypeWithdraw,
}

// String implements fmt.Stringer.
func (t WalletTransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known WalletTransactionType.
func (t WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseWalletTransactionType converts raw input into a WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}
