package enums

import "fmt"

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionTypeRecharge         TransactionType = "recharge"
	TransactionTypeWithdraw         TransactionType = "withdraw"
	TransactionTypeTransferSend     TransactionType = "transfer_send"
	TransactionTypeTransferReceived TransactionType = "transfer_received"
	TransactionTypePurchase         TransactionType = "purchase"
	TransactionTypeSale             TransactionType = "sale"
	TransactionTypeRefund           TransactionType = "refund"
	TransactionTypeAdjustment       TransactionType = "adjustment"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeRecharge,
	TransactionTypeWithdraw,
	TransactionTypeTransferSend,
	TransactionTypeTransferReceived,
	TransactionTypePurchase,
	TransactionTypeSale,
	TransactionTypeRefund,
	TransactionTypeAdjustment,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionType.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
