package enums

import "fmt"

// LedgerEntryType maps to the ledger_entry_type_enum enum in Postgres.
type LedgerEntryType string

const (
	// LedgerEntryTypeUsage debits tokens when a generation is admitted.
	LedgerEntryTypeUsage LedgerEntryType = "usage"
	// LedgerEntryTypePurchase credits tokens from a settled purchase.
	LedgerEntryTypePurchase LedgerEntryType = "purchase"
	// LedgerEntryTypeReversal credits back a debit for a failed generation.
	LedgerEntryTypeReversal LedgerEntryType = "reversal"
	LedgerEntryTypeBonus    LedgerEntryType = "bonus"
	LedgerEntryTypeRefund   LedgerEntryType = "refund"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypeUsage,
	LedgerEntryTypePurchase,
	LedgerEntryTypeReversal,
	LedgerEntryTypeBonus,
	LedgerEntryTypeRefund,
}

// IsValid reports whether the value matches the canonical ledger entry enum.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
