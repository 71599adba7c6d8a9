package model

import (
	"strings"
	"time"
)

// Rental is a timed access grant from one wallet to one catalog item,
// funded by exactly one payment transaction. TxHash carries a database
// unique index: a transaction can fund at most one rental, and concurrent
// verifications for the same hash settle on that constraint.
type Rental struct {
	ID            string     `json:"id" gorm:"primaryKey;size:36"`
	WalletAddress string     `json:"walletAddress" gorm:"size:42;index"`
	CatalogItemID string     `json:"catalogItemId" gorm:"size:36;index"`
	TxHash        string     `json:"txHash" gorm:"size:66;uniqueIndex"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	PaidETH       string     `json:"paidEth" gorm:"type:decimal(18,10)"`
	DurationDays  int        `json:"durationDays"`
	EntryCloneID  *string    `json:"entryCloneId"` // private copy of the entry metadata record, nil when cloning failed
	IsActive      bool       `json:"isActive"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (Rental) TableName() string {
	return "rentals"
}

// Live reports whether the rental grants access at the given instant.
// The stored IsActive flag only ever transitions true -> false.
func (r *Rental) Live(now time.Time) bool {
	return r.IsActive && now.Before(r.ExpiresAt)
}

// OwnedBy compares the owning wallet case-insensitively.
func (r *Rental) OwnedBy(wallet string) bool {
	return strings.EqualFold(r.WalletAddress, wallet)
}
