package model

import "time"

// Profile represents a wallet-owned user profile. Wallet addresses are
// normalized to lowercase before storage.
type Profile struct {
	WalletAddress string    `json:"walletAddress" gorm:"primaryKey;size:42"`
	DisplayName   string    `json:"displayName"`
	AvatarURL     string    `json:"avatarUrl"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (Profile) TableName() string {
	return "profiles"
}
