package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ChainFM/model"

	"gorm.io/gorm"
)

// ProfileRepository defines the interface for profile data operations.
type ProfileRepository interface {
	GetByWallet(wallet string) (*model.Profile, error)
	Create(profile *model.Profile) error
	Update(wallet string, displayName, avatarURL *string) (*model.Profile, error)
	GetOrCreate(wallet string) (*model.Profile, error)
}

type gormProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a GORM-backed ProfileRepository.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &gormProfileRepository{db: db}
}

func (r *gormProfileRepository) GetByWallet(wallet string) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.Where("wallet_address = ?", strings.ToLower(wallet)).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile %s: %w", wallet, err)
	}
	return &profile, nil
}

func (r *gormProfileRepository) Create(profile *model.Profile) error {
	profile.WalletAddress = strings.ToLower(profile.WalletAddress)
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}
	if err := r.db.Create(profile).Error; err != nil {
		return fmt.Errorf("failed to create profile %s: %w", profile.WalletAddress, err)
	}
	return nil
}

func (r *gormProfileRepository) Update(wallet string, displayName, avatarURL *string) (*model.Profile, error) {
	profile, err := r.GetByWallet(wallet)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("profile not found: %s", wallet)
	}
	if displayName != nil {
		profile.DisplayName = *displayName
	}
	if avatarURL != nil {
		profile.AvatarURL = *avatarURL
	}
	if err := r.db.Save(profile).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile %s: %w", wallet, err)
	}
	return profile, nil
}

// GetOrCreate returns the profile for the wallet, creating a blank one on
// first sight. The default display name abbreviates the address the same
// way wallets render it.
func (r *gormProfileRepository) GetOrCreate(wallet string) (*model.Profile, error) {
	profile, err := r.GetByWallet(wallet)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}
	profile = &model.Profile{
		WalletAddress: strings.ToLower(wallet),
		DisplayName:   shortWallet(wallet),
		CreatedAt:     time.Now(),
	}
	if err := r.Create(profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func shortWallet(wallet string) string {
	if len(wallet) < 6 {
		return "User " + wallet
	}
	return "User " + wallet[:6]
}
