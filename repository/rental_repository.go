package repository

import (
	"errors"
	"fmt"
	"time"

	"ChainFM/model"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrDuplicateTxHash is returned by Create when a rental already exists
// for the transaction hash. The caller re-reads and returns the winner.
var ErrDuplicateTxHash = errors.New("rental already exists for transaction hash")

// RentalRepository defines the interface for rental data operations.
type RentalRepository interface {
	GetByID(id string) (*model.Rental, error)
	GetByTxHash(txHash string) (*model.Rental, error)
	ListActiveByWallet(wallet string, now time.Time) ([]*model.Rental, error)
	Create(rental *model.Rental) error
	Deactivate(id string) error
}

type gormRentalRepository struct {
	db *gorm.DB
}

// NewRentalRepository creates a GORM-backed RentalRepository.
func NewRentalRepository(db *gorm.DB) RentalRepository {
	return &gormRentalRepository{db: db}
}

func (r *gormRentalRepository) GetByID(id string) (*model.Rental, error) {
	var rental model.Rental
	err := r.db.Where("id = ?", id).First(&rental).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rental %s: %w", id, err)
	}
	return &rental, nil
}

func (r *gormRentalRepository) GetByTxHash(txHash string) (*model.Rental, error) {
	var rental model.Rental
	err := r.db.Where("tx_hash = ?", txHash).First(&rental).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rental by tx %s: %w", txHash, err)
	}
	return &rental, nil
}

func (r *gormRentalRepository) ListActiveByWallet(wallet string, now time.Time) ([]*model.Rental, error) {
	rentals := make([]*model.Rental, 0)
	err := r.db.Where("LOWER(wallet_address) = LOWER(?) AND is_active = ? AND expires_at > ?",
		wallet, true, now).Order("created_at DESC").Find(&rentals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rentals for %s: %w", wallet, err)
	}
	return rentals, nil
}

// Create persists a rental. The unique index on tx_hash settles concurrent
// verifications of the same transaction: the loser gets ErrDuplicateTxHash.
func (r *gormRentalRepository) Create(rental *model.Rental) error {
	if rental.ID == "" {
		rental.ID = uuid.New().String()
	}
	if rental.CreatedAt.IsZero() {
		rental.CreatedAt = time.Now()
	}
	if err := r.db.Create(rental).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateTxHash
		}
		return fmt.Errorf("failed to create rental for tx %s: %w", rental.TxHash, err)
	}
	return nil
}

// Deactivate durably flips a rental to inactive. The transition is one-way;
// nothing ever sets is_active back to true.
func (r *gormRentalRepository) Deactivate(id string) error {
	err := r.db.Model(&model.Rental{}).Where("id = ?", id).
		Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("failed to deactivate rental %s: %w", id, err)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
