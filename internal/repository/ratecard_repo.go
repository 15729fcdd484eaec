package repository

import (
	"context"

	"wms/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RateCardRepository interface {
	Create(ctx context.Context, card *model.RateCard) error
	Update(ctx context.Context, card *model.RateCard) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.RateCard, error)
	FindActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*model.RateCard, error)
	List(ctx context.Context, customerID *uuid.UUID, page, limit int) ([]model.RateCard, int64, error)
	DeactivateOthers(ctx context.Context, customerID, keepID uuid.UUID) error
	ReplaceRules(ctx context.Context, cardID uuid.UUID, rules []model.RateCardRule) error
}

type rateCardRepository struct {
	db *gorm.DB
}

func NewRateCardRepository(db *gorm.DB) RateCardRepository {
	return &rateCardRepository{db: db}
}

func (r *rateCardRepository) Create(ctx context.Context, card *model.RateCard) error {
	return GetDB(ctx, r.db).Create(card).Error
}

func (r *rateCardRepository) Update(ctx context.Context, card *model.RateCard) error {
	return GetDB(ctx, r.db).Save(card).Error
}

func (r *rateCardRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.RateCard{}).Error
}

func (r *rateCardRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.RateCard, error) {
	var card model.RateCard
	if err := GetDB(ctx, r.db).
		Preload("Rules", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, created_at ASC")
		}).
		First(&card, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

// FindActiveByCustomer returns the customer's single active rate card with
// its rules in stored order. Rule order decides tier resolution, so the
// ordering here is load-bearing.
func (r *rateCardRepository) FindActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*model.RateCard, error) {
	var card model.RateCard
	if err := GetDB(ctx, r.db).
		Preload("Rules", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, created_at ASC")
		}).
		Where("customer_id = ? AND is_active = ?", customerID, true).
		Order("updated_at DESC").
		First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *rateCardRepository) List(ctx context.Context, customerID *uuid.UUID, page, limit int) ([]model.RateCard, int64, error) {
	var cards []model.RateCard
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.RateCard{})
	if customerID != nil {
		query = query.Where("customer_id = ?", *customerID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	fetch := db.Preload("Rules", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC, created_at ASC")
	})
	if customerID != nil {
		fetch = fetch.Where("customer_id = ?", *customerID)
	}
	if err := fetch.Order("created_at DESC").Offset(offset).Limit(limit).Find(&cards).Error; err != nil {
		return nil, 0, err
	}

	return cards, total, nil
}

// DeactivateOthers clears the active flag on every other card of the
// customer, keeping "one active card per customer" true on activation.
func (r *rateCardRepository) DeactivateOthers(ctx context.Context, customerID, keepID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.RateCard{}).
		Where("customer_id = ? AND id != ? AND is_active = ?", customerID, keepID, true).
		Update("is_active", false).Error
}

// ReplaceRules swaps the card's full rule set in one pass
func (r *rateCardRepository) ReplaceRules(ctx context.Context, cardID uuid.UUID, rules []model.RateCardRule) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("rate_card_id = ?", cardID).Delete(&model.RateCardRule{}).Error; err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	for i := range rules {
		rules[i].RateCardID = cardID
	}
	return db.Create(&rules).Error
}
