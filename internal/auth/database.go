package auth

import (
	"errors"

	"github.com/collectpay/collect-api/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateMerchant(merchant *types.Merchant) error {
	return d.db.Create(merchant).Error
}

func (d *Database) GetMerchant(id string) (*types.Merchant, error) {
	var merchant types.Merchant
	if err := d.db.Where("id = ?", id).First(&merchant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &merchant, nil
}

func (d *Database) GetMerchantByEmail(email string) (*types.Merchant, error) {
	var merchant types.Merchant
	if err := d.db.Where("email = ?", email).First(&merchant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &merchant, nil
}

func (d *Database) GetMerchantByAPIKey(apiKey string) (*types.Merchant, error) {
	var merchant types.Merchant
	if err := d.db.Where("api_key = ?", apiKey).First(&merchant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &merchant, nil
}

func (d *Database) UpdateMerchant(id string, fields map[string]interface{}) error {
	return d.db.Model(&types.Merchant{}).Where("id = ?", id).Updates(fields).Error
}

func (d *Database) GetAllMerchants() ([]types.Merchant, error) {
	var merchants []types.Merchant
	if err := d.db.Order("created_at DESC").Find(&merchants).Error; err != nil {
		return nil, err
	}
	return merchants, nil
}

func (d *Database) GetDomainsByMerchant(merchantID string) ([]types.MerchantDomain, error) {
	var domains []types.MerchantDomain
	if err := d.db.Where("merchant_id = ?", merchantID).Find(&domains).Error; err != nil {
		return nil, err
	}
	return domains, nil
}

func (d *Database) AddDomain(merchantID, domain string) (*types.MerchantDomain, error) {
	record := types.MerchantDomain{
		ID:         uuid.New().String(),
		MerchantID: merchantID,
		Domain:     domain,
	}
	if err := d.db.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (d *Database) RemoveDomain(domainID string) error {
	return d.db.Where("id = ?", domainID).Delete(&types.MerchantDomain{}).Error
}

func (d *Database) IsDomainAllowed(merchantID, domain string) (bool, error) {
	var count int64
	err := d.db.Model(&types.MerchantDomain{}).
		Where("merchant_id = ? AND domain = ?", merchantID, domain).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
