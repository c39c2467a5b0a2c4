package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is a single purchase event at a merchant on a date. TotalPrice is
// a cached aggregate; the authoritative value is always recomputed from the
// current line items whenever a receipt is returned.
type Receipt struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	MerchantID   uint            `gorm:"index;not null" json:"merchant_id"`
	PurchaseDate time.Time       `gorm:"type:date;index;not null" json:"-"`
	Barcode      *string         `gorm:"size:50" json:"barcode,omitempty"`
	TotalPrice   decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"total_price"`
	PhotoPath    *string         `gorm:"size:500" json:"photo_path,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	Merchant  *Merchant  `gorm:"foreignKey:MerchantID" json:"merchant,omitempty"`
	LineItems []LineItem `gorm:"foreignKey:ReceiptID" json:"line_items,omitempty"`
}
