package models

import "github.com/shopspring/decimal"

// LineItem is one purchased instance of a product definition on a receipt:
// the specific 0.5 kg of "Madeira Banana" bought at 1.25 each. Price must be
// non-negative and quantity strictly positive; price*quantity is the spend
// contributed by the line.
type LineItem struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	ReceiptID           uint            `gorm:"index;not null" json:"receipt_id"`
	ProductDefinitionID uint            `gorm:"index;not null" json:"product_definition_id"`
	Price               decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"price"`
	Quantity            decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"quantity"`
	Description         *string         `gorm:"size:100" json:"description,omitempty"`

	Receipt           *Receipt           `gorm:"foreignKey:ReceiptID" json:"-"`
	ProductDefinition *ProductDefinition `gorm:"foreignKey:ProductDefinitionID" json:"product_definition,omitempty"`
}
