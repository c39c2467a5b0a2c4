package models

type Merchant struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	Name     string  `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Location *string `gorm:"size:255" json:"location,omitempty"`
	Notes    *string `gorm:"type:text" json:"notes,omitempty"`

	Receipts []Receipt `gorm:"foreignKey:MerchantID" json:"-"`
}
