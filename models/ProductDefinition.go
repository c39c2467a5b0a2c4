package models

// ProductDefinition is an entry in the master product list: the definition
// of a kind of product ("Madeira Banana" is "Fruit", sold by "kg"), distinct
// from any specific purchase of it on a receipt.
type ProductDefinition struct {
	ID                uint    `gorm:"primaryKey" json:"id"`
	Name              string  `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Barcode           *string `gorm:"size:50;uniqueIndex" json:"barcode,omitempty"`
	CategoryID        uint    `gorm:"index;not null" json:"category_id"`
	MeasurementUnitID uint    `gorm:"index;not null" json:"measurement_unit_id"`
	PhotoPath         *string `gorm:"size:500" json:"photo_path,omitempty"`

	Category        *Category        `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	MeasurementUnit *MeasurementUnit `gorm:"foreignKey:MeasurementUnitID" json:"measurement_unit,omitempty"`
	LineItems       []LineItem       `gorm:"foreignKey:ProductDefinitionID" json:"-"`
}
