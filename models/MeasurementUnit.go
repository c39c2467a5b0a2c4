package models

// MeasurementUnit is a master-list unit such as ("Kilogram", "kg").
type MeasurementUnit struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Abbreviation string `gorm:"size:10;uniqueIndex;not null" json:"abbreviation"`

	ProductDefinitions []ProductDefinition `gorm:"foreignKey:MeasurementUnitID" json:"-"`
}
