package models

type Category struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Color string `gorm:"size:16" json:"color"`

	ProductDefinitions []ProductDefinition `gorm:"foreignKey:CategoryID" json:"-"`
}

// PlaceholderColor marks rows imported before automatic palette assignment
// existed. The color backfill replaces it with a palette entry.
const PlaceholderColor = "#808080"
