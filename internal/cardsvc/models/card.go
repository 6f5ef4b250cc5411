package models

// Card is a catalog entry. Cards are values; the catalog hands out copies.
type Card struct {
	ID          string `json:"id"`    // case-insensitive identity, as written in the catalog
	Layer       int    `json:"layer"` // ascending sort key
	TexturePath string `json:"texture"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}
