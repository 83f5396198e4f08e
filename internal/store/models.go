package store

import "time"

// Card is a scanned business card after OCR extraction.
type Card struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"ownerId"`
	Name      string        `json:"name"`
	Title     string        `json:"title"`
	Company   string        `json:"company"`
	Email     string        `json:"email"`
	Phone     string        `json:"phone"`
	Website   string        `json:"website"`
	Address   string        `json:"address"`
	Notes     string        `json:"notes"`
	RawText   string        `json:"rawText"` // full OCR output, kept verbatim
	Tags      []string      `json:"tags,omitempty"`
	Companies []CompanyLink `json:"companies,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// CompanyLink ties a card to an enriched company record.
type CompanyLink struct {
	CompanyID string `json:"companyId"`
	Name      string `json:"name"`
}

// Company is an enriched organization record.
type Company struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Industry    string    `json:"industry"`
	Size        string    `json:"size"`
	Location    string    `json:"location"`
	Website     string    `json:"website"`
	FoundedYear int       `json:"foundedYear"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
