package search

import (
	"strconv"
	"strings"

	"cardvault/api/internal/store"
)

// TransformCard maps a card entity to its search document. The function is
// pure: it never mutates the card and always produces the same document for
// the same entity state, so reindexing is safe to repeat.
func TransformCard(card store.Card) Document {
	linked := make([]string, 0, len(card.Companies))
	for _, link := range card.Companies {
		if isPresent(link.Name) {
			linked = append(linked, link.Name)
		}
	}

	// content field order is fixed; empties are filtered before joining so
	// the result never contains doubled separators
	content := joinPresent(
		card.Name,
		card.Title,
		card.Company,
		card.RawText,
		card.Notes,
		card.Email,
		card.Phone,
		card.Website,
		card.Address,
		strings.Join(linked, " "),
	)

	return Document{
		ID:      card.ID,
		Type:    DocCard,
		Title:   cardTitle(card),
		Content: content,
		Highlight: BuildHighlightSource(HighlightFields{
			Name:    card.Name,
			AltName: card.Email,
			Title:   card.Title,
			Company: card.Company,
			Notes:   card.Notes,
		}),
		Metadata: map[string]any{
			"ownerId":     card.OwnerID,
			"companyName": card.Company,
			"email":       card.Email,
			"phone":       card.Phone,
			"tags":        append([]string(nil), card.Tags...),
			"enriched":    len(card.Companies) > 0,
		},
		CreatedAt: card.CreatedAt,
		UpdatedAt: card.UpdatedAt,
	}
}

// TransformCompany maps a company entity to its search document.
func TransformCompany(company store.Company) Document {
	founded := ""
	if company.FoundedYear > 0 {
		founded = strconv.Itoa(company.FoundedYear)
	}

	return Document{
		ID:    company.ID,
		Type:  DocCompany,
		Title: firstNonEmpty(company.Name, company.Website),
		Content: joinPresent(
			company.Name,
			company.Description,
			company.Industry,
			company.Location,
			company.Website,
		),
		Highlight: BuildHighlightSource(HighlightFields{
			Name:    company.Name,
			Title:   company.Industry,
			Company: company.Location,
			Notes:   company.Description,
		}),
		Metadata: map[string]any{
			"industry":    company.Industry,
			"size":        company.Size,
			"description": company.Description,
			"location":    company.Location,
			"foundedYear": founded,
			"tags":        append([]string(nil), company.Tags...),
		},
		CreatedAt: company.CreatedAt,
		UpdatedAt: company.UpdatedAt,
	}
}

func cardTitle(card store.Card) string {
	return firstNonEmpty(card.Name, card.Company, card.Email, card.ID)
}

// joinPresent space-joins values after dropping the genuinely empty ones.
func joinPresent(values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if isPresent(v) {
			parts = append(parts, strings.TrimSpace(v))
		}
	}
	return strings.Join(parts, " ")
}
