package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cardvault/api/internal/util"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const cardColumns = `id, owner_id, name, title, company, email, phone, website, address, notes, raw_text, tags, created_at, updated_at`

func (s *PostgresStore) CreateCard(ctx context.Context, card Card) (Card, error) {
	if card.ID == "" {
		card.ID = util.NewID("card")
	}
	now := time.Now().UTC()
	card.CreatedAt = now
	card.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, card.ID, card.OwnerID, card.Name, card.Title, card.Company, card.Email, card.Phone,
		card.Website, card.Address, card.Notes, card.RawText, encodeTags(card.Tags),
		card.CreatedAt, card.UpdatedAt)
	if err != nil {
		return Card{}, fmt.Errorf("insert card: %w", err)
	}
	return card, nil
}

func (s *PostgresStore) GetCard(ctx context.Context, id string) (Card, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = $1`, id)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Card{}, ErrNotFound
		}
		return Card{}, fmt.Errorf("get card: %w", err)
	}
	links, err := s.cardLinks(ctx, id)
	if err != nil {
		return Card{}, err
	}
	card.Companies = links
	return card, nil
}

func (s *PostgresStore) UpdateCard(ctx context.Context, card Card) (Card, error) {
	card.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE cards SET name=$2, title=$3, company=$4, email=$5, phone=$6, website=$7,
			address=$8, notes=$9, raw_text=$10, tags=$11, updated_at=$12
		WHERE id=$1
	`, card.ID, card.Name, card.Title, card.Company, card.Email, card.Phone, card.Website,
		card.Address, card.Notes, card.RawText, encodeTags(card.Tags), card.UpdatedAt)
	if err != nil {
		return Card{}, fmt.Errorf("update card: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return Card{}, ErrNotFound
	}
	return s.GetCard(ctx, card.ID)
}

func (s *PostgresStore) DeleteCard(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCards returns every card with its company links, for reindexing and
// owner-scoped listings.
func (s *PostgresStore) ListCards(ctx context.Context) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	cards := make([]Card, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}

	links, err := s.allCardLinks(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		cards[i].Companies = links[cards[i].ID]
	}
	return cards, nil
}

func (s *PostgresStore) ListCardsByOwner(ctx context.Context, ownerID string) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list cards by owner: %w", err)
	}
	defer rows.Close()

	cards := make([]Card, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func (s *PostgresStore) LinkCompany(ctx context.Context, cardID, companyID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO card_companies (card_id, company_id)
		VALUES ($1, $2)
		ON CONFLICT (card_id, company_id) DO NOTHING
	`, cardID, companyID)
	if err != nil {
		return fmt.Errorf("link company: %w", err)
	}
	return nil
}

const companyColumns = `id, name, description, industry, size, location, website, founded_year, tags, created_at, updated_at`

func (s *PostgresStore) CreateCompany(ctx context.Context, company Company) (Company, error) {
	if company.ID == "" {
		company.ID = util.NewID("co")
	}
	now := time.Now().UTC()
	company.CreatedAt = now
	company.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (`+companyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, company.ID, company.Name, company.Description, company.Industry, company.Size,
		company.Location, company.Website, company.FoundedYear, encodeTags(company.Tags),
		company.CreatedAt, company.UpdatedAt)
	if err != nil {
		return Company{}, fmt.Errorf("insert company: %w", err)
	}
	return company, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (Company, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
	company, err := scanCompany(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, fmt.Errorf("get company: %w", err)
	}
	return company, nil
}

// FindCompanyByName matches case-insensitively on the exact name; used by
// enrichment to avoid duplicate company records.
func (s *PostgresStore) FindCompanyByName(ctx context.Context, name string) (Company, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE LOWER(name) = LOWER($1)`, name)
	company, err := scanCompany(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, fmt.Errorf("find company: %w", err)
	}
	return company, nil
}

func (s *PostgresStore) UpdateCompany(ctx context.Context, company Company) (Company, error) {
	company.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE companies SET name=$2, description=$3, industry=$4, size=$5, location=$6,
			website=$7, founded_year=$8, tags=$9, updated_at=$10
		WHERE id=$1
	`, company.ID, company.Name, company.Description, company.Industry, company.Size,
		company.Location, company.Website, company.FoundedYear, encodeTags(company.Tags),
		company.UpdatedAt)
	if err != nil {
		return Company{}, fmt.Errorf("update company: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return Company{}, ErrNotFound
	}
	return s.GetCompany(ctx, company.ID)
}

func (s *PostgresStore) DeleteCompany(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete company: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]Company, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	companies := make([]Company, 0)
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		companies = append(companies, company)
	}
	return companies, rows.Err()
}

func (s *PostgresStore) cardLinks(ctx context.Context, cardID string) ([]CompanyLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cc.company_id, c.name
		FROM card_companies cc
		JOIN companies c ON c.id = cc.company_id
		WHERE cc.card_id = $1
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("card links: %w", err)
	}
	defer rows.Close()

	var links []CompanyLink
	for rows.Next() {
		var link CompanyLink
		if err := rows.Scan(&link.CompanyID, &link.Name); err != nil {
			return nil, fmt.Errorf("scan card link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *PostgresStore) allCardLinks(ctx context.Context) (map[string][]CompanyLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cc.card_id, cc.company_id, c.name
		FROM card_companies cc
		JOIN companies c ON c.id = cc.company_id
	`)
	if err != nil {
		return nil, fmt.Errorf("card links: %w", err)
	}
	defer rows.Close()

	links := map[string][]CompanyLink{}
	for rows.Next() {
		var cardID string
		var link CompanyLink
		if err := rows.Scan(&cardID, &link.CompanyID, &link.Name); err != nil {
			return nil, fmt.Errorf("scan card link: %w", err)
		}
		links[cardID] = append(links[cardID], link)
	}
	return links, rows.Err()
}

// tags live in a jsonb column; nil slices round-trip as empty arrays
func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	encoded, _ := json.Marshal(tags)
	return string(encoded)
}

func decodeTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (Card, error) {
	var card Card
	var tags string
	err := row.Scan(&card.ID, &card.OwnerID, &card.Name, &card.Title, &card.Company,
		&card.Email, &card.Phone, &card.Website, &card.Address, &card.Notes, &card.RawText,
		&tags, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return Card{}, err
	}
	card.Tags = decodeTags(tags)
	return card, nil
}

func scanCompany(row rowScanner) (Company, error) {
	var company Company
	var tags string
	err := row.Scan(&company.ID, &company.Name, &company.Description, &company.Industry,
		&company.Size, &company.Location, &company.Website, &company.FoundedYear, &tags,
		&company.CreatedAt, &company.UpdatedAt)
	if err != nil {
		return Company{}, err
	}
	company.Tags = decodeTags(tags)
	return company, nil
}
