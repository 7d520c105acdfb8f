package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"outreach/internal/models"
)

type ContactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create inserts a contact. Contacts are normally imported by external
// tooling; this exists for seeding and tests.
func (r *ContactRepository) Create(c *models.Contact) error {
	res, err := r.db.Exec(`
		INSERT INTO contacts (company_name, company_country, contact_name, contact_position, contact_email, contact_email_sent)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Company, c.Country, c.Name, c.Position, c.Email, c.EmailSent,
	)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

// SelectUnsent returns contacts whose dispatch flag is unset and whose email
// is non-empty, optionally filtered to a country set, capped at limit. The
// order is stable within one query (by id) but callers must not rely on
// anything beyond that.
func (r *ContactRepository) SelectUnsent(limit int, countries []string) ([]models.Contact, error) {
	query := `
		SELECT id, company_name, company_country, contact_name, contact_position, contact_email
		FROM contacts
		WHERE contact_email IS NOT NULL
		AND contact_email != ''
		AND contact_email_sent = 0`

	args := []any{}
	if len(countries) > 0 {
		placeholders := strings.Repeat("?, ", len(countries))
		query += " AND company_country IN (" + strings.TrimSuffix(placeholders, ", ") + ")"
		for _, c := range countries {
			args = append(args, c)
		}
	}

	query += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select unsent contacts: %w", err)
	}
	defer rows.Close()

	contacts := []models.Contact{}
	for rows.Next() {
		var c models.Contact
		var company, country, name, position sql.NullString
		if err := rows.Scan(&c.ID, &company, &country, &name, &position, &c.Email); err != nil {
			return nil, err
		}
		c.Company = company.String
		c.Country = country.String
		c.Name = name.String
		c.Position = position.String
		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}

// MarkSent sets the dispatch flag. This is the sole mechanism preventing
// re-selection, so it is called after every dispatch attempt even when the
// tracking write fails; otherwise a bad row would be retried forever.
func (r *ContactRepository) MarkSent(id int64) error {
	_, err := r.db.Exec(`UPDATE contacts SET contact_email_sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark contact %d sent: %w", id, err)
	}
	return nil
}
