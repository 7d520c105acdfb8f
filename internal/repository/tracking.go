package repository

import (
	"database/sql"
	"fmt"
	"time"

	"outreach/internal/models"
)

type TrackingRepository struct {
	db *sql.DB
}

func NewTrackingRepository(db *sql.DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

// Create inserts a tracking record. Exactly one record exists per successful
// send; the unique email_id constraint backs that up.
func (r *TrackingRepository) Create(rec *models.TrackingRecord) error {
	_, err := r.db.Exec(`
		INSERT INTO email_tracking (email_id, company_name, contact_name, email, sent_time, is_opened, is_replied)
		VALUES (?, ?, ?, ?, ?, 0, 0)`,
		rec.EmailID, rec.Company, rec.ContactName, rec.Email, rec.SentTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create tracking record: %w", err)
	}
	return nil
}

// HasRecord reports whether a tracking record already exists for the address.
// Checked before every send as a second at-most-once barrier, independent of
// the contact's dispatch flag.
func (r *TrackingRepository) HasRecord(email string) (bool, error) {
	var id int64
	err := r.db.QueryRow(`SELECT id FROM email_tracking WHERE email = ? LIMIT 1`, email).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check tracking record: %w", err)
	}
	return true, nil
}

// GetByEmailID returns the record for a tracking token, or nil if unknown.
func (r *TrackingRepository) GetByEmailID(emailID string) (*models.TrackingRecord, error) {
	rec := &models.TrackingRecord{}
	var openTime, replyTime sql.NullTime
	err := r.db.QueryRow(`
		SELECT email_id, company_name, contact_name, email, sent_time, is_opened, open_time, is_replied, reply_time
		FROM email_tracking WHERE email_id = ?`, emailID,
	).Scan(&rec.EmailID, &rec.Company, &rec.ContactName, &rec.Email, &rec.SentTime,
		&rec.IsOpened, &openTime, &rec.IsReplied, &replyTime)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if openTime.Valid {
		rec.OpenTime = &openTime.Time
	}
	if replyTime.Valid {
		rec.ReplyTime = &replyTime.Time
	}
	return rec, nil
}

// MarkOpened records the open transition for a tracking token. The guard in
// the WHERE clause makes repeated pixel hits a no-op: only the first call
// flips is_opened and sets open_time. Returns whether a transition happened.
func (r *TrackingRepository) MarkOpened(emailID string, at time.Time) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE email_tracking SET is_opened = 1, open_time = ?
		WHERE email_id = ? AND is_opened = 0`,
		at, emailID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark opened: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkReplied records the reply transition for a tracking token, idempotent
// the same way MarkOpened is.
func (r *TrackingRepository) MarkReplied(emailID string, at time.Time) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE email_tracking SET is_replied = 1, reply_time = ?
		WHERE email_id = ? AND is_replied = 0`,
		at, emailID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark replied: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountSentBetween counts records whose sent_time falls in [start, end].
func (r *TrackingRepository) CountSentBetween(start, end time.Time) (int, error) {
	return r.countBetween(`SELECT COUNT(*) FROM email_tracking WHERE sent_time BETWEEN ? AND ?`, start, end)
}

// CountOpenedBetween counts records opened within [start, end].
func (r *TrackingRepository) CountOpenedBetween(start, end time.Time) (int, error) {
	return r.countBetween(`SELECT COUNT(*) FROM email_tracking WHERE is_opened = 1 AND open_time BETWEEN ? AND ?`, start, end)
}

// CountRepliedBetween counts records replied to within [start, end].
func (r *TrackingRepository) CountRepliedBetween(start, end time.Time) (int, error) {
	return r.countBetween(`SELECT COUNT(*) FROM email_tracking WHERE is_replied = 1 AND reply_time BETWEEN ? AND ?`, start, end)
}

func (r *TrackingRepository) countBetween(query string, start, end time.Time) (int, error) {
	var n int
	if err := r.db.QueryRow(query, start, end).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tracking records: %w", err)
	}
	return n, nil
}

// Totals returns unconditional sent/opened/replied counts over all history.
func (r *TrackingRepository) Totals() (sent, opened, replied int, err error) {
	err = r.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(is_opened), 0),
			COALESCE(SUM(is_replied), 0)
		FROM email_tracking`,
	).Scan(&sent, &opened, &replied)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count totals: %w", err)
	}
	return sent, opened, replied, nil
}
