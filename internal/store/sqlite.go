// Package store persists email alert subscriptions and the log of alerts sent.
// The risk dataset itself is never persisted.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/lox/firerisk/internal/logging"
	"github.com/lox/firerisk/internal/models"
)

const dateLayout = "2006-01-02"

// ErrInvalidSubscription is returned for subscriptions missing an email or county.
var ErrInvalidSubscription = errors.New("invalid subscription")

type Store struct {
	db  *sql.DB
	loc *time.Location
	log *logrus.Entry
}

// Open opens the SQLite database at path with WAL journaling.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	db.Exec("PRAGMA busy_timeout=5000")
	return db, nil
}

// New wraps db. Alert dates are local calendar days in loc.
func New(db *sql.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: db, loc: loc, log: logging.For("store")}
}

// Subscribe creates a subscription, or updates the minimum level of an existing
// one for the same email and county.
func (s *Store) Subscribe(sub models.AlertSubscription, now time.Time) (models.AlertSubscription, error) {
	sub.Email = strings.ToLower(strings.TrimSpace(sub.Email))
	sub.County = strings.TrimSpace(sub.County)
	if sub.Email == "" || sub.County == "" || sub.MinLevel == "" {
		return models.AlertSubscription{}, ErrInvalidSubscription
	}

	_, err := s.db.Exec(`
		INSERT INTO alert_subscriptions (email, county, min_level, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email, county) DO UPDATE SET
			min_level = excluded.min_level
	`, sub.Email, sub.County, sub.MinLevel, now.UTC())
	if err != nil {
		return models.AlertSubscription{}, fmt.Errorf("upsert subscription: %w", err)
	}

	row := s.db.QueryRow(`
		SELECT id, email, county, min_level, created_at
		FROM alert_subscriptions
		WHERE email = ? AND county = ?
	`, sub.Email, sub.County)
	return scanSubscription(row)
}

// Unsubscribe removes the email's subscription for county, or all of its
// subscriptions when county is empty. It reports how many were removed.
func (s *Store) Unsubscribe(email, county string) (int64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return 0, ErrInvalidSubscription
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	where, args := "email = ?", []any{email}
	if county != "" {
		where, args = "email = ? AND county = ?", []any{email, county}
	}
	if _, err := tx.Exec(`
		DELETE FROM alert_log WHERE subscription_id IN (
			SELECT id FROM alert_subscriptions WHERE `+where+`
		)`, args...); err != nil {
		return 0, fmt.Errorf("delete alert log: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM alert_subscriptions WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete subscriptions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// Subscriptions returns every subscription, oldest first.
func (s *Store) Subscriptions() ([]models.AlertSubscription, error) {
	rows, err := s.db.Query(`
		SELECT id, email, county, min_level, created_at
		FROM alert_subscriptions
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.AlertSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (models.AlertSubscription, error) {
	var sub models.AlertSubscription
	if err := row.Scan(&sub.ID, &sub.Email, &sub.County, &sub.MinLevel, &sub.CreatedAt); err != nil {
		return models.AlertSubscription{}, err
	}
	return sub, nil
}

// ClaimAlert records that subscription subID is being alerted about county at
// level on the local day of now. It returns false when that alert was already
// claimed, so each alert goes out at most once per day.
func (s *Store) ClaimAlert(subID int64, county, level string, now time.Time) (bool, error) {
	res, err := s.db.Exec(`
		INSERT INTO alert_log (subscription_id, county, level, alert_date, sent_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subscription_id, county, level, alert_date) DO NOTHING
	`, subID, county, level, s.localDate(now), now.UTC())
	if err != nil {
		return false, fmt.Errorf("claim alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseAlert undoes a claim whose delivery failed so a later fetch retries it.
func (s *Store) ReleaseAlert(subID int64, county, level string, now time.Time) error {
	_, err := s.db.Exec(`
		DELETE FROM alert_log
		WHERE subscription_id = ? AND county = ? AND level = ? AND alert_date = ?
	`, subID, county, level, s.localDate(now))
	return err
}

// RecentAlerts returns the latest delivered alerts, newest first.
func (s *Store) RecentAlerts(limit int) ([]models.AlertLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT l.subscription_id, s.email, l.county, l.level, l.alert_date, l.sent_at
		FROM alert_log l
		JOIN alert_subscriptions s ON s.id = l.subscription_id
		ORDER BY l.sent_at DESC, l.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AlertLogEntry
	for rows.Next() {
		var e models.AlertLogEntry
		if err := rows.Scan(&e.SubscriptionID, &e.Email, &e.County, &e.Level, &e.AlertDate, &e.SentAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) localDate(t time.Time) string {
	return t.In(s.loc).Format(dateLayout)
}
