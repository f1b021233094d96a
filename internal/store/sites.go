package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tbechet/safestep/internal/model"
)

// CreateSite creates a new construction site.
func CreateSite(ctx context.Context, db *sql.DB, name, city, address string) (*model.Site, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO sites (name, city, address) VALUES (?, ?, ?)`,
		name, city, address,
	)
	if err != nil {
		return nil, fmt.Errorf("creating site: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting site id: %w", err)
	}

	return GetSite(ctx, db, id)
}

// GetSite returns a site by ID.
func GetSite(ctx context.Context, db *sql.DB, id int64) (*model.Site, error) {
	s := &model.Site{}
	var city, address sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, name, city, address, created_at, deleted_at
		 FROM sites WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &city, &address, &s.CreatedAt, &s.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting site: %w", err)
	}
	s.City = city.String
	s.Address = address.String
	return s, nil
}

// ListSitesForUser returns the sites a user is assigned to. Admins see all
// non-deleted sites.
func ListSitesForUser(ctx context.Context, db *sql.DB, userID int64, admin bool) ([]model.Site, error) {
	var rows *sql.Rows
	var err error

	if admin {
		rows, err = db.QueryContext(ctx,
			`SELECT id, name, city, address, created_at, deleted_at
			 FROM sites WHERE deleted_at IS NULL ORDER BY name`,
		)
	} else {
		rows, err = db.QueryContext(ctx,
			`SELECT s.id, s.name, s.city, s.address, s.created_at, s.deleted_at
			 FROM sites s
			 JOIN site_user su ON su.site_id = s.id
			 WHERE su.user_id = ? AND s.deleted_at IS NULL
			 ORDER BY s.name`, userID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	defer rows.Close()

	var sites []model.Site
	for rows.Next() {
		var s model.Site
		var city, address sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &city, &address, &s.CreatedAt, &s.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning site: %w", err)
		}
		s.City = city.String
		s.Address = address.String
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

// AddSiteMember assigns a user to a site.
func AddSiteMember(ctx context.Context, db *sql.DB, siteID, userID int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO site_user (site_id, user_id) VALUES (?, ?)`,
		siteID, userID,
	)
	if err != nil {
		return fmt.Errorf("adding site member: %w", err)
	}
	return nil
}
