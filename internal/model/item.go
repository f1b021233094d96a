package model

import "time"

// Item represents a piece of site safety equipment (an EPI record).
type Item struct {
	ID          int64      `json:"id"`
	TagRef      string     `json:"tag_ref"`
	Category    string     `json:"category"`
	Status      string     `json:"status"`
	SiteID      *int64     `json:"site_id,omitempty"`
	OwnerUserID int64      `json:"owner_user_id"`
	Quantity    int        `json:"quantity"`
	Available   int        `json:"available"`
	LastCheck   string     `json:"last_check,omitempty"`
	PhotoMime   string     `json:"photo_mime,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	// IsLocalOnly marks a client-side item the server has not confirmed
	// yet. Never persisted server-side.
	IsLocalOnly bool `json:"is_local_only,omitempty"`

	// Joined field (not always populated).
	SiteName string `json:"site_name,omitempty"`
}

// Item categories.
const (
	CategoryHelmet      = "helmet"
	CategoryHarness     = "harness"
	CategoryGasDetector = "gas_detector"
	CategoryGloves      = "gloves"
	CategoryVest        = "vest"
	CategoryOther       = "other"
)

// Item statuses.
const (
	StatusCompliant        = "compliant"
	StatusNeedsInspection  = "needs_inspection"
	StatusDamaged          = "damaged"
	StatusUnderMaintenance = "under_maintenance"
)

// ValidCategory reports whether category is a known item category.
func ValidCategory(category string) bool {
	switch category {
	case CategoryHelmet, CategoryHarness, CategoryGasDetector, CategoryGloves, CategoryVest, CategoryOther:
		return true
	}
	return false
}

// ValidStatus reports whether status is a known item status.
func ValidStatus(status string) bool {
	switch status {
	case StatusCompliant, StatusNeedsInspection, StatusDamaged, StatusUnderMaintenance:
		return true
	}
	return false
}
