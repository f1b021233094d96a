package model

import "time"

// Site represents a construction site that items can be assigned to.
type Site struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	City      string     `json:"city,omitempty"`
	Address   string     `json:"address,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
