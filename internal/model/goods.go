package model

import "time"

// Goods is a catalog entry of merchandise sold at an event.
type Goods struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	Name        string    `json:"name"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description,omitempty"`
	ImageMime   string    `json:"image_mime,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Goods statuses.
const (
	GoodsStatusActive   = "active"
	GoodsStatusInactive = "inactive"
)
