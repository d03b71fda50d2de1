package models

import "time"

// Product представляет цифровой товар каталога.
// Цена фиксируется в нативной валюте настроенной сети.
type Product struct {
	UID          string    `json:"product_uid"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	Price        float64   `json:"price"`
	Currency     string    `json:"currency"`
	Type         string    `json:"type"` // article, image, music или video
	ContentURL   *string   `json:"content_url,omitempty"`
	ThumbnailURL *string   `json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
