package models

import "time"

type Property struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	PropertyType string    `json:"property_type" gorm:"index"`
	Status       string    `json:"status" gorm:"index;default:active"`
	Price        float64   `json:"price"`
	Bedrooms     *int      `json:"bedrooms"`
	Bathrooms    *int      `json:"bathrooms"`
	Area         *float64  `json:"area"`
	Amenities    []string  `json:"amenities" gorm:"serializer:json"`
	Featured     bool      `json:"featured" gorm:"index"`
	Images       []string  `json:"images" gorm:"serializer:json"`
	Slug         string    `json:"slug" gorm:"uniqueIndex"`
	Latitude     *float64  `json:"latitude"`
	Longitude    *float64  `json:"longitude"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

type PageResult struct {
	Properties []Property `json:"properties"`
	Pagination Pagination `json:"pagination"`
}

type CatalogStats struct {
	TotalProperties int64   `json:"total_properties"`
	TotalActive     int64   `json:"total_active"`
	TotalSold       int64   `json:"total_sold"`
	AveragePrice    float64 `json:"average_price"`
}
