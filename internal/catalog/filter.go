package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidFilter = errors.New("invalid filter")

const (
	DefaultLimit  = 12
	DefaultStatus = "active"

	// StatusAll is the explicit sentinel callers pass to see every
	// status; the default is always "active".
	StatusAll = "all"
)

// FilterSpec selects one page of the catalog. Optional predicates are
// pointers so "absent" and "zero" stay distinct; present predicates
// narrow the match set with logical AND.
type FilterSpec struct {
	Page         int      `form:"page" json:"page"`
	Limit        int      `form:"limit" json:"limit"`
	Status       string   `form:"status" json:"status"`
	PropertyType string   `form:"propertyType" json:"propertyType"`
	Location     string   `form:"location" json:"location"`
	MinPrice     *float64 `form:"minPrice" json:"minPrice"`
	MaxPrice     *float64 `form:"maxPrice" json:"maxPrice"`
	Featured     *bool    `form:"featured" json:"featured"`
}

// Normalize applies defaults and canonicalizes free-form fields so that
// equivalent filters collapse to one cache key. maxLimit guards against
// unbounded scans.
func (f FilterSpec) Normalize(defaultLimit, maxLimit int) (FilterSpec, error) {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = defaultLimit
	}
	if f.Page < 0 {
		return f, fmt.Errorf("%w: page must be positive, got %d", ErrInvalidFilter, f.Page)
	}
	if f.Limit < 0 {
		return f, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidFilter, f.Limit)
	}
	if f.Limit > maxLimit {
		return f, fmt.Errorf("%w: limit %d exceeds maximum %d", ErrInvalidFilter, f.Limit, maxLimit)
	}
	if f.MinPrice != nil && *f.MinPrice < 0 {
		return f, fmt.Errorf("%w: minPrice must be non-negative", ErrInvalidFilter)
	}
	if f.MaxPrice != nil && *f.MaxPrice < 0 {
		return f, fmt.Errorf("%w: maxPrice must be non-negative", ErrInvalidFilter)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return f, fmt.Errorf("%w: minPrice %v exceeds maxPrice %v", ErrInvalidFilter, *f.MinPrice, *f.MaxPrice)
	}

	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	if f.Status == "" {
		f.Status = DefaultStatus
	}
	// propertyType is an exact match against the stored value, so only
	// whitespace is stripped; case is significant.
	f.PropertyType = strings.TrimSpace(f.PropertyType)
	f.Location = strings.TrimSpace(f.Location)
	return f, nil
}

// CacheKey hashes the normalized spec into the canonical cache key.
// Fields are emitted in a fixed order so equivalent filters hash
// identically regardless of how the caller assembled them.
func (f FilterSpec) CacheKey() string {
	var sb strings.Builder
	sb.WriteString("page=" + strconv.Itoa(f.Page))
	sb.WriteString("&limit=" + strconv.Itoa(f.Limit))
	sb.WriteString("&status=" + f.Status)
	sb.WriteString("&propertyType=" + f.PropertyType)
	sb.WriteString("&location=" + strings.ToLower(f.Location))
	if f.MinPrice != nil {
		sb.WriteString("&minPrice=" + strconv.FormatFloat(*f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice != nil {
		sb.WriteString("&maxPrice=" + strconv.FormatFloat(*f.MaxPrice, 'f', -1, 64))
	}
	if f.Featured != nil {
		sb.WriteString("&featured=" + strconv.FormatBool(*f.Featured))
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return "properties:" + hex.EncodeToString(sum[:])
}
