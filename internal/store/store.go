package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/estatehub/catalog/internal/models"
)

var (
	ErrNotFound    = errors.New("property not found")
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the durable holder of property documents. It owns the
// documents exclusively; all other components read through it.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewStore(dbPath string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.RunMigrations(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) RunMigrations() error {
	return s.db.AutoMigrate(&models.Property{})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create inserts a property with a server-assigned id, a unique slug
// derived from the title when unset, and fresh timestamps. Identifiers
// are always minted here; any id in the payload is discarded.
func (s *Store) Create(p *models.Property) error {
	p.ID = uuid.NewString()
	if p.Status == "" {
		p.Status = "active"
	}

	slugVal, err := s.uniqueSlug(p.Slug, p.Title)
	if err != nil {
		return err
	}
	p.Slug = slugVal

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	return s.db.Create(p).Error
}

// UpdateByID applies a partial patch under last-writer-wins semantics
// and reports whether any record was changed. Server-owned fields in
// the patch are discarded.
func (s *Store) UpdateByID(id string, patch map[string]interface{}) (bool, error) {
	delete(patch, "id")
	delete(patch, "slug")
	delete(patch, "created_at")
	delete(patch, "updated_at")
	if len(patch) == 0 {
		return false, nil
	}

	// Collection-valued fields are stored as JSON text; map updates
	// bypass the gorm serializer so marshal them here.
	for _, field := range []string{"amenities", "images"} {
		if v, ok := patch[field]; ok {
			b, err := json.Marshal(v)
			if err != nil {
				return false, fmt.Errorf("invalid %s value: %w", field, err)
			}
			patch[field] = string(b)
		}
	}
	patch["updated_at"] = time.Now().UTC()

	res := s.db.Model(&models.Property{}).Where("id = ?", id).Updates(patch)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteByID removes a property and reports whether it existed.
func (s *Store) DeleteByID(id string) (bool, error) {
	res := s.db.Where("id = ?", id).Delete(&models.Property{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GetByID(id string) (*models.Property, error) {
	var p models.Property
	err := s.db.Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetBySlug(slugVal string) (*models.Property, error) {
	var p models.Property
	err := s.db.Where("slug = ?", slugVal).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListQuery narrows the match set with AND-composed predicates. Zero
// values mean "not present"; an empty Status matches every status (the
// engine translates its public sentinel before calling).
type ListQuery struct {
	Status       string
	PropertyType string
	Location     string
	MinPrice     *float64
	MaxPrice     *float64
	Featured     *bool
	Offset       int
	Limit        int
}

// List returns one sorted page plus the total match count. Sort order
// is fixed (created_at desc, id desc) so pagination stays stable under
// concurrent inserts.
func (s *Store) List(q ListQuery) ([]models.Property, int64, error) {
	tx := s.db.Model(&models.Property{})

	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.PropertyType != "" {
		tx = tx.Where("property_type = ?", q.PropertyType)
	}
	if q.Location != "" {
		tx = tx.Where("location LIKE ? ESCAPE '\\'", containsPattern(q.Location))
	}
	if q.MinPrice != nil {
		tx = tx.Where("price >= ?", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		tx = tx.Where("price <= ?", *q.MaxPrice)
	}
	if q.Featured != nil {
		tx = tx.Where("featured = ?", *q.Featured)
	}

	var total int64
	if err := tx.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var properties []models.Property
	err := tx.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&properties).Error
	if err != nil {
		return nil, 0, err
	}
	return properties, total, nil
}

// Featured returns active featured properties, newest first.
func (s *Store) Featured(limit int) ([]models.Property, error) {
	var properties []models.Property
	err := s.db.
		Where("status = ? AND featured = ?", "active", true).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&properties).Error
	return properties, err
}

// Search matches active properties whose title, description or location
// contains the text, case-insensitively.
func (s *Store) Search(text string) ([]models.Property, error) {
	pattern := containsPattern(text)
	var properties []models.Property
	err := s.db.
		Where("status = ?", "active").
		Where("title LIKE ? ESCAPE '\\' OR description LIKE ? ESCAPE '\\' OR location LIKE ? ESCAPE '\\'",
			pattern, pattern, pattern).
		Order("created_at DESC, id DESC").
		Find(&properties).Error
	return properties, err
}

func (s *Store) DistinctPropertyTypes() ([]string, error) {
	return s.distinct("property_type")
}

func (s *Store) DistinctLocations() ([]string, error) {
	return s.distinct("location")
}

func (s *Store) distinct(column string) ([]string, error) {
	var values []string
	err := s.db.Model(&models.Property{}).
		Distinct(column).
		Where(column + " <> ''").
		Pluck(column, &values).Error
	return values, err
}

// WithCoordinates returns active properties that have both latitude and
// longitude set, for the nearby search.
func (s *Store) WithCoordinates() ([]models.Property, error) {
	var properties []models.Property
	err := s.db.
		Where("status = ?", "active").
		Where("latitude IS NOT NULL AND longitude IS NOT NULL").
		Find(&properties).Error
	return properties, err
}

func (s *Store) Stats() (*models.CatalogStats, error) {
	var stats models.CatalogStats
	m := s.db.Model(&models.Property{})

	if err := m.Count(&stats.TotalProperties).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Property{}).Where("status = ?", "active").Count(&stats.TotalActive).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Property{}).Where("status = ?", "sold").Count(&stats.TotalSold).Error; err != nil {
		return nil, err
	}

	var avg *float64
	if err := s.db.Model(&models.Property{}).Select("AVG(price)").Scan(&avg).Error; err != nil {
		return nil, err
	}
	if avg != nil && !math.IsNaN(*avg) {
		stats.AveragePrice = *avg
	}
	return &stats, nil
}

// uniqueSlug derives a URL-safe slug from the title when none is given
// and uniquifies it with a numeric suffix on collision.
func (s *Store) uniqueSlug(explicit, title string) (string, error) {
	base := explicit
	if base == "" {
		base = slug.Make(title)
	} else {
		base = slug.Make(base)
	}
	if base == "" {
		base = uuid.NewString()[:8]
	}

	candidate := base
	for i := 2; ; i++ {
		var count int64
		if err := s.db.Model(&models.Property{}).Where("slug = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		s.logger.WithField("slug", candidate).Debug("Slug taken, trying next suffix")
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// containsPattern builds a case-insensitive LIKE pattern from a literal
// substring, escaping LIKE metacharacters from user input. SQLite LIKE
// is case-insensitive for ASCII by default.
func containsPattern(text string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(text)
	return "%" + escaped + "%"
}
