package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
)

// Directory is the read-only view of students, schools and terms that the
// payment engine depends on.
type Directory interface {
	GetStudent(ctx context.Context, id uint) (*models.Student, error)
	GetSchool(ctx context.Context, id uint) (*models.School, error)
	GetTerm(ctx context.Context, id uint) (*models.PaymentTerm, error)
	// ActiveTerm returns the active term for a school, or the platform term
	// when schoolID is nil. It returns nil, nil when no term is active.
	ActiveTerm(ctx context.Context, schoolID *uint) (*models.PaymentTerm, error)
}

// GormDirectory reads the directory tables from the shared database.
type GormDirectory struct {
	db *gorm.DB
}

var _ Directory = (*GormDirectory)(nil)

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) GetStudent(ctx context.Context, id uint) (*models.Student, error) {
	var student models.Student
	if err := d.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return nil, notFound(err, ErrStudentNotFound, id)
	}
	return &student, nil
}

func (d *GormDirectory) GetSchool(ctx context.Context, id uint) (*models.School, error) {
	var school models.School
	if err := d.db.WithContext(ctx).First(&school, id).Error; err != nil {
		return nil, notFound(err, ErrSchoolNotFound, id)
	}
	return &school, nil
}

func (d *GormDirectory) GetTerm(ctx context.Context, id uint) (*models.PaymentTerm, error) {
	var term models.PaymentTerm
	if err := d.db.WithContext(ctx).First(&term, id).Error; err != nil {
		return nil, notFound(err, ErrTermNotFound, id)
	}
	return &term, nil
}

func (d *GormDirectory) ActiveTerm(ctx context.Context, schoolID *uint) (*models.PaymentTerm, error) {
	q := d.db.WithContext(ctx).Where("is_active = ?", true)
	if schoolID == nil {
		q = q.Where("school_id IS NULL")
	} else {
		q = q.Where("school_id = ?", *schoolID)
	}

	var term models.PaymentTerm
	err := q.Order("start_date desc").First(&term).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active term: %w", err)
	}
	return &term, nil
}

func notFound(err, sentinel error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %d", sentinel, id)
	}
	return fmt.Errorf("directory lookup failed: %w", err)
}

// CachedDirectory is a read-through Redis cache in front of another Directory.
// Lookups that fail are not cached.
type CachedDirectory struct {
	next  Directory
	cache *RedisCache
	ttl   time.Duration
}

var _ Directory = (*CachedDirectory)(nil)

func NewCachedDirectory(next Directory, cache *RedisCache, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{next: next, cache: cache, ttl: ttl}
}

func (d *CachedDirectory) GetStudent(ctx context.Context, id uint) (*models.Student, error) {
	return GetOrSet(ctx, d.cache, "directory:student:"+strconv.FormatUint(uint64(id), 10), d.ttl, func() (*models.Student, error) {
		return d.next.GetStudent(ctx, id)
	})
}

func (d *CachedDirectory) GetSchool(ctx context.Context, id uint) (*models.School, error) {
	return GetOrSet(ctx, d.cache, "directory:school:"+strconv.FormatUint(uint64(id), 10), d.ttl, func() (*models.School, error) {
		return d.next.GetSchool(ctx, id)
	})
}

func (d *CachedDirectory) GetTerm(ctx context.Context, id uint) (*models.PaymentTerm, error) {
	return GetOrSet(ctx, d.cache, "directory:term:"+strconv.FormatUint(uint64(id), 10), d.ttl, func() (*models.PaymentTerm, error) {
		return d.next.GetTerm(ctx, id)
	})
}

func (d *CachedDirectory) ActiveTerm(ctx context.Context, schoolID *uint) (*models.PaymentTerm, error) {
	key := "directory:active_term:platform"
	if schoolID != nil {
		key = "directory:active_term:" + strconv.FormatUint(uint64(*schoolID), 10)
	}
	return GetOrSet(ctx, d.cache, key, d.ttl, func() (*models.PaymentTerm, error) {
		return d.next.ActiveTerm(ctx, schoolID)
	})
}
