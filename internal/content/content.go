// Package content serves the marketplace's editorial pages: blog posts and
// homepage banners.
package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
)

type Service struct {
	DB       bun.IDB
	Logger   *logger.Logger
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

func NewService(db bun.IDB, log *logger.Logger) *Service {
	return &Service{
		DB:       db,
		Logger:   log,
		validate: validator.New(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func (s *Service) check(v interface{}) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%v: %w", err, apperr.ErrValidation)
	}
	return nil
}

// Blogs

func (s *Service) CreateBlog(ctx context.Context, b *models.Blog) error {
	if b.Slug == "" {
		b.Slug = b.Title
	}
	b.Slug = Slugify(b.Slug)
	if err := s.check(b); err != nil {
		return err
	}
	now := s.now().UTC()
	b.ID = s.newID()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.Published {
		b.PublishedAt = now
	}

	if _, err := s.DB.NewInsert().Model(b).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("slug %s: %w", b.Slug, apperr.ErrConflict)
		}
		return err
	}
	s.Logger.Info("CONTENT", fmt.Sprintf("Blog %s created", b.Slug))
	return nil
}

// GetBlogBySlug hides drafts unless includeDrafts is set.
func (s *Service) GetBlogBySlug(ctx context.Context, slug string, includeDrafts bool) (*models.Blog, error) {
	var b models.Blog
	q := s.DB.NewSelect().Model(&b).Where("slug = ?", slug)
	if !includeDrafts {
		q = q.Where("published = ?", true)
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("blog %s: %w", slug, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &b, nil
}

func (s *Service) ListBlogs(ctx context.Context, publishedOnly bool, limit, offset int) ([]models.Blog, error) {
	var blogs []models.Blog
	q := s.DB.NewSelect().Model(&blogs).Order("created_at DESC").Order("id ASC")
	if publishedOnly {
		q = q.Where("published = ?", true)
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	err := q.Scan(ctx)
	return blogs, err
}

type BlogUpdate struct {
	Title     *string `json:"title" validate:"omitempty,max=200"`
	Body      *string `json:"body"`
	Published *bool   `json:"published"`
}

func (s *Service) UpdateBlog(ctx context.Context, id string, upd BlogUpdate) (*models.Blog, error) {
	if err := s.check(upd); err != nil {
		return nil, err
	}
	var b models.Blog
	if err := s.DB.NewSelect().Model(&b).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("blog %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}

	now := s.now().UTC()
	if upd.Title != nil {
		b.Title = *upd.Title
	}
	if upd.Body != nil {
		b.Body = *upd.Body
	}
	if upd.Published != nil {
		if *upd.Published && !b.Published {
			b.PublishedAt = now
		}
		if !*upd.Published {
			b.PublishedAt = time.Time{}
		}
		b.Published = *upd.Published
	}
	if err := s.check(&b); err != nil {
		return nil, err
	}
	b.UpdatedAt = now

	_, err := s.DB.NewUpdate().Model(&b).
		Column("title", "body", "published", "published_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Service) DeleteBlog(ctx context.Context, id string) error {
	return s.delete(ctx, (*models.Blog)(nil), "blog", id)
}

// Banners

func (s *Service) CreateBanner(ctx context.Context, b *models.Banner) error {
	if err := s.check(b); err != nil {
		return err
	}
	if b.StartsAt.IsZero() {
		b.StartsAt = s.now().UTC()
	}
	if !b.EndsAt.IsZero() && !b.EndsAt.After(b.StartsAt) {
		return fmt.Errorf("ends_at must be after starts_at: %w", apperr.ErrValidation)
	}
	b.ID = s.newID()
	b.CreatedAt = s.now().UTC()

	if _, err := s.DB.NewInsert().Model(b).Exec(ctx); err != nil {
		return err
	}
	s.Logger.Info("CONTENT", fmt.Sprintf("Banner %s created", b.ID))
	return nil
}

// ListActiveBanners returns enabled banners whose window contains at,
// ordered by position.
func (s *Service) ListActiveBanners(ctx context.Context, at time.Time) ([]models.Banner, error) {
	var banners []models.Banner
	err := s.DB.NewSelect().
		Model(&banners).
		Where("active = ?", true).
		Where("starts_at <= ?", at.UTC()).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("ends_at IS NULL").WhereOr("ends_at > ?", at.UTC())
		}).
		Order("position ASC").
		Order("created_at ASC").
		Scan(ctx)
	return banners, err
}

func (s *Service) ListBanners(ctx context.Context) ([]models.Banner, error) {
	var banners []models.Banner
	err := s.DB.NewSelect().Model(&banners).Order("position ASC").Order("created_at ASC").Scan(ctx)
	return banners, err
}

// UpdateBanner replaces the editable fields of an existing banner.
func (s *Service) UpdateBanner(ctx context.Context, b *models.Banner) error {
	if err := s.check(b); err != nil {
		return err
	}
	if !b.EndsAt.IsZero() && !b.EndsAt.After(b.StartsAt) {
		return fmt.Errorf("ends_at must be after starts_at: %w", apperr.ErrValidation)
	}
	res, err := s.DB.NewUpdate().Model(b).
		Column("title", "image_url", "link_url", "position", "active", "starts_at", "ends_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("banner %s: %w", b.ID, apperr.ErrNotFound)
	}
	return nil
}

func (s *Service) DeleteBanner(ctx context.Context, id string) error {
	return s.delete(ctx, (*models.Banner)(nil), "banner", id)
}

func (s *Service) delete(ctx context.Context, model interface{}, kind, id string) error {
	res, err := s.DB.NewDelete().Model(model).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, apperr.ErrNotFound)
	}
	s.Logger.Info("CONTENT", fmt.Sprintf("Deleted %s %s", kind, id))
	return nil
}
