package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/testutil"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "summer-jazz-2026", Slugify("  Summer Jazz, 2026! "))
	assert.Equal(t, "a-b", Slugify("a--b"))
}

func TestBlogLifecycle(t *testing.T) {
	svc := NewService(testutil.NewDB(t), logger.NewNop())
	ctx := context.Background()

	draft := &models.Blog{Title: "Backstage Tour", Body: "soon", AuthorID: "admin-1"}
	require.NoError(t, svc.CreateBlog(ctx, draft))
	assert.Equal(t, "backstage-tour", draft.Slug)
	assert.True(t, draft.PublishedAt.IsZero())

	err := svc.CreateBlog(ctx, &models.Blog{Title: "Backstage tour!", AuthorID: "admin-1"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = svc.GetBlogBySlug(ctx, "backstage-tour", false)
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "drafts are hidden from the public")

	got, err := svc.GetBlogBySlug(ctx, "backstage-tour", true)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, got.ID)

	publish := true
	updated, err := svc.UpdateBlog(ctx, draft.ID, BlogUpdate{Published: &publish})
	require.NoError(t, err)
	assert.True(t, updated.Published)
	assert.False(t, updated.PublishedAt.IsZero())

	public, err := svc.ListBlogs(ctx, true, 0, 0)
	require.NoError(t, err)
	assert.Len(t, public, 1)

	require.NoError(t, svc.DeleteBlog(ctx, draft.ID))
	assert.True(t, errors.Is(svc.DeleteBlog(ctx, draft.ID), apperr.ErrNotFound))

	_, err = svc.UpdateBlog(ctx, "missing", BlogUpdate{Published: &publish})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestActiveBanners(t *testing.T) {
	svc := NewService(testutil.NewDB(t), logger.NewNop())
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	current := &models.Banner{Title: "Now", ImageURL: "https://cdn.example.com/now.png", Position: 2, Active: true, StartsAt: now.Add(-time.Hour)}
	first := &models.Banner{Title: "First", ImageURL: "https://cdn.example.com/first.png", Position: 1, Active: true, StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)}
	expired := &models.Banner{Title: "Old", ImageURL: "https://cdn.example.com/old.png", Active: true, StartsAt: now.Add(-48 * time.Hour), EndsAt: now.Add(-24 * time.Hour)}
	disabled := &models.Banner{Title: "Off", ImageURL: "https://cdn.example.com/off.png", Active: false, StartsAt: now.Add(-time.Hour)}
	future := &models.Banner{Title: "Soon", ImageURL: "https://cdn.example.com/soon.png", Active: true, StartsAt: now.Add(time.Hour)}
	for _, b := range []*models.Banner{current, first, expired, disabled, future} {
		require.NoError(t, svc.CreateBanner(ctx, b))
	}

	active, err := svc.ListActiveBanners(ctx, now)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "First", active[0].Title)
	assert.Equal(t, "Now", active[1].Title)

	err = svc.CreateBanner(ctx, &models.Banner{Title: "Bad", ImageURL: "not a url"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	err = svc.CreateBanner(ctx, &models.Banner{Title: "Backwards", ImageURL: "https://cdn.example.com/x.png", StartsAt: now, EndsAt: now.Add(-time.Minute)})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	current.Active = false
	require.NoError(t, svc.UpdateBanner(ctx, current))
	active, err = svc.ListActiveBanners(ctx, now)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, svc.DeleteBanner(ctx, first.ID))
	assert.True(t, errors.Is(svc.UpdateBanner(ctx, first), apperr.ErrNotFound))

	all, err := svc.ListBanners(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
