package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Blog struct {
	bun.BaseModel `bun:"table:blogs"`

	ID          string    `bun:"id,pk" json:"id"`
	Slug        string    `bun:"slug,unique,notnull" json:"slug" validate:"required,max=160"`
	Title       string    `bun:"title,notnull" json:"title" validate:"required,max=200"`
	Body        string    `bun:"body" json:"body"`
	AuthorID    string    `bun:"author_id,notnull" json:"author_id" validate:"required"`
	Published   bool      `bun:"published,notnull" json:"published"`
	PublishedAt time.Time `bun:"published_at,nullzero" json:"published_at,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

type Banner struct {
	bun.BaseModel `bun:"table:banners"`

	ID        string    `bun:"id,pk" json:"id"`
	Title     string    `bun:"title,notnull" json:"title" validate:"required,max=200"`
	ImageURL  string    `bun:"image_url,notnull" json:"image_url" validate:"required,url"`
	LinkURL   string    `bun:"link_url" json:"link_url,omitempty" validate:"omitempty,url"`
	Position  int       `bun:"position,notnull" json:"position"`
	Active    bool      `bun:"active,notnull" json:"active"`
	StartsAt  time.Time `bun:"starts_at,notnull" json:"starts_at"`
	EndsAt    time.Time `bun:"ends_at,nullzero" json:"ends_at,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
