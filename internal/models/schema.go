package models

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// CreateSchema creates any missing table straight from the models.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range All() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}
