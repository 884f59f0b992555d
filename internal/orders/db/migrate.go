package db

import (
	"context"
	"log"

	"ms-fulfillment/internal/models"

	"github.com/uptrace/bun"
)

// Bootstrap creates the order tables if they do not exist. Production
// schema changes go through the migration runner; this covers local
// development and tests.
func Bootstrap(ctx context.Context, db *bun.DB) {
	tables := []interface{}{
		(*models.Order)(nil),
		(*models.OrderItem)(nil),
	}

	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			log.Fatalf("create table failed: %v", err)
		}
	}

	log.Println("order tables ready")
}
