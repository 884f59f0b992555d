package analytics

import "context"

// StoreSummary aggregates the dashboard read models for one store.
type StoreSummary struct {
	StoreID          string      `json:"store_id"`
	Revenue          float64     `json:"revenue"`
	OutstandingCount int         `json:"outstanding_count"`
	TopColor         *ColorSales `json:"top_color,omitempty"`
}

type Service struct {
	db *DB
}

func NewService(db *DB) *Service {
	return &Service{db: db}
}

func (s *Service) StoreSummary(ctx context.Context, storeID string) (*StoreSummary, error) {
	revenue, err := s.db.RevenueByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}

	outstanding, err := s.db.OutstandingCount(ctx, storeID)
	if err != nil {
		return nil, err
	}

	topColor, err := s.db.TopSellingColor(ctx, storeID)
	if err != nil {
		return nil, err
	}

	return &StoreSummary{
		StoreID:          storeID,
		Revenue:          revenue,
		OutstandingCount: outstanding,
		TopColor:         topColor,
	}, nil
}

func (s *Service) DailySales(ctx context.Context, storeID string) ([]DailySalesData, error) {
	return s.db.DailySales(ctx, storeID)
}
