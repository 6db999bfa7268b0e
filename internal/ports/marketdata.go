package ports

import (
	"context"
	"time"

	"cryptoSniper/internal/domain"
)

// PageRequest asks the market data source for at most Limit candles whose open time is <= End.
type PageRequest struct {
	Symbol   string
	Interval string
	End      time.Time
	Limit    int
}

// CandleSource is a paginated, read-only market data source bounded by an end timestamp and
// a maximum row count per call.
type CandleSource interface {
	// FetchPage returns candles in ascending open time. An empty slice means no older data exists.
	FetchPage(ctx context.Context, req PageRequest) ([]domain.Candle, error)
}
