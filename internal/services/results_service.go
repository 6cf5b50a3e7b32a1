package services

import (
	"context"
	"log/slog"

	apperrors "github.com/Chrswb4/startup-ds-workshop/internal/errors"
	"github.com/Chrswb4/startup-ds-workshop/internal/warehouse"
)

// ResultsService reads aggregated results out of the warehouse
type ResultsService struct {
	store  *warehouse.Store
	logger *slog.Logger
}

// NewResultsService creates a results service
func NewResultsService(store *warehouse.Store, logger *slog.Logger) *ResultsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultsService{
		store:  store,
		logger: logger.With(slog.String("service", "results")),
	}
}

// ClassCounts returns the loaded passenger counts per ticket class
func (s *ResultsService) ClassCounts(ctx context.Context) ([]warehouse.ClassCount, error) {
	rows, err := s.store.ClassCounts(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to read class counts", slog.String("error", err.Error()))
		return nil, apperrors.NewStorageError("failed to read class counts", err)
	}
	return rows, nil
}

// HasResults reports whether any class counts have been loaded
func (s *ResultsService) HasResults(ctx context.Context) (bool, error) {
	count, err := s.store.CountRows(ctx)
	if err != nil {
		return false, apperrors.NewStorageError("failed to count warehouse rows", err)
	}
	return count > 0, nil
}
