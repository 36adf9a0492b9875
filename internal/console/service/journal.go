package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/attendance-engine/internal/audit"
	"github.com/xela07ax/attendance-engine/internal/domain"
)

// JournalProvider описывает контракт чтения журнала распознаваний.
// Модель та же, что пишет audit.Journal.
type JournalProvider interface {
	FetchRecent(ctx context.Context, personID string, limit int) ([]audit.Event, error)
	Stats(ctx context.Context) (domain.IngestStats, error)
}

type JournalService struct {
	repo JournalProvider
}

func NewJournalService(repo JournalProvider) *JournalService {
	return &JournalService{repo: repo}
}

// FetchRecent запрашивает журнал. limit вне (0, 1000] заменяется на 100.
func (s *JournalService) FetchRecent(ctx context.Context, personID string, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	logs, err := s.repo.FetchRecent(ctx, personID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal_service: failed to fetch logs: %w", err)
	}
	return logs, nil
}

func (s *JournalService) Stats(ctx context.Context) (domain.IngestStats, error) {
	st, err := s.repo.Stats(ctx)
	if err != nil {
		return domain.IngestStats{}, fmt.Errorf("journal_service: failed to fetch stats: %w", err)
	}
	return st, nil
}
