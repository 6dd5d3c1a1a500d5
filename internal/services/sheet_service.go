package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/cache"
	"github.com/SAP-F-2025/quiro-companion/internal/models"
	"github.com/SAP-F-2025/quiro-companion/internal/repositories"
)

const DefaultQuestionCacheTTL = 5 * time.Minute

// SheetService implements the two backend actions on top of a sheet store.
type SheetService interface {
	GetQuestion(ctx context.Context, cardID string) (*models.Question, error)
	UpdateNumber(ctx context.Context, cardID string) (*models.CardAdvance, error)
	ListCards(ctx context.Context) ([]*models.Card, error)
}

type sheetService struct {
	repo     repositories.SheetRepository
	cache    cache.CacheService
	cacheTTL time.Duration
	logger   *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

type SheetServiceOption func(*sheetService)

// WithQuestionCache puts the given cache in front of question lookups.
func WithQuestionCache(c cache.CacheService, ttl time.Duration) SheetServiceOption {
	return func(s *sheetService) {
		if c != nil {
			s.cache = c
		}
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithRand replaces the source used to pick new question numbers.
func WithRand(rng *rand.Rand) SheetServiceOption {
	return func(s *sheetService) {
		s.rng = rng
	}
}

func NewSheetService(repo repositories.SheetRepository, logger *slog.Logger, opts ...SheetServiceOption) SheetService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &sheetService{
		repo:     repo,
		cache:    cache.NewNoopCache(),
		cacheTTL: DefaultQuestionCacheTTL,
		logger:   logger,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func questionCacheKey(cardID string) string {
	return "question:" + cardID
}

func (s *sheetService) GetQuestion(ctx context.Context, cardID string) (*models.Question, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return nil, ErrMissingIdentifier
	}

	var cached models.Question
	err := s.cache.Get(ctx, questionCacheKey(cardID), &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.WarnContext(ctx, "Question cache unavailable", "card_id", cardID, "error", err)
	}

	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	sq, err := s.repo.GetQuestion(ctx, card.QuestionNumber)
	if err != nil {
		return nil, fmt.Errorf("card %s points at question %d: %w", card.ID, card.QuestionNumber, err)
	}

	question := sq.ToQuestion(card.ID)
	if err := s.cache.Set(ctx, questionCacheKey(cardID), question, s.cacheTTL); err != nil {
		s.logger.WarnContext(ctx, "Failed to cache question", "card_id", cardID, "error", err)
	}
	return question, nil
}

func (s *sheetService) UpdateNumber(ctx context.Context, cardID string) (*models.CardAdvance, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return nil, ErrMissingIdentifier
	}

	advance, err := s.repo.AdvanceCard(ctx, cardID, s.pick)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Delete(ctx, questionCacheKey(cardID)); err != nil {
		s.logger.WarnContext(ctx, "Failed to invalidate cached question", "card_id", cardID, "error", err)
	}

	s.logger.InfoContext(ctx, "Question number updated",
		"card_id", cardID,
		"from", advance.FromNumber,
		"to", advance.ToNumber)
	return advance, nil
}

func (s *sheetService) ListCards(ctx context.Context) ([]*models.Card, error) {
	return s.repo.ListCards(ctx)
}

// pick returns a random number from available, avoiding current whenever
// another choice exists.
func (s *sheetService) pick(current int, available []int) int {
	candidates := make([]int, 0, len(available))
	for _, n := range available {
		if n != current {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return available[0]
	}

	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return candidates[s.rng.IntN(len(candidates))]
}
