package services

import (
	"context"
	"sync"
	"time"

	"tienda/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RateFetcher reads the current exchange rate from an upstream quote API.
type RateFetcher interface {
	FetchRate(ctx context.Context) (decimal.Decimal, error)
}

// RateProvider hands out exchange rates to the checkout and order paths.
type RateProvider interface {
	Current(ctx context.Context) models.ExchangeRate
	Refresh(ctx context.Context) models.ExchangeRate
}

// RateService caches the exchange rate and never fails: when the quote API
// is unreachable or answers garbage the configured fallback rate is used.
type RateService struct {
	fetcher  RateFetcher
	fallback decimal.Decimal
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	current models.ExchangeRate
	loaded  bool
}

// NewRateService creates a RateService. interval is both the cache lifetime
// and the period used by Run.
func NewRateService(fetcher RateFetcher, fallback decimal.Decimal, interval time.Duration, logger *zap.Logger) *RateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateService{
		fetcher:  fetcher,
		fallback: fallback,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Current returns the cached rate, fetching a new one when the cache is
// empty or older than the refresh interval.
func (s *RateService) Current(ctx context.Context) models.ExchangeRate {
	s.mu.RLock()
	rate, loaded := s.current, s.loaded
	s.mu.RUnlock()

	if loaded && s.now().Sub(rate.FetchedAt) < s.interval {
		return rate
	}
	return s.Refresh(ctx)
}

// rateFetchTimeout bounds a shared upstream fetch, which runs detached from
// the cancellation of the caller that started it.
const rateFetchTimeout = 10 * time.Second

// Refresh fetches a new rate regardless of the cache. Concurrent callers
// share a single upstream request. A caller whose ctx ends first gets the
// last known rate, or the fallback, while the shared fetch carries on.
func (s *RateService) Refresh(ctx context.Context) models.ExchangeRate {
	ch := s.group.DoChan("rate", func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rateFetchTimeout)
		defer cancel()
		rate := s.fetch(fctx)
		s.mu.Lock()
		s.current, s.loaded = rate, true
		s.mu.Unlock()
		return rate, nil
	})

	select {
	case res := <-ch:
		return res.Val.(models.ExchangeRate)
	case <-ctx.Done():
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.loaded {
			return s.current
		}
		return models.ExchangeRate{Value: s.fallback, Source: models.RateFallback, FetchedAt: s.now()}
	}
}

func (s *RateService) fetch(ctx context.Context) models.ExchangeRate {
	value, err := s.fetcher.FetchRate(ctx)
	if err == nil && value.IsPositive() {
		return models.ExchangeRate{Value: value, Source: models.RateLive, FetchedAt: s.now()}
	}
	if err == nil {
		s.logger.Warn("quote API returned a non-positive rate, using fallback", zap.String("rate", value.String()))
	} else {
		s.logger.Warn("failed to fetch exchange rate, using fallback", zap.Error(err))
	}
	return models.ExchangeRate{Value: s.fallback, Source: models.RateFallback, FetchedAt: s.now()}
}

// Run refreshes the rate every interval until ctx is cancelled. A failed
// fetch is not retried before the next tick.
func (s *RateService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("exchange rate refresher started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("exchange rate refresher stopped")
			return
		case <-ticker.C:
			rate := s.Refresh(ctx)
			s.logger.Debug("exchange rate refreshed", zap.String("rate", rate.Value.String()), zap.String("source", string(rate.Source)))
		}
	}
}
