package fxrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tomxwilliam/studioportal/internal/config"
	"go.uber.org/zap"
)

// Service resolves a base→target conversion rate. Rates are cached in redis
// for the configured TTL (default 24h); when the provider is unreachable the
// configured fallback rate is used so a price sync never blocks on FX.
type Service interface {
	Rate(ctx context.Context, base, target string) (float64, error)
}

type service struct {
	rdb        *redis.Client
	log        *zap.Logger
	cfg        config.PricingConfig
	httpClient *http.Client
}

func NewService(rdb *redis.Client, log *zap.Logger, cfg config.Config) Service {
	return &service{
		rdb:        rdb,
		log:        log.Named("fxrate.service"),
		cfg:        cfg.Pricing,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func cacheKey(base, target string) string {
	return "fxrate:" + base + ":" + target
}

func (s *service) Rate(ctx context.Context, base, target string) (float64, error) {
	if base == target {
		return 1, nil
	}

	key := cacheKey(base, target)
	if cached, err := s.rdb.Get(ctx, key).Result(); err == nil {
		if rate, err := strconv.ParseFloat(cached, 64); err == nil && rate > 0 {
			return rate, nil
		}
	}

	rate, err := s.fetch(ctx, base, target)
	if err != nil {
		s.log.Warn("fx provider unreachable, using fallback rate",
			zap.String("base", base),
			zap.String("target", target),
			zap.Float64("fallback", s.cfg.FXFallbackRate),
			zap.Error(err))
		return s.cfg.FXFallbackRate, nil
	}

	if err := s.rdb.Set(ctx, key, strconv.FormatFloat(rate, 'f', -1, 64), s.cfg.FXCacheTTL).Err(); err != nil {
		s.log.Warn("failed to cache fx rate", zap.Error(err))
	}
	return rate, nil
}

type ratesAPI struct {
	Rates map[string]float64 `json:"rates"`
}

func (s *service) fetch(ctx context.Context, base, target string) (float64, error) {
	if s.cfg.FXRateURL == "" {
		return 0, fmt.Errorf("fxrate: no provider configured")
	}

	q := url.Values{}
	q.Set("base", base)
	q.Set("symbols", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.FXRateURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fxrate: provider status %d", resp.StatusCode)
	}

	var out ratesAPI
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return 0, err
	}

	rate, ok := out.Rates[target]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("fxrate: provider returned no rate for %s", target)
	}
	return rate, nil
}
