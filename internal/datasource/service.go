// Package datasource answers item and timeseries queries by resolving
// filters against the stored inventory and converting stored samples.
package datasource

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/tinytelemetry/zquery/internal/convert"
	"github.com/tinytelemetry/zquery/internal/filter"
	"github.com/tinytelemetry/zquery/internal/inventory"
	"github.com/tinytelemetry/zquery/internal/metrics"
	"github.com/tinytelemetry/zquery/internal/model"
	"github.com/tinytelemetry/zquery/internal/resolver"
)

// ErrInvalidMode is returned for a query mode other than history or trends.
// It aliases model.ErrInvalidMode so lower layers can classify it.
var ErrInvalidMode = model.ErrInvalidMode

// Backend is the storage contract the service reads from.
type Backend interface {
	model.SampleSource
	LoadInventory() (*inventory.Snapshot, error)
}

// Service implements model.ReadAPI.
type Service struct {
	backend Backend
	filters *lru.Cache[string, filter.Expr]
	metrics *metrics.Metrics
	log     *zap.Logger
}

var _ model.ReadAPI = (*Service)(nil)

// Config holds tunables for the service.
type Config struct {
	FilterCacheSize int
	Metrics         *metrics.Metrics // optional
	Logger          *zap.Logger
}

// NewService creates a query service over backend.
func NewService(backend Backend, conf Config) (*Service, error) {
	size := conf.FilterCacheSize
	if size <= 0 {
		size = model.DefaultFilterCacheSize
	}
	cache, err := lru.New[string, filter.Expr](size)
	if err != nil {
		return nil, fmt.Errorf("datasource: filter cache: %w", err)
	}
	logger := conf.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		backend: backend,
		filters: cache,
		metrics: conf.Metrics,
		log:     logger.Named("datasource"),
	}, nil
}

// parse returns the compiled form of a raw filter, reusing earlier
// compilations. Invalid filters are not cached.
func (s *Service) parse(raw string) (filter.Expr, error) {
	if e, ok := s.filters.Get(raw); ok {
		s.metrics.FilterCache(true)
		return e, nil
	}
	s.metrics.FilterCache(false)
	e, err := filter.Parse(raw)
	if err != nil {
		return filter.Expr{}, err
	}
	s.filters.Add(raw, e)
	return e, nil
}

func (s *Service) parseTarget(t model.Target) (resolver.Filter, error) {
	var f resolver.Filter
	var err error
	for _, p := range []struct {
		dst *filter.Expr
		raw string
	}{
		{&f.Group, t.Group},
		{&f.Host, t.Host},
		{&f.Application, t.Application},
		{&f.Item, t.Item},
	} {
		if *p.dst, err = s.parse(p.raw); err != nil {
			return resolver.Filter{}, err
		}
	}
	return f, nil
}

// ResolveItems returns the items selected by target.
func (s *Service) ResolveItems(target model.Target) (items []model.ResolvedItem, err error) {
	defer func(start time.Time) { s.metrics.ObserveQuery("resolve", start, err) }(time.Now())

	f, err := s.parseTarget(target)
	if err != nil {
		return nil, err
	}
	inv, err := s.backend.LoadInventory()
	if err != nil {
		return nil, fmt.Errorf("datasource: load inventory: %w", err)
	}
	items = resolver.Resolve(f, inv)
	s.metrics.ObserveResolved(len(items))
	return items, nil
}

// QueryTimeseries resolves req's target, fetches history or trends for the
// resolved items and converts them into timeseries.
func (s *Service) QueryTimeseries(req model.QueryRequest) (series []model.Timeseries, err error) {
	defer func(start time.Time) { s.metrics.ObserveQuery("timeseries", start, err) }(time.Now())

	mode := req.Mode
	if mode == "" {
		mode = model.ModeHistory
	}
	if mode != model.ModeHistory && mode != model.ModeTrends {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}

	f, err := s.parseTarget(req.Target)
	if err != nil {
		return nil, err
	}
	inv, err := s.backend.LoadInventory()
	if err != nil {
		return nil, fmt.Errorf("datasource: load inventory: %w", err)
	}

	items := resolver.Resolve(f, inv)
	s.metrics.ObserveResolved(len(items))
	if len(items) == 0 {
		return []model.Timeseries{}, nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}

	switch mode {
	case model.ModeTrends:
		trends, err := s.backend.Trends(ids, req.From, req.To)
		if err != nil {
			return nil, fmt.Errorf("datasource: trends: %w", err)
		}
		s.log.Debug("trends query",
			zap.Int("items", len(ids)),
			zap.Int("records", len(trends)),
		)
		return convert.Trends(trends, req.AddHostName, convert.ParseValueType(req.ValueType), inv), nil
	default:
		history, err := s.backend.History(ids, req.From, req.To)
		if err != nil {
			return nil, fmt.Errorf("datasource: history: %w", err)
		}
		s.log.Debug("history query",
			zap.Int("items", len(ids)),
			zap.Int("records", len(history)),
		)
		return convert.History(history, req.AddHostName, inv), nil
	}
}
