package socketrpc_test

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/tinytelemetry/zquery/internal/datasource"
	"github.com/tinytelemetry/zquery/internal/filter"
	"github.com/tinytelemetry/zquery/internal/model"
	"github.com/tinytelemetry/zquery/internal/socketrpc"
)

// recordingAPI echoes what it was asked so tests can check the wire encoding.
type recordingAPI struct {
	mu       sync.Mutex
	targets  []model.Target
	requests []model.QueryRequest
}

func (a *recordingAPI) ResolveItems(target model.Target) ([]model.ResolvedItem, error) {
	a.mu.Lock()
	a.targets = append(a.targets, target)
	a.mu.Unlock()

	if filter.IsPattern(target.Host) {
		if _, err := filter.Compile(target.Host); err != nil {
			return nil, err
		}
	}
	if target.Host == "none" {
		return []model.ResolvedItem{}, nil
	}
	return []model.ResolvedItem{{
		Item:     model.Item{ID: "1000", Name: "cpu load", HostID: "10", Applications: []string{"100"}},
		HostName: target.Host,
	}}, nil
}

func (a *recordingAPI) QueryTimeseries(req model.QueryRequest) ([]model.Timeseries, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()

	if req.Mode != "" && req.Mode != model.ModeHistory && req.Mode != model.ModeTrends {
		return nil, fmt.Errorf("%w: %q", datasource.ErrInvalidMode, req.Mode)
	}
	return []model.Timeseries{{
		Label: req.Host + ": " + req.Item,
		Datapoints: []model.Datapoint{
			{Value: 1.5, TimestampMs: req.From * 1000},
			{Value: math.NaN(), TimestampMs: req.To * 1000},
		},
	}}, nil
}

func startTestServer(t *testing.T, api model.ReadAPI) string {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	srv := socketrpc.NewServer(sockPath, api, zaptest.NewLogger(t))
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(srv.Stop)
	return sockPath
}

func dial(t *testing.T, sockPath string) *socketrpc.Client {
	t.Helper()
	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRoundtrip(t *testing.T) {
	api := &recordingAPI{}
	client := dial(t, startTestServer(t, api))

	t.Run("ResolveItems", func(t *testing.T) {
		target := model.Target{Group: "/.*/", Host: "web1", Application: "CPU", Item: "/load/i"}
		items, err := client.ResolveItems(target)
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 || items[0].ID != "1000" || items[0].HostName != "web1" {
			t.Fatalf("unexpected items: %+v", items)
		}
		if got := api.targets[len(api.targets)-1]; got != target {
			t.Errorf("server saw target %+v, want %+v", got, target)
		}
	})

	t.Run("ResolveItemsEmpty", func(t *testing.T) {
		items, err := client.ResolveItems(model.Target{Host: "none"})
		if err != nil {
			t.Fatal(err)
		}
		if items == nil || len(items) != 0 {
			t.Fatalf("items = %#v, want empty non-nil slice", items)
		}
	})

	t.Run("QueryTimeseries", func(t *testing.T) {
		req := model.QueryRequest{
			Target:      model.Target{Host: "web1", Item: "cpu load"},
			Mode:        model.ModeTrends,
			ValueType:   "max",
			AddHostName: true,
			From:        100,
			To:          200,
		}
		series, err := client.QueryTimeseries(req)
		if err != nil {
			t.Fatal(err)
		}
		if got := api.requests[len(api.requests)-1]; got != req {
			t.Errorf("server saw request %+v, want %+v", got, req)
		}
		if len(series) != 1 || series[0].Label != "web1: cpu load" {
			t.Fatalf("unexpected series: %+v", series)
		}
		dps := series[0].Datapoints
		if len(dps) != 2 || dps[0].Value != 1.5 || dps[0].TimestampMs != 100000 {
			t.Fatalf("unexpected datapoints: %+v", dps)
		}
		if !math.IsNaN(dps[1].Value) || dps[1].TimestampMs != 200000 {
			t.Errorf("null datapoint did not round-trip as NaN: %+v", dps[1])
		}
	})
}

func TestRoundtrip_TypedErrors(t *testing.T) {
	client := dial(t, startTestServer(t, &recordingAPI{}))

	_, err := client.ResolveItems(model.Target{Host: "/web[/"})
	if !errors.Is(err, filter.ErrInvalidFilterSyntax) {
		t.Errorf("ResolveItems err = %v, want ErrInvalidFilterSyntax", err)
	}

	_, err = client.QueryTimeseries(model.QueryRequest{Mode: "events"})
	if !errors.Is(err, datasource.ErrInvalidMode) {
		t.Errorf("QueryTimeseries err = %v, want ErrInvalidMode", err)
	}

	// The connection stays usable after application errors.
	if _, err := client.ResolveItems(model.Target{Host: "web1"}); err != nil {
		t.Errorf("call after error: %v", err)
	}
}

func TestConcurrentClients(t *testing.T) {
	sockPath := startTestServer(t, &recordingAPI{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client, err := socketrpc.Dial(sockPath)
			if err != nil {
				errs <- err
				return
			}
			defer client.Close()
			host := fmt.Sprintf("host%d", i)
			items, err := client.ResolveItems(model.Target{Host: host})
			if err != nil {
				errs <- err
				return
			}
			if len(items) != 1 || items[0].HostName != host {
				errs <- fmt.Errorf("client %d: unexpected items %+v", i, items)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestStart_RejectsLiveSocket(t *testing.T) {
	sockPath := startTestServer(t, &recordingAPI{})

	second := socketrpc.NewServer(sockPath, &recordingAPI{}, nil)
	if err := second.Start(); err == nil {
		second.Stop()
		t.Fatal("expected error starting a second server on a live socket")
	}
}

func TestDial_NoServer(t *testing.T) {
	if _, err := socketrpc.Dial(filepath.Join(t.TempDir(), "missing.sock")); err == nil {
		t.Fatal("expected dial error")
	}
}
