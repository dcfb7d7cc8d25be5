package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dtnghia/merchgate/internal/core/domain"
	"github.com/dtnghia/merchgate/internal/infra/graphql"
	"github.com/dtnghia/merchgate/internal/resilience/breaker"
	"github.com/dtnghia/merchgate/internal/resilience/metrics"
	"github.com/dtnghia/merchgate/internal/resilience/retry"
	"github.com/dtnghia/merchgate/internal/resilience/throttle"
)

type fakeTransport struct {
	calls     int
	responses []*graphql.Response
	errs      []error
}

func (f *fakeTransport) Name() string { return "mock" }

func (f *fakeTransport) Execute(ctx context.Context, req graphql.Request) (*graphql.Response, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

type fakeCache struct {
	store       map[string]*domain.Product
	sets        int
	invalidates int
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string]*domain.Product)}
}

func (f *fakeCache) Get(ctx context.Context, id string) (*domain.Product, bool, error) {
	p, ok := f.store[id]
	return p, ok, nil
}

func (f *fakeCache) Set(ctx context.Context, p *domain.Product) error {
	f.sets++
	f.store[p.ID] = p
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, id string) error {
	f.invalidates++
	delete(f.store, id)
	return nil
}

func productResponse(available float64) *graphql.Response {
	return &graphql.Response{
		Data: json.RawMessage(`{"product": {
			"id": "gid://Product/1",
			"title": "Widget",
			"handle": "widget",
			"status": "ACTIVE",
			"price": "19.99",
			"updatedAt": "2026-03-01T12:00:00Z"
		}}`),
		Extensions: &graphql.Extensions{
			Cost: &graphql.CostInfo{
				RequestedQueryCost: 12,
				ActualQueryCost:    10,
				ThrottleStatus: graphql.ThrottleStatus{
					MaximumAvailable:   1000,
					CurrentlyAvailable: available,
					RestoreRate:        50,
				},
			},
		},
	}
}

func newTestService(transport Transport, cache Cache) (*Service, *throttle.Throttle) {
	b := breaker.New("mock", breaker.Config{})
	rec := metrics.NewRecorder("mock")
	th := throttle.New(throttle.Config{MaxUnits: 1000, RestoreRate: 50})

	policies := DefaultPolicies
	policies.Query.InitialDelay = time.Millisecond
	policies.Mutation.InitialDelay = time.Millisecond
	policies.Bulk.InitialDelay = time.Millisecond

	return NewService(transport, cache, retry.New(b, rec), th, nil, policies, nil), th
}

func TestGetProductCacheHitSkipsProvider(t *testing.T) {
	transport := &fakeTransport{responses: []*graphql.Response{productResponse(900)}}
	cache := newFakeCache()
	cache.store["gid://Product/1"] = &domain.Product{ID: "gid://Product/1", Title: "Cached"}

	svc, _ := newTestService(transport, cache)
	p, err := svc.GetProduct(context.Background(), "gid://Product/1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.Title != "Cached" {
		t.Errorf("Title = %q, want cached value", p.Title)
	}
	if transport.calls != 0 {
		t.Errorf("provider called %d times on a cache hit, want 0", transport.calls)
	}
}

func TestGetProductMissFetchesAndCaches(t *testing.T) {
	transport := &fakeTransport{responses: []*graphql.Response{productResponse(900)}}
	cache := newFakeCache()

	svc, th := newTestService(transport, cache)
	p, err := svc.GetProduct(context.Background(), "gid://Product/1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}

	if p.ID != "gid://Product/1" || p.Title != "Widget" || p.Price != "19.99" {
		t.Errorf("product = %+v", p)
	}
	if transport.calls != 1 {
		t.Errorf("provider calls = %d, want 1", transport.calls)
	}
	if cache.sets != 1 {
		t.Errorf("cache sets = %d, want 1", cache.sets)
	}
	// Provider-reported budget overrides the local model.
	if got := th.Snapshot().AvailableUnits; got > 901 || got < 900 {
		t.Errorf("AvailableUnits = %v, want ~900 from extensions", got)
	}
}

func TestGetProductWorksWithoutCache(t *testing.T) {
	transport := &fakeTransport{responses: []*graphql.Response{productResponse(900)}}

	svc, _ := newTestService(transport, nil)
	if _, err := svc.GetProduct(context.Background(), "gid://Product/1"); err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
}

func TestUpdateProductUserErrorsDoNotRetry(t *testing.T) {
	transport := &fakeTransport{responses: []*graphql.Response{{
		Data: json.RawMessage(`{"productUpdate": {
			"product": null,
			"userErrors": [{"field": ["title"], "message": "Title can't be blank"}]
		}}`),
	}}}

	svc, _ := newTestService(transport, newFakeCache())
	_, err := svc.UpdateProduct(context.Background(), "gid://Product/1", map[string]any{"title": ""})

	var apiErr *graphql.APIError
	if !errors.As(err, &apiErr) || !apiErr.HasValidationErrors() {
		t.Fatalf("err = %v, want APIError with userErrors", err)
	}
	if transport.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (userErrors are not retryable)", transport.calls)
	}
}

func TestUpdateProductInvalidatesCache(t *testing.T) {
	transport := &fakeTransport{responses: []*graphql.Response{{
		Data: json.RawMessage(`{"productUpdate": {
			"product": {
				"id": "gid://Product/1",
				"title": "Renamed",
				"handle": "widget",
				"status": "ACTIVE",
				"price": "24.99",
				"updatedAt": "2026-03-02T09:00:00Z"
			},
			"userErrors": []
		}}`),
	}}}
	cache := newFakeCache()
	cache.store["gid://Product/1"] = &domain.Product{ID: "gid://Product/1", Title: "Widget"}

	svc, _ := newTestService(transport, cache)
	p, err := svc.UpdateProduct(context.Background(), "gid://Product/1", map[string]any{"title": "Renamed"})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if p.Title != "Renamed" {
		t.Errorf("Title = %q, want Renamed", p.Title)
	}
	if cache.invalidates != 1 {
		t.Errorf("cache invalidates = %d, want 1", cache.invalidates)
	}
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	transport := &fakeTransport{
		errs:      []error{&graphql.APIError{Provider: "mock", StatusCode: 503, Message: "unavailable"}},
		responses: []*graphql.Response{nil, productResponse(800)},
	}

	svc, _ := newTestService(transport, nil)
	p, err := svc.GetProduct(context.Background(), "gid://Product/1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.Title != "Widget" {
		t.Errorf("Title = %q", p.Title)
	}
	if transport.calls != 2 {
		t.Errorf("provider calls = %d, want 2 (one retry)", transport.calls)
	}
}

func TestListProductsPagination(t *testing.T) {
	transport := &fakeTransport{responses: []*graphql.Response{{
		Data: json.RawMessage(`{"products": {
			"edges": [
				{"cursor": "a", "node": {"id": "1", "title": "A", "handle": "a", "status": "ACTIVE", "price": "1.00", "updatedAt": "2026-01-01T00:00:00Z"}},
				{"cursor": "b", "node": {"id": "2", "title": "B", "handle": "b", "status": "ACTIVE", "price": "2.00", "updatedAt": "2026-01-01T00:00:00Z"}}
			],
			"pageInfo": {"hasNextPage": true}
		}}`),
	}}}

	svc, _ := newTestService(transport, nil)
	products, cursor, err := svc.ListProducts(context.Background(), 2, "")
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("len = %d, want 2", len(products))
	}
	if cursor != "b" {
		t.Errorf("cursor = %q, want b", cursor)
	}
}
