// Package catalog implements product lookups and mutations against the
// commerce provider, composed with the resilience core: cache first, then
// breaker-admitted, throttle-budgeted, retried GraphQL calls.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dtnghia/merchgate/internal/core/domain"
	"github.com/dtnghia/merchgate/internal/infra/graphql"
	"github.com/dtnghia/merchgate/internal/resilience/retry"
	"github.com/dtnghia/merchgate/internal/resilience/throttle"
)

// Estimated query costs, used as the local model until the provider reports
// authoritative numbers.
const (
	costProductQuery  = 12
	costProductUpdate = 10
	costProductList   = 50
)

const productQuery = `query Product($id: ID!) {
  product(id: $id) {
    id
    title
    handle
    status
    price
    updatedAt
  }
}`

const productUpdateMutation = `mutation ProductUpdate($input: ProductInput!) {
  productUpdate(input: $input) {
    product {
      id
      title
      handle
      status
      price
      updatedAt
    }
    userErrors {
      field
      message
    }
  }
}`

const productListQuery = `query Products($first: Int!, $after: String) {
  products(first: $first, after: $after) {
    edges {
      cursor
      node {
        id
        title
        handle
        status
        price
        updatedAt
      }
    }
    pageInfo {
      hasNextPage
    }
  }
}`

// Transport is the narrow surface the service needs from the GraphQL client.
type Transport interface {
	Name() string
	Execute(ctx context.Context, req graphql.Request) (*graphql.Response, error)
}

// Cache is the narrow surface of the product cache. May be absent.
type Cache interface {
	Get(ctx context.Context, id string) (*domain.Product, bool, error)
	Set(ctx context.Context, p *domain.Product) error
	Invalidate(ctx context.Context, id string) error
}

// Policies holds one retry policy per operation category.
type Policies struct {
	Query    retry.Policy
	Mutation retry.Policy
	Bulk     retry.Policy
}

// DefaultPolicies uses the package defaults of the retry package.
var DefaultPolicies = Policies{
	Query:    retry.DefaultPolicy,
	Mutation: retry.MutationPolicy,
	Bulk:     retry.BulkPolicy,
}

// Service is the catalog domain service. Stateless besides its collaborators;
// safe for concurrent use.
type Service struct {
	transport Transport
	cache     Cache
	retryer   *retry.Retryer
	throttle  *throttle.Throttle
	sink      domain.EventSink
	policies  Policies
	opTimeout time.Duration
	log       *slog.Logger
}

// NewService wires a catalog service. cache may be nil; sink may be nil.
func NewService(
	transport Transport,
	cache Cache,
	retryer *retry.Retryer,
	th *throttle.Throttle,
	sink domain.EventSink,
	policies Policies,
	log *slog.Logger,
) *Service {
	if sink == nil {
		sink = domain.NopSink{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		transport: transport,
		cache:     cache,
		retryer:   retryer,
		throttle:  th,
		sink:      sink,
		policies:  policies,
		opTimeout: 60 * time.Second,
		log:       log,
	}
}

// GetProduct returns the product, serving from cache when possible and
// falling through to the provider on a miss.
func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if s.cache != nil {
		p, found, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.Warn("Cache read failed, falling through", "id", id, "error", err)
		}
		if found {
			s.record(ctx, "product_query", map[string]any{"id": id, "cache_hit": true})
			return p, nil
		}
	}

	resp, err := s.call(ctx, s.policies.Query, costProductQuery, graphql.Request{
		Query:     productQuery,
		Variables: map[string]any{"id": id},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Product *productDTO `json:"product"`
	}
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	if payload.Product == nil {
		return nil, fmt.Errorf("product %s not found", id)
	}

	p := payload.Product.toDomain()
	if s.cache != nil {
		if err := s.cache.Set(ctx, p); err != nil {
			s.log.Warn("Cache write failed", "id", id, "error", err)
		}
	}
	s.record(ctx, "product_query", map[string]any{"id": id, "cache_hit": false})
	return p, nil
}

// UpdateProduct applies the given fields and invalidates the cache entry.
// Structured userErrors come back as a non-retryable *graphql.APIError.
func (s *Service) UpdateProduct(ctx context.Context, id string, fields map[string]any) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	input := map[string]any{"id": id}
	for k, v := range fields {
		input[k] = v
	}

	resp, err := s.call(ctx, s.policies.Mutation, costProductUpdate, graphql.Request{
		Query:     productUpdateMutation,
		Variables: map[string]any{"input": input},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		ProductUpdate struct {
			Product    *productDTO         `json:"product"`
			UserErrors []graphql.UserError `json:"userErrors"`
		} `json:"productUpdate"`
	}
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode productUpdate: %w", err)
	}

	if len(payload.ProductUpdate.UserErrors) > 0 {
		return nil, &graphql.APIError{
			Provider:   s.transport.Name(),
			StatusCode: 200,
			UserErrors: payload.ProductUpdate.UserErrors,
			Message:    payload.ProductUpdate.UserErrors[0].Message,
		}
	}
	if payload.ProductUpdate.Product == nil {
		return nil, fmt.Errorf("productUpdate returned no product for %s", id)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.log.Warn("Cache invalidate failed", "id", id, "error", err)
		}
	}
	p := payload.ProductUpdate.Product.toDomain()
	s.record(ctx, "product_update", map[string]any{"id": id})
	return p, nil
}

// ListProducts pages through the catalog under the bulk policy and returns
// one page plus the cursor of the last edge.
func (s *Service) ListProducts(ctx context.Context, first int, after string) ([]*domain.Product, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if first <= 0 {
		first = 50
	}
	vars := map[string]any{"first": first}
	if after != "" {
		vars["after"] = after
	}

	resp, err := s.call(ctx, s.policies.Bulk, costProductList, graphql.Request{
		Query:     productListQuery,
		Variables: vars,
	})
	if err != nil {
		return nil, "", err
	}

	var payload struct {
		Products struct {
			Edges []struct {
				Cursor string     `json:"cursor"`
				Node   productDTO `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
		} `json:"products"`
	}
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		return nil, "", fmt.Errorf("decode products: %w", err)
	}

	products := make([]*domain.Product, 0, len(payload.Products.Edges))
	cursor := ""
	for _, edge := range payload.Products.Edges {
		products = append(products, edge.Node.toDomain())
		cursor = edge.Cursor
	}
	if !payload.Products.PageInfo.HasNextPage {
		cursor = ""
	}

	s.record(ctx, "product_list", map[string]any{"count": len(products)})
	return products, cursor, nil
}

// call runs one GraphQL request under throttle admission inside the retry
// loop, feeding provider-reported cost back into the throttle model.
func (s *Service) call(ctx context.Context, policy retry.Policy, estimatedCost float64, req graphql.Request) (*graphql.Response, error) {
	return retry.Do(ctx, s.retryer, policy, func(ctx context.Context) (*graphql.Response, error) {
		var resp *graphql.Response
		err := s.throttle.Execute(ctx, estimatedCost, func(ctx context.Context) (throttle.Usage, error) {
			r, err := s.transport.Execute(ctx, req)
			if err != nil {
				var apiErr *graphql.APIError
				if errors.As(err, &apiErr) && apiErr.Cost != nil {
					return usageFrom(apiErr.Cost), err
				}
				return throttle.Usage{}, err
			}
			resp = r
			if r.Extensions != nil && r.Extensions.Cost != nil {
				return usageFrom(r.Extensions.Cost), nil
			}
			return throttle.Usage{}, nil
		})
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
}

func (s *Service) record(ctx context.Context, op string, attrs map[string]any) {
	attrs["provider"] = s.transport.Name()
	attrs["op"] = op
	s.sink.Record(ctx, domain.EventCall, attrs)
}

func usageFrom(cost *graphql.CostInfo) throttle.Usage {
	return throttle.Usage{
		ActualCost:    cost.ActualQueryCost,
		Remaining:     cost.ThrottleStatus.CurrentlyAvailable,
		Authoritative: true,
	}
}

// productDTO matches the provider's product shape.
type productDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Handle    string `json:"handle"`
	Status    string `json:"status"`
	Price     string `json:"price"`
	UpdatedAt string `json:"updatedAt"`
}

func (d *productDTO) toDomain() *domain.Product {
	updatedAt, _ := time.Parse(time.RFC3339, d.UpdatedAt)
	return &domain.Product{
		ID:        d.ID,
		Title:     d.Title,
		Handle:    d.Handle,
		Status:    d.Status,
		Price:     d.Price,
		UpdatedAt: updatedAt,
	}
}
