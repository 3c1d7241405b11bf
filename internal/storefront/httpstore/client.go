// Package httpstore implements the Storefront contract against the
// storefrontd HTTP API.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/tipjar/internal/infra/httpclient"
	"github.com/ivankudzin/tipjar/internal/storefront"
	"github.com/ivankudzin/tipjar/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/tipjar/internal/transport/http/errors"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultPollInterval = 2 * time.Second
)

type Client struct {
	baseURL      string
	http         *http.Client
	pollInterval time.Duration
	logger       *zap.Logger
}

func New(baseURL string, timeout, pollInterval time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         httpclient.New(timeout),
		pollInterval: pollInterval,
		logger:       logger,
	}
}

func (c *Client) FetchProducts(ctx context.Context, ids []storefront.ProductID) ([]storefront.Product, error) {
	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, string(id))
	}

	endpoint := c.baseURL + "/v1/products?ids=" + url.QueryEscape(strings.Join(raw, ","))
	var payload dto.StoreProductsResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	products := make([]storefront.Product, 0, len(payload.Products))
	for _, p := range payload.Products {
		products = append(products, storefront.Product{
			ID:          storefront.ProductID(p.ID),
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
		})
	}
	return products, nil
}

func (c *Client) Purchase(ctx context.Context, product storefront.Product) (storefront.PurchaseResult, error) {
	req := dto.StorePurchaseRequest{ProductID: string(product.ID)}
	var payload dto.StorePurchaseResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/purchase", req, &payload); err != nil {
		return storefront.PurchaseResult{}, err
	}

	return storefront.PurchaseResult{
		Outcome: storefront.ParseOutcome(payload.Outcome),
		Token:   storefront.Token(payload.Token),
	}, nil
}

func (c *Client) Verify(ctx context.Context, token storefront.Token) (storefront.Transaction, error) {
	req := dto.StoreVerifyRequest{Token: string(token)}
	var payload dto.StoreTransactionResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/verify", req, &payload); err != nil {
		return storefront.Transaction{}, err
	}

	return storefront.Transaction{
		ID:          payload.ID,
		ProductID:   storefront.ProductID(payload.ProductID),
		PurchasedAt: payload.PurchasedAt,
		RevokedAt:   payload.RevokedAt,
	}, nil
}

func (c *Client) Finish(ctx context.Context, tx storefront.Transaction) error {
	endpoint := c.baseURL + "/v1/transactions/" + url.PathEscape(tx.ID) + "/finish"
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

func (c *Client) SyncEntitlements(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, c.baseURL+"/v1/entitlements/sync", nil, nil)
}

func (c *Client) CurrentEntitlements(ctx context.Context) ([]storefront.Token, error) {
	var payload dto.StoreEntitlementsResponse
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/entitlements", nil, &payload); err != nil {
		return nil, err
	}

	tokens := make([]storefront.Token, 0, len(payload.Tokens))
	for _, t := range payload.Tokens {
		tokens = append(tokens, storefront.Token(t))
	}
	return tokens, nil
}

// TransactionUpdates polls the update feed and forwards tokens until ctx
// ends. The first poll replays the full ledger, which brings a fresh client
// in line with purchases it missed while offline.
func (c *Client) TransactionUpdates(ctx context.Context) (<-chan storefront.Token, error) {
	ch := make(chan storefront.Token, 16)

	go func() {
		defer close(ch)

		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()

		var cursor int64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			tokens, next, err := c.updatesSince(ctx, cursor)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Debug("poll transaction updates failed", zap.Error(err))
				continue
			}
			cursor = next

			for _, token := range tokens {
				select {
				case ch <- token:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func (c *Client) updatesSince(ctx context.Context, cursor int64) ([]storefront.Token, int64, error) {
	endpoint := c.baseURL + "/v1/updates?cursor=" + strconv.FormatInt(cursor, 10)
	var payload dto.StoreUpdatesResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, cursor, err
	}

	tokens := make([]storefront.Token, 0, len(payload.Tokens))
	for _, t := range payload.Tokens {
		tokens = append(tokens, storefront.Token(t))
	}
	return tokens, payload.NextCursor, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, target any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode storefront request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build storefront request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call storefront: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode storefront response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var apiErr httperrors.APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Code == "" {
		return fmt.Errorf("storefront returned status %d", resp.StatusCode)
	}

	switch apiErr.Code {
	case "VERIFICATION_FAILED":
		return storefront.ErrVerification
	case "UNKNOWN_PRODUCT":
		return storefront.ErrUnknownProduct
	default:
		return fmt.Errorf("storefront error %s: %s", apiErr.Code, apiErr.Message)
	}
}
