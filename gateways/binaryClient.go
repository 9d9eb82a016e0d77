package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/farmadata/autofarma_backend/models"
)

// BinaryClient talks to the Binary dashboard's product API. It implements
// ProductRegistry.
type BinaryClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewBinaryClient(baseURL, apiKey string) *BinaryClient {
	return &BinaryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *BinaryClient) Lookup(ctx context.Context, code string) (*models.ProductInfo, error) {
	params := url.Values{}
	params.Set("code", code)
	endpoint := c.baseURL + "/api/products?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &GatewayError{Collaborator: "binary", Op: "lookup", Err: err}
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &GatewayError{Collaborator: "binary", Op: "lookup", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil, &GatewayError{Collaborator: "binary", Op: "lookup", Err: ErrNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &GatewayError{
			Collaborator: "binary",
			Op:           "lookup",
			Err:          fmt.Errorf("binary api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var info models.ProductInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &GatewayError{Collaborator: "binary", Op: "lookup", Err: err}
	}
	return &info, nil
}

// Register creates the product in Binary. The dashboard answers 409 for an
// already-registered product, which counts as success: registration is
// idempotent by contract.
func (c *BinaryClient) Register(ctx context.Context, info *models.ProductInfo) error {
	payload := map[string]interface{}{
		"cn":          info.Cn,
		"description": info.Description,
		"iva":         info.TaxRate,
		"laboratory":  info.Laboratory,
		"family":      info.Family,
		"synonym_ean": info.Ean,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &GatewayError{Collaborator: "binary", Op: "register", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/products", bytes.NewReader(body))
	if err != nil {
		return &GatewayError{Collaborator: "binary", Op: "register", Err: err}
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &GatewayError{Collaborator: "binary", Op: "register", Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &GatewayError{
			Collaborator: "binary",
			Op:           "register",
			Err:          fmt.Errorf("binary api error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}
	return nil
}

func (c *BinaryClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}
