// Package catalog 实现商品目录协作方的HTTP客户端。
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_ledger/internal/domain"
	"github.com/MorseWayne/stock_ledger/internal/service"
)

// Client 商品目录HTTP客户端，实现 service.CatalogResolver
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// 接口契约校验
var _ service.CatalogResolver = (*Client)(nil)

// NewClient 创建目录客户端
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// skuResponse 目录服务的SKU查询响应体
type skuResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		ProductID   int64  `json:"product_id"`
		VariantID   int64  `json:"variant_id"`
		Sku         string `json:"sku"`
		ProductName string `json:"product_name"`
	} `json:"data"`
}

// ResolveBySku 按SKU查询商品与变体信息；目录侧404映射为 nil, nil
func (c *Client) ResolveBySku(ctx context.Context, sku string) (*service.CatalogProduct, error) {
	endpoint := fmt.Sprintf("%s/api/v1/products/sku/%s", c.baseURL, url.PathEscape(sku))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewInfrastructure("catalog service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewInfrastructure(
			fmt.Sprintf("catalog service returned status %d", resp.StatusCode), nil)
	}

	var body skuResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	if body.Code != 0 {
		return nil, domain.NewInfrastructure(
			fmt.Sprintf("catalog service error: %s", body.Msg), nil)
	}

	c.logger.Debug("sku resolved via catalog",
		zap.String("sku", sku),
		zap.Int64("product_id", body.Data.ProductID),
		zap.Int64("variant_id", body.Data.VariantID),
	)

	return &service.CatalogProduct{
		ProductID:   body.Data.ProductID,
		VariantID:   body.Data.VariantID,
		Sku:         body.Data.Sku,
		ProductName: body.Data.ProductName,
	}, nil
}
