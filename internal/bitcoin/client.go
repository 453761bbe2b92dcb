// Package bitcoin talks to a Bitcoin Core node over JSON-RPC and to a
// mempool.space compatible fee estimation API.
package bitcoin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/0xmhha/btcwatcher/internal/config"
	"github.com/0xmhha/btcwatcher/pkg/logger"
	"github.com/0xmhha/btcwatcher/pkg/types"
)

// maxErrorBody bounds how much of an unexpected response is quoted in errors.
const maxErrorBody = 512

// Client implements Source against a node RPC endpoint and a fee API.
// It holds no mutable state and is safe for concurrent use.
type Client struct {
	logger     *logger.Logger
	httpClient *http.Client
	rpcURL     string
	rpcUser    string
	rpcPass    string
	feeURL     string
}

// NewClient creates a new client from cfg.
func NewClient(cfg *config.Config, logger *logger.Logger) *Client {
	rpcURL := cfg.RPCURL
	if !strings.HasPrefix(rpcURL, "http://") && !strings.HasPrefix(rpcURL, "https://") {
		rpcURL = fmt.Sprintf("http://%s", cfg.RPCURL)
	}

	return &Client{
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		rpcURL:  rpcURL,
		rpcUser: cfg.RPCUser,
		rpcPass: cfg.RPCPassword,
		feeURL:  cfg.FeeAPIURL,
	}
}

// FetchChainState calls getblockchaininfo.
func (c *Client) FetchChainState(ctx context.Context) (types.ChainState, error) {
	var state types.ChainState
	if err := c.rpcCall(ctx, "getblockchaininfo", []interface{}{}, &state); err != nil {
		return types.ChainState{}, fetchErr(OpChainState, err)
	}
	return state, nil
}

// FetchBlockStats calls getblockstats for height.
func (c *Client) FetchBlockStats(ctx context.Context, height uint64) (types.BlockStats, error) {
	var stats types.BlockStats
	if err := c.rpcCall(ctx, "getblockstats", []interface{}{height}, &stats); err != nil {
		return types.BlockStats{}, fetchErr(OpBlockStats, fmt.Errorf("height %d: %w", height, err))
	}
	return stats, nil
}

// FetchFeeEstimate queries the recommended fees endpoint.
func (c *Client) FetchFeeEstimate(ctx context.Context) (types.FeeEstimate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feeURL, nil)
	if err != nil {
		return types.FeeEstimate{}, fetchErr(OpFeeEstimate, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.FeeEstimate{}, fetchErr(OpFeeEstimate, fmt.Errorf("fee request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.FeeEstimate{}, fetchErr(OpFeeEstimate, statusError(resp))
	}

	var fee types.FeeEstimate
	if err := json.NewDecoder(resp.Body).Decode(&fee); err != nil {
		return types.FeeEstimate{}, fetchErr(OpFeeEstimate, fmt.Errorf("failed to decode response: %w", err))
	}
	return fee, nil
}

// rpcCall performs a JSON-RPC request and decodes the result into out.
func (c *Client) rpcCall(ctx context.Context, method string, params []interface{}, out interface{}) error {
	// Construct JSON-RPC request
	reqBody := map[string]interface{}{
		"jsonrpc": "1.0",
		"id":      "btcwatcher",
		"method":  method,
		"params":  params,
	}

	reqData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.rpcUser != "" {
		req.SetBasicAuth(c.rpcUser, c.rpcPass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("RPC request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	// Bitcoin Core reports RPC errors with a non-2xx status and a JSON
	// envelope, so try the envelope before looking at the status.
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body))
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	// Check for RPC error
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body))
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return fmt.Errorf("empty result for %s", method)
	}

	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}

	c.logger.Debug("RPC call succeeded", zap.String("method", method))
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}
