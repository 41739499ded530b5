// ABOUTME: HTTP client for the external agent-query backend
// ABOUTME: Single and chained dispatch with a bounded timeout per request

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/parley-chat/parley/internal/store"
)

// DefaultTimeout bounds one dispatch call. The backend contract does not
// specify an acceptable latency; a request past this deadline becomes a
// dispatch error instead of a reply that hangs forever.
const DefaultTimeout = 60 * time.Second

// ErrDispatch marks any backend failure: network error, non-2xx status,
// unparseable body, or an empty reply. Callers recover from it by
// substituting an apology message, never by crashing.
var ErrDispatch = errors.New("agent dispatch failed")

// ErrEmptyReply is an ErrDispatch for a 2xx response whose reply text is
// missing or empty.
var ErrEmptyReply = fmt.Errorf("%w: empty reply", ErrDispatch)

// Reply is the backend's answer to a dispatch.
type Reply struct {
	Text      string
	ChainMeta *store.ChainMeta // set only for chained dispatches
}

// Client dispatches user messages to the agent-query backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a Client for the backend at baseURL. A zero timeout uses
// DefaultTimeout. Pass nil logger for default.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "backend"),
	}
}

// queryRequest is the JSON body for a single-agent dispatch.
type queryRequest struct {
	AgentID     string `json:"agent_id"`
	UserMessage string `json:"user_message"`
	File        string `json:"file,omitempty"`
}

// chainRequest is the JSON body for a dual-agent dispatch.
type chainRequest struct {
	PrimaryAgentID   string `json:"primary_agent_id"`
	SecondaryAgentID string `json:"secondary_agent_id"`
	UserMessage      string `json:"user_message"`
	Chain            bool   `json:"chain"`
}

// queryResponse is the backend's JSON reply for both dispatch shapes.
type queryResponse struct {
	Reply     string `json:"reply"`
	ChainMeta *struct {
		Primary   string `json:"primary"`
		Secondary string `json:"secondary"`
	} `json:"chain_meta,omitempty"`
}

// Query dispatches a single-agent request. filePayload is the optional
// attachment payload, empty when the message has no file.
func (c *Client) Query(ctx context.Context, agentID, userMessage, filePayload string) (*Reply, error) {
	body := queryRequest{
		AgentID:     agentID,
		UserMessage: userMessage,
		File:        filePayload,
	}
	return c.post(ctx, "/query", body)
}

// QueryChain dispatches a dual-agent request combining the primary and
// secondary agents' contributions into one reply.
func (c *Client) QueryChain(ctx context.Context, primaryID, secondaryID, userMessage string) (*Reply, error) {
	body := chainRequest{
		PrimaryAgentID:   primaryID,
		SecondaryAgentID: secondaryID,
		UserMessage:      userMessage,
		Chain:            true,
	}
	reply, err := c.post(ctx, "/query-chain", body)
	if err != nil {
		return nil, err
	}
	// Backends that omit chain_meta still produced a chained reply
	if reply.ChainMeta == nil {
		reply.ChainMeta = &store.ChainMeta{Primary: primaryID, Secondary: secondaryID}
	}
	return reply, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*Reply, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrDispatch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrDispatch, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: backend returned %d", ErrDispatch, resp.StatusCode)
	}

	var decoded queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrDispatch, err)
	}
	if decoded.Reply == "" {
		return nil, ErrEmptyReply
	}

	c.logger.Debug("dispatch complete",
		"path", path,
		"duration_ms", time.Since(start).Milliseconds())

	reply := &Reply{Text: decoded.Reply}
	if decoded.ChainMeta != nil {
		reply.ChainMeta = &store.ChainMeta{
			Primary:   decoded.ChainMeta.Primary,
			Secondary: decoded.ChainMeta.Secondary,
		}
	}
	return reply, nil
}
