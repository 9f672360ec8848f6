package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/messaging"
)

// TokenProvider returns the current bearer token, or "" when none is held.
// The HTTP client pulls the token per request so credential refreshes take
// effect without rebuilding the client.
type TokenProvider func() string

// HTTPClient talks JSON over HTTP to the messaging backend.
type HTTPClient struct {
	baseURL        string
	orgID          string
	deploymentName string
	token          TokenProvider
	hc             *http.Client
}

var _ Client = &HTTPClient{}

type HTTPClientOptions struct {
	BaseURL        string
	OrganizationID string
	DeploymentName string
	Token          TokenProvider
	// HTTPClient overrides the underlying http.Client (timeouts are the
	// transport's concern, not the session controller's).
	HTTPClient *http.Client
}

func NewHTTPClient(opts HTTPClientOptions) (*HTTPClient, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("api: base URL is required")
	}
	if opts.Token == nil {
		return nil, errors.New("api: token provider is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPClient{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		orgID:          opts.OrganizationID,
		deploymentName: opts.DeploymentName,
		token:          opts.Token,
		hc:             hc,
	}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &Error{Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readErrorMessage(resp.Body)
		log.Debug().Str("component", "api").Str("path", path).Int("status", resp.StatusCode).Str("message", msg).Msg("request failed")
		return &Error{Status: resp.StatusCode, Message: msg}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decode %s response", path)
		}
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "request failed"
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(raw))
}

func (c *HTTPClient) GetUnauthenticatedAccessToken(ctx context.Context) (*messaging.TokenResponse, error) {
	out := &messaging.TokenResponse{}
	body := map[string]any{
		"orgId":               c.orgID,
		"esDeveloperName":     c.deploymentName,
		"capabilitiesVersion": "1",
	}
	if err := c.do(ctx, http.MethodPost, "/authorization/unauthenticated/access-token", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetContinuityJWT(ctx context.Context) (*messaging.TokenResponse, error) {
	out := &messaging.TokenResponse{}
	body := map[string]any{
		"orgId":           c.orgID,
		"esDeveloperName": c.deploymentName,
	}
	if err := c.do(ctx, http.MethodPost, "/authorization/continuation/access-token", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) CreateConversation(ctx context.Context, conversationID string, attrs messaging.RoutingAttributes) error {
	body := map[string]any{
		"conversationId":    conversationID,
		"esDeveloperName":   c.deploymentName,
		"routingAttributes": attrs,
	}
	return c.do(ctx, http.MethodPost, "/conversation", body, nil)
}

func (c *HTTPClient) ListConversations(ctx context.Context) (*messaging.ConversationListResponse, error) {
	out := &messaging.ConversationListResponse{}
	if err := c.do(ctx, http.MethodGet, "/conversation/list", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) ListConversationEntries(ctx context.Context, conversationID string) ([]messaging.WireEntry, error) {
	var out struct {
		ConversationEntries []messaging.WireEntry `json:"conversationEntries"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversation/"+conversationID+"/entries", nil, &out); err != nil {
		return nil, err
	}
	return out.ConversationEntries, nil
}

func (c *HTTPClient) SendTextMessage(ctx context.Context, req SendMessageRequest) error {
	body := map[string]any{
		"message": map[string]any{
			"id":                 req.MessageID,
			"messageType":        "StaticContentMessage",
			"inReplyToMessageId": req.InReplyToMessageID,
			"staticContent": map[string]any{
				"formatType": "Text",
				"text":       req.Text,
			},
		},
		"esDeveloperName":       c.deploymentName,
		"isNewMessagingSession": req.IsNewMessagingSession,
		"language":              req.Language,
	}
	if req.IsNewMessagingSession {
		body["routingAttributes"] = req.RoutingAttributes
	}
	return c.do(ctx, http.MethodPost, "/conversation/"+req.ConversationID+"/message", body, nil)
}

func (c *HTTPClient) SendTypingIndicator(ctx context.Context, conversationID string, started bool) error {
	entryType := "TypingStartedIndicator"
	if !started {
		entryType = "TypingStoppedIndicator"
	}
	body := map[string]any{"entryType": entryType}
	return c.do(ctx, http.MethodPost, "/conversation/"+conversationID+"/entry", body, nil)
}

func (c *HTTPClient) CloseConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/conversation/"+conversationID+"?esDeveloperName="+c.deploymentName, nil, nil)
}
