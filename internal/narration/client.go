package narration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/chess-coach/pkg/coachdto"
)

var (
	ErrConnection  = errors.New("narration connection failed")
	ErrAPIStatus   = errors.New("narration api error")
	ErrRateLimited = errors.New("narration rate limited")
)

const (
	defaultMaxTokens  = 1024
	defaultAPIVersion = "2023-06-01"
)

// Error carries a message fit for the student next to the failure kind.
type Error struct {
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%v: status=%d", e.Kind, e.Status)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Kind }

// UserMessage returns the student-facing text for a narration failure.
func UserMessage(err error) string {
	var ne *Error
	if errors.As(err, &ne) && ne.Message != "" {
		return ne.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// HTTPNarrator posts prompts to a messages endpoint and keeps the
// conversation so follow-up questions have context.
type HTTPNarrator struct {
	url     string
	apiKey  string
	model   string
	prompts *Prompts
	http    *fasthttp.Client
	logger  *zap.Logger

	timeout     time.Duration
	retryMax    int
	backoffBase time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	history []message
}

type Option func(*HTTPNarrator)

func WithTimeout(d time.Duration) Option {
	return func(n *HTTPNarrator) { n.timeout = d }
}

// WithRetry caps the attempts made for one request when rate limited.
func WithRetry(n int) Option {
	return func(h *HTTPNarrator) {
		if n > 0 {
			h.retryMax = n
		}
	}
}

// WithBackoff sets the first rate-limit wait; each retry doubles it.
func WithBackoff(base time.Duration) Option {
	return func(n *HTTPNarrator) { n.backoffBase = base }
}

func WithDialer(dial func(addr string) (net.Conn, error)) Option {
	return func(n *HTTPNarrator) { n.http.Dial = dial }
}

func WithLogger(l *zap.Logger) Option {
	return func(n *HTTPNarrator) {
		if l != nil {
			n.logger = l
		}
	}
}

func NewHTTPNarrator(url, apiKey, model string, prompts *Prompts, opts ...Option) *HTTPNarrator {
	n := &HTTPNarrator{
		url:         strings.TrimSpace(url),
		apiKey:      apiKey,
		model:       model,
		prompts:     prompts,
		http:        &fasthttp.Client{ReadTimeout: 60 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 4},
		logger:      zap.NewNop(),
		timeout:     60 * time.Second,
		retryMax:    3,
		backoffBase: time.Second,
		sleep:       sleepWithContext,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *HTTPNarrator) NarratePosition(ctx context.Context, f *coachdto.PositionFacts) (string, error) {
	prompt, err := n.prompts.Position(f)
	if err != nil {
		return "", err
	}
	return n.send(ctx, prompt)
}

func (n *HTTPNarrator) NarrateComparison(ctx context.Context, f *coachdto.ComparisonFacts) (string, error) {
	prompt, err := n.prompts.Comparison(f)
	if err != nil {
		return "", err
	}
	return n.send(ctx, prompt)
}

func (n *HTTPNarrator) Ask(ctx context.Context, question string) (string, error) {
	return n.send(ctx, question)
}

// History returns a copy of the exchanged turns.
func (n *HTTPNarrator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.history))
	for i, m := range n.history {
		out[i] = m.Role + ": " + m.Content
	}
	return out
}

// send appends the user turn only once a reply arrives; a failed exchange
// leaves the history as it was.
func (n *HTTPNarrator) send(ctx context.Context, userText string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	msgs := append(append([]message(nil), n.history...), message{Role: "user", Content: userText})
	payload, err := json.Marshal(messagesRequest{
		Model:     n.model,
		MaxTokens: defaultMaxTokens,
		System:    n.prompts.System(),
		Messages:  msgs,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	n.logger.Debug("narration_prompt", zap.String("prompt", userText))

	attempts := n.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var out messagesResponse
	for attempt := 0; ; attempt++ {
		status, body, err := n.post(ctx, payload)
		if err != nil {
			n.logger.Error("narration_connection_failed", zap.Error(err))
			return "", &Error{Kind: ErrConnection, Err: err, Message: n.prompts.cat.Text("narration.connection_error", ErrConnection.Error())}
		}
		if status == fasthttp.StatusTooManyRequests {
			if attempt+1 >= attempts {
				return "", &Error{Kind: ErrRateLimited, Status: status, Message: n.prompts.cat.Text("narration.rate_limited", ErrRateLimited.Error())}
			}
			wait := n.backoffBase * time.Duration(1<<uint(attempt))
			n.logger.Warn("narration_rate_limited", zap.Int("attempt", attempt+1), zap.Duration("wait", wait))
			if err := n.sleep(ctx, wait); err != nil {
				return "", &Error{Kind: ErrConnection, Err: err, Message: n.prompts.cat.Text("narration.connection_error", ErrConnection.Error())}
			}
			continue
		}
		if status < 200 || status >= 300 {
			n.logger.Error("narration_api_error", zap.Int("status", status), zap.String("body", truncate(string(body), 512)))
			msg, rerr := n.prompts.cat.Render("narration.api_error", struct{ Status int }{status})
			if rerr != nil {
				msg = fmt.Sprintf("%v (%d)", ErrAPIStatus, status)
			}
			return "", &Error{Kind: ErrAPIStatus, Status: status, Message: msg}
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		break
	}

	text := ""
	for _, block := range out.Content {
		if block.Type == "" || block.Type == "text" {
			text = block.Text
			break
		}
	}
	n.history = append(msgs, message{Role: "assistant", Content: text})
	n.logger.Info("narration_reply",
		zap.Int("input_tokens", out.Usage.InputTokens),
		zap.Int("output_tokens", out.Usage.OutputTokens),
		zap.Int("turns", len(n.history)),
	)
	return text, nil
}

func (n *HTTPNarrator) post(ctx context.Context, payload []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(n.url)
	req.Header.SetContentType("application/json")
	req.Header.Set("x-api-key", n.apiKey)
	req.Header.Set("anthropic-version", defaultAPIVersion)
	req.SetBody(payload)

	if err := n.http.DoDeadline(req, resp, n.computeDeadline(ctx)); err != nil {
		return 0, nil, err
	}
	return resp.StatusCode(), append([]byte(nil), resp.Body()...), nil
}

func (n *HTTPNarrator) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(n.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
