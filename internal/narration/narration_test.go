package narration

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/chess-coach/internal/msgcat"
	"github.com/park285/chess-coach/pkg/coachdto"
)

func testPrompts(t *testing.T) *Prompts {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	return NewPrompts(cat)
}

func sampleFacts() *coachdto.PositionFacts {
	return &coachdto.PositionFacts{
		FEN:        "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		Turn:       "White",
		TopLines:   []coachdto.Line{{Move: "e2e4", SAN: "e4", ScoreCP: 35, Variation: []string{"e4", "e5"}}},
		Heuristics: "MATERIAL: White: 39 pts, Black: 39 pts (balance: +0)",
	}
}

type recorded struct {
	mu     sync.Mutex
	bodies []messagesRequest
	keys   []string
}

func startServer(t *testing.T, handler func(ctx *fasthttp.RequestCtx, call int)) (*fasthttputil.InmemoryListener, *recorded) {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	rec := &recorded{}
	call := 0
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		var body messagesRequest
		_ = json.Unmarshal(ctx.PostBody(), &body)
		rec.mu.Lock()
		rec.bodies = append(rec.bodies, body)
		rec.keys = append(rec.keys, string(ctx.Request.Header.Peek("x-api-key")))
		call++
		n := call
		rec.mu.Unlock()
		handler(ctx, n)
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	return ln, rec
}

func newTestNarrator(t *testing.T, ln *fasthttputil.InmemoryListener, waits *[]time.Duration, extra ...Option) *HTTPNarrator {
	t.Helper()
	opts := append([]Option{
		WithDialer(func(string) (net.Conn, error) { return ln.Dial() }),
		WithTimeout(5 * time.Second),
	}, extra...)
	n := NewHTTPNarrator("http://narrator.test/v1/messages", "secret", "test-model", testPrompts(t), opts...)
	n.sleep = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return n
}

func reply(ctx *fasthttp.RequestCtx, text string) {
	ctx.SetContentType("application/json")
	ctx.SetBodyString(`{"content":[{"type":"text","text":"` + text + `"}],"usage":{"input_tokens":10,"output_tokens":5}}`)
}

func TestPromptsRenderFacts(t *testing.T) {
	p := testPrompts(t)
	f := sampleFacts()
	f.Opening = &coachdto.Opening{Code: "B00", Title: "King's Pawn"}
	out, err := p.Position(f)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	for _, want := range []string{"FEN: " + f.FEN, "Side to move: White", "Opening: B00 King's Pawn", "  1. e4 (35 cp) — line: e4 → e5", "MATERIAL:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("prompt missing %q:\n%s", want, out)
		}
	}

	cmp, err := p.Comparison(&coachdto.ComparisonFacts{
		FEN:     f.FEN,
		Turn:    "White",
		Best:    coachdto.Line{SAN: "e4", ScoreCP: 35},
		User:    coachdto.Line{SAN: "a3", ScoreCP: -5},
		DeltaCP: 40,
	})
	if err != nil {
		t.Fatalf("Comparison: %v", err)
	}
	if !strings.Contains(cmp, "EVAL DIFFERENCE: 40 centipawns") || !strings.Contains(cmp, "USER'S MOVE: a3 (eval: -5 cp)") {
		t.Fatalf("unexpected comparison prompt:\n%s", cmp)
	}
}

func TestPromptNarratorReturnsPrompt(t *testing.T) {
	n := NewPromptNarrator(testPrompts(t))
	out, err := n.NarratePosition(context.Background(), sampleFacts())
	if err != nil {
		t.Fatalf("NarratePosition: %v", err)
	}
	if !strings.HasPrefix(out, "(narration offline") || !strings.Contains(out, "BOARD ANALYSIS") {
		t.Fatalf("unexpected offline narration %q", out)
	}
}

func TestHTTPNarratorKeepsHistory(t *testing.T) {
	ln, rec := startServer(t, func(ctx *fasthttp.RequestCtx, call int) {
		if call == 1 {
			reply(ctx, "Control the center.")
			return
		}
		reply(ctx, "Because of the d5 square.")
	})
	var waits []time.Duration
	n := newTestNarrator(t, ln, &waits)

	out, err := n.NarratePosition(context.Background(), sampleFacts())
	if err != nil || out != "Control the center." {
		t.Fatalf("NarratePosition = %q, %v", out, err)
	}
	out, err = n.Ask(context.Background(), "why?")
	if err != nil || out != "Because of the d5 square." {
		t.Fatalf("Ask = %q, %v", out, err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.bodies) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(rec.bodies))
	}
	second := rec.bodies[1]
	if second.Model != "test-model" || !strings.HasPrefix(second.System, "You are an expert chess coach.") {
		t.Fatalf("unexpected request envelope %+v", second)
	}
	if len(second.Messages) != 3 || second.Messages[1].Role != "assistant" || second.Messages[2].Content != "why?" {
		t.Fatalf("follow-up should carry history, got %+v", second.Messages)
	}
	if rec.keys[0] != "secret" {
		t.Fatalf("api key header missing")
	}
	if len(n.History()) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(n.History()))
	}
}

func TestHTTPNarratorRetriesRateLimit(t *testing.T) {
	ln, _ := startServer(t, func(ctx *fasthttp.RequestCtx, call int) {
		if call < 3 {
			ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
			return
		}
		reply(ctx, "ok")
	})
	var waits []time.Duration
	n := newTestNarrator(t, ln, &waits)
	out, err := n.Ask(context.Background(), "hello")
	if err != nil || out != "ok" {
		t.Fatalf("Ask = %q, %v", out, err)
	}
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Fatalf("unexpected backoff %v", waits)
	}
}

func TestHTTPNarratorGivesUpAndPopsTurn(t *testing.T) {
	ln, _ := startServer(t, func(ctx *fasthttp.RequestCtx, call int) {
		ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
	})
	var waits []time.Duration
	n := newTestNarrator(t, ln, &waits)
	_, err := n.Ask(context.Background(), "hello")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if !strings.HasPrefix(UserMessage(err), "Rate limit exceeded after retries.") {
		t.Fatalf("unexpected user message %q", UserMessage(err))
	}
	if len(n.History()) != 0 {
		t.Fatalf("failed turn must not stay in history")
	}
}

func TestHTTPNarratorRetryAndBackoffOptions(t *testing.T) {
	ln, rec := startServer(t, func(ctx *fasthttp.RequestCtx, call int) {
		ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
	})
	var waits []time.Duration
	n := newTestNarrator(t, ln, &waits, WithRetry(2), WithBackoff(100*time.Millisecond))
	if _, err := n.Ask(context.Background(), "hello"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	rec.mu.Lock()
	calls := len(rec.bodies)
	rec.mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if len(waits) != 1 || waits[0] != 100*time.Millisecond {
		t.Fatalf("unexpected backoff %v", waits)
	}

	waits = nil
	n = newTestNarrator(t, ln, &waits, WithRetry(0))
	if _, err := n.Ask(context.Background(), "hello"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if len(waits) != 2 {
		t.Fatalf("a non-positive retry count keeps the default, got waits %v", waits)
	}
}

func TestHTTPNarratorStatusError(t *testing.T) {
	ln, _ := startServer(t, func(ctx *fasthttp.RequestCtx, call int) {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	})
	var waits []time.Duration
	n := newTestNarrator(t, ln, &waits)
	_, err := n.Ask(context.Background(), "hello")
	if !errors.Is(err, ErrAPIStatus) {
		t.Fatalf("expected ErrAPIStatus, got %v", err)
	}
	if UserMessage(err) != "API error (500). Please try again." {
		t.Fatalf("unexpected user message %q", UserMessage(err))
	}
	if len(waits) != 0 {
		t.Fatalf("status errors are not retried")
	}
}

func TestHTTPNarratorConnectionError(t *testing.T) {
	n := NewHTTPNarrator("http://narrator.test/v1/messages", "k", "m", testPrompts(t),
		WithDialer(func(string) (net.Conn, error) { return nil, errors.New("dial refused") }),
	)
	_, err := n.Ask(context.Background(), "hello")
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if !strings.HasPrefix(UserMessage(err), "Connection error") {
		t.Fatalf("unexpected user message %q", UserMessage(err))
	}
}
