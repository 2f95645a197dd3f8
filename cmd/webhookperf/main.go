package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/kvchat/internal/events"
	"github.com/antoniostano/kvchat/internal/telegram"
)

type options struct {
	baseURL     string
	webhookPath string
	secret      string
	adminToken  string
	chats       int
	turns       int
	chatBase    int64
	reset       bool
	turnTimeout time.Duration
	texts       []string
	verbose     bool
}

var defaultTexts = []string{
	"Reply in three words: how are you?",
	"Reply in three words: what did I just ask?",
	"Reply in three words: summarize our chat.",
}

type sample struct {
	chatID   int64
	updateID int64
	status   int
	latency  time.Duration
	outcome  string
}

type summary struct {
	Sent     int
	Failed   int
	Outcomes map[string]int
	P50      time.Duration
	P95      time.Duration
	Max      time.Duration
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "webhookperf: %v\n", err)
		os.Exit(2)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	sum, err := run(ctx, cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "webhookperf: %v\n", err)
		os.Exit(1)
	}
	printSummary(os.Stdout, sum)
	if sum.Failed > 0 {
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var textsRaw string
	var turnTimeoutMS int

	fs := flag.NewFlagSet("webhookperf", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "kvchat base URL")
	fs.StringVar(&cfg.webhookPath, "path", "/api", "webhook path")
	fs.StringVar(&cfg.secret, "secret", "", "webhook secret sent in the secret token header")
	fs.StringVar(&cfg.adminToken, "admin-token", "", "admin token; enables outcome tracking via the event feed")
	fs.IntVar(&cfg.chats, "chats", 3, "number of concurrent synthetic chats")
	fs.IntVar(&cfg.turns, "turns", 5, "messages per chat")
	fs.Int64Var(&cfg.chatBase, "chat-base", 900000000, "first synthetic chat id")
	fs.BoolVar(&cfg.reset, "reset", true, "send /restart to every chat before replaying")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 60000, "timeout per update in milliseconds")
	fs.StringVar(&textsRaw, "texts", "", "messages separated by '|' (optional)")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if !strings.HasPrefix(cfg.webhookPath, "/") {
		cfg.webhookPath = "/" + cfg.webhookPath
	}
	if cfg.chats <= 0 {
		return options{}, fmt.Errorf("chats must be > 0")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultTexts...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty messages")
		}
	}
	return cfg, nil
}

func run(ctx context.Context, cfg options, out io.Writer) (summary, error) {
	client := &http.Client{Timeout: cfg.turnTimeout}

	var feed *outcomeFeed
	if cfg.adminToken != "" {
		wsURL, err := wsURLForEvents(cfg.baseURL, cfg.adminToken)
		if err != nil {
			return summary{}, fmt.Errorf("build ws URL: %w", err)
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			return summary{}, fmt.Errorf("open event feed: %w", err)
		}
		defer conn.Close()
		feed = newOutcomeFeed()
		go feed.readLoop(conn)
	}

	var nextUpdate atomic.Int64
	nextUpdate.Store(time.Now().Unix() * 1000)

	var (
		mu      sync.Mutex
		samples []sample
		wg      sync.WaitGroup
		logMu   sync.Mutex
	)
	logf := func(format string, args ...any) {
		if !cfg.verbose {
			return
		}
		logMu.Lock()
		defer logMu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	for c := 0; c < cfg.chats; c++ {
		chatID := cfg.chatBase + int64(c)
		wg.Add(1)
		go func() {
			defer wg.Done()
			texts := make([]string, 0, cfg.turns+1)
			if cfg.reset {
				texts = append(texts, "/restart")
			}
			for i := 0; i < cfg.turns; i++ {
				texts = append(texts, cfg.texts[i%len(cfg.texts)])
			}
			for _, text := range texts {
				if ctx.Err() != nil {
					return
				}
				s := sendUpdate(ctx, client, cfg, nextUpdate.Add(1), chatID, text)
				if feed != nil && s.status == http.StatusOK {
					s.outcome = feed.await(ctx, s.updateID, cfg.turnTimeout)
				}
				logf("webhookperf: chat=%d update=%d status=%d latency=%s outcome=%s\n",
					s.chatID, s.updateID, s.status, s.latency.Round(time.Millisecond), s.outcome)
				mu.Lock()
				samples = append(samples, s)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return summarize(samples), err
	}
	return summarize(samples), nil
}

func buildUpdate(updateID, chatID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: updateID,
		Message: &telegram.Message{
			MessageID: updateID,
			Date:      time.Now().Unix(),
			Chat:      telegram.Chat{ID: chatID, Type: "private"},
			From:      &telegram.User{ID: chatID, Username: "webhookperf"},
			Text:      text,
		},
	}
}

func sendUpdate(ctx context.Context, client *http.Client, cfg options, updateID, chatID int64, text string) sample {
	s := sample{chatID: chatID, updateID: updateID}
	payload, err := json.Marshal(buildUpdate(updateID, chatID, text))
	if err != nil {
		return s
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+cfg.webhookPath, bytes.NewReader(payload))
	if err != nil {
		return s
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.secret != "" {
		req.Header.Set(telegram.SecretHeader, cfg.secret)
	}

	started := time.Now()
	res, err := client.Do(req)
	s.latency = time.Since(started)
	if err != nil {
		return s
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	s.status = res.StatusCode
	return s
}

func wsURLForEvents(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/events/ws"
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// outcomeFeed matches event feed entries to sent update ids.
type outcomeFeed struct {
	mu      sync.Mutex
	seen    map[int64]string
	waiters map[int64]chan string
}

func newOutcomeFeed() *outcomeFeed {
	return &outcomeFeed{seen: make(map[int64]string), waiters: make(map[int64]chan string)}
}

func (f *outcomeFeed) readLoop(conn *websocket.Conn) {
	for {
		var e events.Event
		if err := conn.ReadJSON(&e); err != nil {
			return
		}
		f.deliver(e.UpdateID, e.Outcome)
	}
}

func (f *outcomeFeed) deliver(updateID int64, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.waiters[updateID]; ok {
		delete(f.waiters, updateID)
		ch <- outcome
		return
	}
	f.seen[updateID] = outcome
}

func (f *outcomeFeed) await(ctx context.Context, updateID int64, timeout time.Duration) string {
	f.mu.Lock()
	if outcome, ok := f.seen[updateID]; ok {
		delete(f.seen, updateID)
		f.mu.Unlock()
		return outcome
	}
	ch := make(chan string, 1)
	f.waiters[updateID] = ch
	f.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case outcome := <-ch:
		return outcome
	case <-timer.C:
	case <-ctx.Done():
	}
	f.mu.Lock()
	delete(f.waiters, updateID)
	f.mu.Unlock()
	return "unknown"
}

func summarize(samples []sample) summary {
	sum := summary{Outcomes: make(map[string]int)}
	latencies := make([]time.Duration, 0, len(samples))
	for _, s := range samples {
		sum.Sent++
		if s.status != http.StatusOK {
			sum.Failed++
		}
		if s.outcome != "" {
			sum.Outcomes[s.outcome]++
		}
		latencies = append(latencies, s.latency)
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	sum.P50 = percentile(latencies, 0.50)
	sum.P95 = percentile(latencies, 0.95)
	if n := len(latencies); n > 0 {
		sum.Max = latencies[n-1]
	}
	return sum
}

// percentile expects sorted input and uses the nearest-rank method.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)) - 1e-9))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func printSummary(w io.Writer, sum summary) {
	fmt.Fprintf(w, "webhookperf: sent=%d failed=%d p50=%s p95=%s max=%s\n",
		sum.Sent, sum.Failed,
		sum.P50.Round(time.Millisecond), sum.P95.Round(time.Millisecond), sum.Max.Round(time.Millisecond))
	keys := make([]string, 0, len(sum.Outcomes))
	for k := range sum.Outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "webhookperf: outcome %s=%d\n", k, sum.Outcomes[k])
	}
}
