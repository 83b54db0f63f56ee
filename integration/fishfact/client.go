// Package fishfact は外部の生成 API から魚の豆知識を取得する。
package fishfact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	DefaultBaseURL = "https://api.jsongpt.com/json"
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 64 << 10
)

var (
	ErrUnexpectedStatus  = errors.New("fishfact: unexpected status")
	ErrMalformedResponse = errors.New("fishfact: malformed response")
	ErrEmptyFact         = errors.New("fishfact: empty fact")
	ErrAPI               = errors.New("fishfact: api error")
)

var promptTemplates = []string{
	"Generate a surprising fact about %s",
	"Tell me an unusual fact about %s",
	"Share an interesting piece of trivia about %s",
	"What is a fascinating behavior or trait of %s?",
	"Provide a unique fact about %s that most people dont know",
}

var topics = []string{
	"deep sea fish",
	"tropical fish",
	"freshwater fish",
	"saltwater fish",
	"predatory fish",
	"bioluminescent fish",
	"prehistoric fish",
	"endangered fish species",
	"fish camouflage",
	"fish migration",
	"fish communication",
	"fish reproduction",
	"symbiotic relationships in fish",
	"electric fish",
	"flying fish",
	"fish intelligence",
	"extreme environment fish",
	"colorful fish species",
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Rand       *rand.Rand
}

// Client は service.FactProvider を実装する。
type Client struct {
	http    *http.Client
	baseURL string

	mu  sync.Mutex
	rng *rand.Rand
}

func NewClient(cfg Config) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("fishfact: invalid base url %q: %w", base, err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Client{http: httpClient, baseURL: base, rng: rng}, nil
}

type factResponse struct {
	Fact       *string `json:"fact"`
	Error      *string `json:"error"`
	Conversion *string `json:"Conversion"`
}

// Fetch はランダムなテンプレートと話題で問い合わせ、豆知識を1件返す。
func (c *Client) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(c.prompt()), nil)
	if err != nil {
		return "", fmt.Errorf("fishfact: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fishfact: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("fishfact: read body: %w", err)
	}
	return parseFact(body)
}

func parseFact(body []byte) (string, error) {
	var r factResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	switch {
	case r.Error != nil:
		return "", fmt.Errorf("%w: %s", ErrAPI, *r.Error)
	case r.Conversion != nil:
		return "", fmt.Errorf("%w: conversion code %s", ErrAPI, *r.Conversion)
	case r.Fact == nil:
		return "", fmt.Errorf("%w: missing fact field", ErrMalformedResponse)
	}
	fact := strings.TrimSpace(*r.Fact)
	if fact == "" {
		return "", ErrEmptyFact
	}
	return fact, nil
}

func (c *Client) prompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	template := promptTemplates[c.rng.IntN(len(promptTemplates))]
	topic := topics[c.rng.IntN(len(topics))]
	return fmt.Sprintf(template, topic) + " "
}

// requestURL は `<base>?prompt=<prompt>&fact` を組み立てる。fact は値なしのフラグ。
func (c *Client) requestURL(prompt string) string {
	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	return c.baseURL + sep + "prompt=" + url.PathEscape(prompt) + "&fact"
}
