// Package codeexec is the client of the sandboxed code-execution service.
// Each test case runs as an independent execution; results keep the order of
// the submitted cases.
package codeexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/irsalhamdi/e-learning/apperr"
	"golang.org/x/sync/errgroup"
)

type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	Points         int    `json:"points,omitempty"`
}

type Result struct {
	TestCase       int    `json:"testCaseId"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	ActualOutput   string `json:"actualOutput"`
	Passed         bool   `json:"passed"`
	Points         int    `json:"points"`
}

// Runner executes code against test cases.
type Runner interface {
	Run(ctx context.Context, code, language string, cases []TestCase) ([]Result, error)
}

type Config struct {
	URL         string
	Timeout     time.Duration
	Parallelism int
}

// Client talks to a Piston-compatible execution API.
type Client struct {
	http        *resty.Client
	timeout     time.Duration
	parallelism int
}

func New(cfg Config) *Client {
	par := cfg.Parallelism
	if par < 1 {
		par = 1
	}
	return &Client{
		http:        resty.New().SetBaseURL(cfg.URL).SetTimeout(cfg.Timeout),
		timeout:     cfg.Timeout,
		parallelism: par,
	}
}

type executeFile struct {
	Content string `json:"content"`
}

type executeRequest struct {
	Language string        `json:"language"`
	Version  string        `json:"version"`
	Files    []executeFile `json:"files"`
	Stdin    string        `json:"stdin"`
}

type executeStage struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   *int   `json:"code"`
}

type executeResponse struct {
	Run     executeStage  `json:"run"`
	Compile *executeStage `json:"compile,omitempty"`
	Message string        `json:"message,omitempty"`
}

// Run executes every case. The whole call is bounded by the configured
// timeout; a timeout or an unreachable service is a dependency error.
func (c *Client) Run(ctx context.Context, code, language string, cases []TestCase) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results := make([]Result, len(cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)

	for i, tc := range cases {
		g.Go(func() error {
			out, err := c.execute(gctx, code, language, tc.Input)
			if err != nil {
				return fmt.Errorf("test case %d: %w", i+1, err)
			}

			points := tc.Points
			if points == 0 {
				points = 1
			}
			results[i] = Result{
				TestCase:       i + 1,
				Input:          tc.Input,
				ExpectedOutput: tc.ExpectedOutput,
				ActualOutput:   out,
				Passed:         strings.TrimSpace(out) == strings.TrimSpace(tc.ExpectedOutput),
				Points:         points,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.Dependency(err, "code execution timed out")
		}
		return nil, apperr.Dependency(err, "code execution unavailable")
	}
	return results, nil
}

func (c *Client) execute(ctx context.Context, code, language, stdin string) (string, error) {
	var out executeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(executeRequest{
			Language: language,
			Version:  "*",
			Files:    []executeFile{{Content: code}},
			Stdin:    stdin,
		}).
		SetResult(&out).
		Post("/api/v2/execute")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("execute: status %d: %s", resp.StatusCode(), resp.String())
	}

	if out.Compile != nil && out.Compile.Code != nil && *out.Compile.Code != 0 {
		return out.Compile.Stderr, nil
	}
	return out.Run.Stdout, nil
}

// Summary counts passed cases and the rounded pass percentage.
func Summary(results []Result) (passed, total, percentage int) {
	total = len(results)
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	if total == 0 {
		return 0, 0, 0
	}
	return passed, total, roundPercent(passed, total)
}

func roundPercent(n, d int) int {
	// integer form of round(100*n/d) for non-negative operands
	return (200*n + d) / (2 * d)
}
