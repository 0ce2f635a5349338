// Package diagnostics checks that the resolved LLM provider accepts its
// credential without spending a completion.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"testcasegpt/internal/config"
)

const DefaultWhoAmIURL = "https://huggingface.co/api/whoami-v2"

// Check outcomes.
const (
	StatusOK   = "OK"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report is the structured result of one doctor run.
type Report struct {
	Provider string   `json:"provider"`
	Model    string   `json:"model,omitempty"`
	Endpoint string   `json:"endpoint,omitempty"`
	Checks   []Check  `json:"checks"`
	Models   []string `json:"models,omitempty"`
	Healthy  bool     `json:"healthy"`
}

type Prober struct {
	client    *http.Client
	whoAmIURL string
}

// NewProber returns a Prober using client, or a 15s-timeout client when nil.
func NewProber(client *http.Client, whoAmIURL string) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if whoAmIURL == "" {
		whoAmIURL = DefaultWhoAmIURL
	}
	return &Prober{client: client, whoAmIURL: whoAmIURL}
}

// Run probes cfg. It never fails; problems are reported as FAIL checks.
func (p *Prober) Run(ctx context.Context, cfg config.GatewayConfig) Report {
	report := Report{Provider: string(cfg.Provider), Model: cfg.Model, Endpoint: cfg.Endpoint}
	if !cfg.Configured() {
		report.Provider = string(config.ProviderNone)
		report.Checks = append(report.Checks, Check{
			Name:   "provider",
			Status: StatusFail,
			Detail: "no provider credentials found in environment or config",
		})
		return report
	}
	report.Checks = append(report.Checks, Check{Name: "provider", Status: StatusOK, Detail: string(cfg.Provider)})

	if cfg.OpenAICompatible() {
		ids, err := p.listModels(ctx, cfg)
		if err != nil {
			report.Checks = append(report.Checks, Check{Name: "credential", Status: StatusFail, Detail: err.Error()})
		} else {
			report.Models = ids
			report.Checks = append(report.Checks,
				Check{Name: "credential", Status: StatusOK, Detail: fmt.Sprintf("%d models listed", len(ids))},
				modelCheck(cfg, ids),
			)
		}
	} else {
		report.Checks = append(report.Checks, Check{Name: "credential", Status: StatusSkip, Detail: "not an OpenAI-compatible provider"})
	}

	if cfg.Provider == config.ProviderHuggingFace {
		name, err := p.whoAmI(ctx, cfg.APIKey)
		if err != nil {
			report.Checks = append(report.Checks, Check{Name: "hf token", Status: StatusFail, Detail: err.Error()})
		} else {
			report.Checks = append(report.Checks, Check{Name: "hf token", Status: StatusOK, Detail: "user: " + name})
		}
	}

	report.Healthy = true
	for _, c := range report.Checks {
		if c.Status == StatusFail {
			report.Healthy = false
		}
	}
	return report
}

// modelCheck reports whether the configured model is in the listing. Azure
// lists base models rather than deployments, so a miss there is only a skip.
func modelCheck(cfg config.GatewayConfig, ids []string) Check {
	for _, id := range ids {
		if id == cfg.Model {
			return Check{Name: "model", Status: StatusOK, Detail: cfg.Model}
		}
	}
	if cfg.Provider == config.ProviderAzure {
		return Check{Name: "model", Status: StatusSkip, Detail: "deployment " + cfg.Model + " not in model listing"}
	}
	return Check{Name: "model", Status: StatusFail, Detail: cfg.Model + " is not offered by the endpoint"}
}

func (p *Prober) listModels(ctx context.Context, cfg config.GatewayConfig) ([]string, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/") + "/models"
	if cfg.Provider == config.ProviderAzure {
		endpoint = strings.TrimRight(cfg.Endpoint, "/") + "/openai/models?api-version=" + url.QueryEscape(cfg.APIVersion)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Provider == config.ProviderAzure {
		req.Header.Set("api-key", cfg.APIKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := p.getJSON(req, &payload); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(payload.Data))
	for _, m := range payload.Data {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (p *Prober) whoAmI(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.whoAmIURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	var payload struct {
		Name string `json:"name"`
	}
	if err := p.getJSON(req, &payload); err != nil {
		return "", err
	}
	return payload.Name, nil
}

func (p *Prober) getJSON(req *http.Request, v any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("credential rejected (status %d)", resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
