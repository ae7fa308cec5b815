package server

import (
	"context"
	"time"

	"github.com/sashabaranov/go-openai"

	"handbook-rag/internal/embedding"
	"handbook-rag/internal/helper"
)

type ModelLister interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

type RowCounter interface {
	Count(ctx context.Context) (int, error)
}

type Report struct {
	Timestamp string            `json:"timestamp"`
	Env       map[string]string `json:"env"`
	Tests     ReportTests       `json:"tests"`
}

type ReportTests struct {
	OpenAI ProbeResult `json:"openai"`
	Store  ProbeResult `json:"store"`
}

type ProbeResult struct {
	Success    bool    `json:"success"`
	Error      *string `json:"error"`
	LatencyMs  int64   `json:"latency_ms"`
	Status     string  `json:"status,omitempty"`
	Code       string  `json:"code,omitempty"`
	ModelCount *int    `json:"model_count,omitempty"`
	RowCount   *int    `json:"row_count,omitempty"`
}

// Diagnostics probes the model endpoint and the vector store. Both probes are optional.
type Diagnostics struct {
	env    map[string]string
	models ModelLister
	store  RowCounter
}

// Secret is an environment value to report in masked form
type Secret struct {
	Name      string
	Value     string
	ShowChars int
}

func NewDiagnostics(models ModelLister, store RowCounter, secrets ...Secret) *Diagnostics {
	env := make(map[string]string, len(secrets))
	for _, s := range secrets {
		env[s.Name] = helper.MaskValue(s.Value, s.ShowChars)
	}
	return &Diagnostics{env: env, models: models, store: store}
}

func (d *Diagnostics) Run(ctx context.Context) Report {
	return Report{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Env:       d.env,
		Tests: ReportTests{
			OpenAI: d.probeModels(ctx),
			Store:  d.probeStore(ctx),
		},
	}
}

func (d *Diagnostics) probeModels(ctx context.Context) ProbeResult {
	if d.models == nil {
		return failed("model endpoint not configured", 0)
	}
	start := time.Now()
	list, err := d.models.ListModels(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		res := failed(err.Error(), latency)
		res.Status, res.Code = embedding.OpenAIErrorDetail(err)
		return res
	}
	n := len(list.Models)
	return ProbeResult{Success: true, LatencyMs: latency, ModelCount: &n}
}

func (d *Diagnostics) probeStore(ctx context.Context) ProbeResult {
	if d.store == nil {
		return failed("vector store not configured", 0)
	}
	start := time.Now()
	n, err := d.store.Count(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return failed(err.Error(), latency)
	}
	return ProbeResult{Success: true, LatencyMs: latency, RowCount: &n}
}

func failed(msg string, latency int64) ProbeResult {
	return ProbeResult{Error: &msg, LatencyMs: latency}
}
