// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package refiner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kraklabs/reachmap/pkg/graphstore"
	"github.com/kraklabs/reachmap/pkg/llm"
)

// LLMRefiner asks a chat-completion provider to flag functions whose
// joined metadata looks wrong - most often a cyclomatic-complexity value
// that the pointer-analysis backend reported as 0 or absurdly high for a
// body that size. It never rewrites graph content itself; it only lowers
// the stored confidence on flagged records, and falls back to the
// unrefined input on any provider or parse error (spec.md §7's
// degrade-silently policy for optional phases).
type LLMRefiner struct {
	Provider llm.Provider
	Model    string
}

// NewLLMRefiner wraps an already-configured provider. model may be empty
// to use the provider's default.
func NewLLMRefiner(provider llm.Provider, model string) *LLMRefiner {
	return &LLMRefiner{Provider: provider, Model: model}
}

type flaggedFunction struct {
	Name       string  `json:"name"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Refine implements Refiner.
func (r *LLMRefiner) Refine(ctx context.Context, in *AnalysisOutput) (*AnalysisOutput, error) {
	if r.Provider == nil || len(in.Functions) == 0 {
		return in, nil
	}

	resp, err := r.Provider.Chat(ctx, llm.ChatRequest{
		Model: r.Model,
		Messages: []llm.Message{
			{Role: "system", Content: "You review static call-graph analysis output for implausible complexity scores. Respond with a JSON array only."},
			{Role: "user", Content: buildRefinePrompt(in)},
		},
		Temperature: 0,
	})
	if err != nil {
		return in, fmt.Errorf("refiner: chat request failed: %w", err)
	}

	var flagged []flaggedFunction
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Message.Content)), &flagged); err != nil {
		return in, fmt.Errorf("refiner: parse model response: %w", err)
	}

	byName := make(map[string]flaggedFunction, len(flagged))
	for _, f := range flagged {
		byName[f.Name] = f
	}

	refined := make([]graphstore.FunctionRecord, len(in.Functions))
	copy(refined, in.Functions)
	for i, f := range refined {
		if hint, ok := byName[f.Name]; ok && hint.Confidence > 0 && hint.Confidence < f.Confidence {
			refined[i].Confidence = hint.Confidence
		}
	}
	return &AnalysisOutput{Functions: refined, Edges: in.Edges}, nil
}

func buildRefinePrompt(in *AnalysisOutput) string {
	var b strings.Builder
	b.WriteString("Functions:\n")
	for _, f := range in.Functions {
		fmt.Fprintf(&b, "- %s (complexity=%d, external=%v)\n", f.Name, f.CyclomaticComplexity, f.IsExternal)
	}
	b.WriteString("\nReturn a JSON array of {\"name\":..., \"reason\":..., \"confidence\":...} for any function whose complexity score looks implausible.")
	return b.String()
}
