// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package refiner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/reachmap/pkg/graphstore"
	"github.com/kraklabs/reachmap/pkg/llm"
)

func TestNoop_ReturnsInputUnchanged(t *testing.T) {
	in := &AnalysisOutput{Functions: []graphstore.FunctionRecord{{Name: "parse_input", CyclomaticComplexity: 4}}}
	out, err := (Noop{}).Refine(context.Background(), in)
	require.NoError(t, err)
	assert.Same(t, in, out)
}

func TestLLMRefiner_AppliesConfidenceHint(t *testing.T) {
	provider := &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{
				Message: llm.Message{
					Role:    "assistant",
					Content: `[{"name":"parse_input","reason":"complexity 0 on a 40-line body","confidence":0.4}]`,
				},
			}, nil
		},
	}

	r := NewLLMRefiner(provider, "")
	in := &AnalysisOutput{Functions: []graphstore.FunctionRecord{
		{Name: "parse_input", CyclomaticComplexity: 0, Confidence: 1.0},
		{Name: "free_buffer", CyclomaticComplexity: 2, Confidence: 1.0},
	}}

	out, err := r.Refine(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out.Functions, 2)
	assert.Equal(t, 0.4, out.Functions[0].Confidence)
	assert.Equal(t, 1.0, out.Functions[1].Confidence)
}

func TestLLMRefiner_FallsBackOnProviderError(t *testing.T) {
	provider := &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return nil, assertError{}
		},
	}
	r := NewLLMRefiner(provider, "")
	in := &AnalysisOutput{Functions: []graphstore.FunctionRecord{{Name: "parse_input"}}}

	out, err := r.Refine(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, in, out)
}

type assertError struct{}

func (assertError) Error() string { return "provider unavailable" }
