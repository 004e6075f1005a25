// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_MockEchoesLastMessage(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Type: "mock"})
	require.NoError(t, err)

	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "You review static call-graph analysis output."},
			{Role: "user", Content: "functions: parse_input (complexity=0)"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Message.Content, "functions: parse_input")
}

func TestNewProvider_UnknownTypeErrors(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Type: "not-a-real-backend"})
	require.Error(t, err)
}

func TestMockProvider_ChatFuncOverride(t *testing.T) {
	p := &MockProvider{
		ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
			return &ChatResponse{Message: Message{Role: "assistant", Content: `[{"name":"parse_input","reason":"complexity 0 on a 40-line body","confidence":0.2}]`}}, nil
		},
	}

	resp, err := p.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "assistant", resp.Message.Role)
	assert.Contains(t, resp.Message.Content, "parse_input")
}
