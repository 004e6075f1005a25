// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm provides a minimal chat-completion client used by optional
// analysis-refinement hooks (pkg/refiner's LLMRefiner).
//
// # Supported Providers
//
//   - Ollama: local models, no API key required (default)
//   - OpenAI: GPT-4o-mini and OpenAI-compatible APIs
//   - Mock: for testing without real API calls
//
// # Quick Start
//
//	provider, err := llm.NewProvider(llm.ProviderConfig{
//	    Type:   "openai",
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := provider.Chat(ctx, llm.ChatRequest{
//	    Messages: []llm.Message{
//	        {Role: "system", Content: "You review static call-graph analysis output."},
//	        {Role: "user", Content: "..."},
//	    },
//	})
//
// # Environment Variables
//
// Ollama:
//   - OLLAMA_HOST / OLLAMA_BASE_URL: server URL (default: http://localhost:11434)
//   - OLLAMA_MODEL: model name
//
// OpenAI:
//   - OPENAI_API_KEY: API key (required)
//   - OPENAI_BASE_URL: API URL for compatible services
//   - OPENAI_MODEL: model name (default: gpt-4o-mini)
package llm
