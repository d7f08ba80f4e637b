package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/thebtf/nurturenote/internal/extract"
	"github.com/thebtf/nurturenote/pkg/models"
)

// Metadata keys carrying upstream identifiers.
const (
	MetaResponseID  = "response_id"
	MetaAssistantID = "assistant_id"
	MetaThreadID    = "thread_id"
	MetaRunID       = "run_id"
)

const opResponses = "responses.create"

type responsesRequest struct {
	Model        string `json:"model"`
	Instructions string `json:"instructions"`
	Input        string `json:"input"`
	Tools        []tool `json:"tools,omitempty"`
}

type tool struct {
	Type           string         `json:"type"`
	VectorStoreIDs []string       `json:"vector_store_ids,omitempty"`
	Filters        *domainFilters `json:"filters,omitempty"`
}

type domainFilters struct {
	AllowedDomains []string `json:"allowed_domains"`
}

// SingleShot calls the Responses protocol: one request with document search
// over the knowledge store and web search limited to an allow-list.
type SingleShot struct {
	provider *Provider
}

// NewSingleShot creates a single-shot client backed by p.
func NewSingleShot(p *Provider) *SingleShot {
	return &SingleShot{provider: p}
}

// Call sends one request and parses the reply as a JSON object.
// URL annotations found in the reply are returned alongside the payload.
func (s *SingleShot) Call(ctx context.Context, system, user string, allowedDomains []string) (models.RawModelOutput, error) {
	c, err := s.provider.Client()
	if err != nil {
		return models.RawModelOutput{}, err
	}

	req := responsesRequest{
		Model:        c.opts.Model,
		Instructions: system,
		Input:        user,
		Tools:        c.responsesTools(allowedDomains),
	}

	body, err := c.call(ctx, opResponses, http.MethodPost, "/responses", req, false)
	if err != nil {
		return models.RawModelOutput{}, err
	}

	switch status := gjson.GetBytes(body, "status").String(); status {
	case "failed", "cancelled":
		return models.RawModelOutput{}, newError(ErrUpstream, opResponses,
			fmt.Errorf("response %s: %s", status, gjson.GetBytes(body, "error.message").String()))
	}

	text := responseText(body)
	if text == "" {
		return models.RawModelOutput{}, newError(ErrEmptyOutput, opResponses, nil)
	}

	payload, err := extract.ParseObject(text)
	if err != nil {
		log.Error().Err(err).Str("text", truncate(text, 500)).Msg("Failed to parse JSON from single-shot output")
		return models.RawModelOutput{}, newError(ErrMalformedJSON, opResponses, err)
	}

	return models.RawModelOutput{
		Payload:     payload,
		Text:        text,
		Annotations: extract.Annotations(body),
		Metadata:    map[string]any{MetaResponseID: gjson.GetBytes(body, "id").String()},
	}, nil
}

func (c *Client) responsesTools(allowedDomains []string) []tool {
	var tools []tool
	if c.opts.VectorStoreID != "" {
		tools = append(tools, tool{Type: "file_search", VectorStoreIDs: []string{c.opts.VectorStoreID}})
	}
	web := tool{Type: "web_search"}
	if len(allowedDomains) > 0 {
		web.Filters = &domainFilters{AllowedDomains: allowedDomains}
	}
	return append(tools, web)
}

// responseText returns the primary output_text, or the output_text parts of
// message blocks joined by newlines when the primary field is empty.
func responseText(body []byte) string {
	if t := gjson.GetBytes(body, "output_text"); t.Type == gjson.String && strings.TrimSpace(t.String()) != "" {
		return strings.TrimSpace(t.String())
	}

	var parts []string
	gjson.GetBytes(body, "output").ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").String() != "message" {
			return true
		}
		item.Get("content").ForEach(func(_, content gjson.Result) bool {
			if content.Get("type").String() != "output_text" {
				return true
			}
			if t := content.Get("text"); t.Type == gjson.String && t.String() != "" {
				parts = append(parts, t.String())
			}
			return true
		})
		return true
	})
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
