package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/thebtf/nurturenote/internal/extract"
	"github.com/thebtf/nurturenote/pkg/models"
)

const (
	opAssistantCreate = "assistants.create"
	opThreadCreate    = "threads.create"
	opRunCreate       = "runs.create"
	opRunPoll         = "runs.retrieve"
	opMessagesList    = "messages.list"

	messagePageSize = 10
)

type assistantRequest struct {
	Model         string         `json:"model"`
	Instructions  string         `json:"instructions"`
	Tools         []tool         `json:"tools"`
	ToolResources *toolResources `json:"tool_resources,omitempty"`
}

type toolResources struct {
	FileSearch fileSearchResources `json:"file_search"`
}

type fileSearchResources struct {
	VectorStoreIDs []string `json:"vector_store_ids"`
}

type threadRequest struct {
	Messages []threadMessage `json:"messages"`
}

type threadMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type runRequest struct {
	AssistantID string `json:"assistant_id"`
}

// ThreadedRun calls the Assistants protocol: a persistent assistant, a new
// thread per call, and a run polled until it reaches a terminal state.
type ThreadedRun struct {
	provider *Provider
	creating singleflight.Group
}

// NewThreadedRun creates a threaded-run client backed by p.
func NewThreadedRun(p *Provider) *ThreadedRun {
	return &ThreadedRun{provider: p}
}

// Call runs user against the shared assistant and parses the newest
// assistant message as a JSON object.
func (t *ThreadedRun) Call(ctx context.Context, system, user string) (models.RawModelOutput, error) {
	c, err := t.provider.Client()
	if err != nil {
		return models.RawModelOutput{}, err
	}

	assistantID, err := t.assistantID(ctx, c, system)
	if err != nil {
		return models.RawModelOutput{}, err
	}

	threadID, err := c.createID(ctx, opThreadCreate, "/threads", threadRequest{
		Messages: []threadMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return models.RawModelOutput{}, err
	}

	threadPath := "/threads/" + url.PathEscape(threadID)
	runID, err := c.createID(ctx, opRunCreate, threadPath+"/runs", runRequest{AssistantID: assistantID})
	if err != nil {
		return models.RawModelOutput{}, err
	}

	meta := map[string]any{
		MetaAssistantID: assistantID,
		MetaThreadID:    threadID,
		MetaRunID:       runID,
	}

	// 1. Wait for a terminal state
	state, lastError, err := c.poll(ctx, threadPath+"/runs/"+url.PathEscape(runID))
	if err != nil {
		return models.RawModelOutput{Metadata: meta}, err
	}
	if !state.Succeeded() {
		log.Error().Str("state", string(state)).Str("run_id", runID).Msg("Assistant run ended without completing")
		var cause error
		if lastError != "" {
			cause = errors.New(lastError)
		}
		return models.RawModelOutput{Metadata: meta}, &Error{Kind: ErrRunNotCompleted, Op: opRunPoll, State: state, Err: cause}
	}

	// 2. Read the newest assistant message
	path := fmt.Sprintf("%s/messages?order=desc&limit=%d", threadPath, messagePageSize)
	body, err := c.call(ctx, opMessagesList, http.MethodGet, path, nil, true)
	if err != nil {
		return models.RawModelOutput{Metadata: meta}, err
	}

	text := assistantText(body)
	if text == "" {
		return models.RawModelOutput{Metadata: meta}, newError(ErrEmptyOutput, opMessagesList, nil)
	}

	// 3. Parse
	payload, err := extract.ParseObject(text)
	if err != nil {
		log.Error().Err(err).Str("text", truncate(text, 500)).Msg("Failed to parse JSON from assistant output")
		return models.RawModelOutput{Metadata: meta}, newError(ErrMalformedJSON, opMessagesList, err)
	}

	return models.RawModelOutput{
		Payload:     payload,
		Text:        text,
		Annotations: []models.Source{},
		Metadata:    meta,
	}, nil
}

// assistantID resolves the assistant to run against: the configured
// override, then the cached identifier, then a newly created assistant.
// Concurrent callers in this process share one creation.
func (t *ThreadedRun) assistantID(ctx context.Context, c *Client, system string) (string, error) {
	if id := strings.TrimSpace(c.opts.AssistantID); id != "" {
		return id, nil
	}
	if id := readCachedID(c.opts.AssistantIDFile); id != "" {
		return id, nil
	}

	// The shared creation outlives any one caller; each caller still stops
	// waiting when its own context ends.
	ch := t.creating.DoChan("assistant", func() (any, error) {
		if id := readCachedID(c.opts.AssistantIDFile); id != "" {
			return id, nil
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.RequestTimeout)
		defer cancel()
		id, err := c.createID(cctx, opAssistantCreate, "/assistants", c.assistantRequest(system))
		if err != nil {
			return "", err
		}
		writeCachedID(c.opts.AssistantIDFile, id)
		log.Info().Str("assistant_id", id).Msg("Created assistant")
		return id, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", newError(ErrUpstream, opAssistantCreate, ctx.Err())
	}
}

func (c *Client) assistantRequest(system string) assistantRequest {
	req := assistantRequest{
		Model:        c.opts.Model,
		Instructions: system + "\n\n" + outputDiscipline(),
		Tools:        []tool{{Type: "file_search"}},
	}
	if c.opts.VectorStoreID != "" {
		req.ToolResources = &toolResources{
			FileSearch: fileSearchResources{VectorStoreIDs: []string{c.opts.VectorStoreID}},
		}
	}
	return req
}

func outputDiscipline() string {
	return "Output a single JSON object only. Its keys are " + strings.Join(models.CanonicalOutputKeys, ", ") + "."
}

// createID posts body and returns the id of the created object.
func (c *Client) createID(ctx context.Context, op, path string, body any) (string, error) {
	resp, err := c.call(ctx, op, http.MethodPost, path, body, true)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(resp, "id").String()
	if id == "" {
		return "", newError(ErrUpstream, op, errors.New("response carries no id"))
	}
	return id, nil
}

var errRunPending = errors.New("run not finished")

// poll retrieves the run on a fixed interval until it is terminal or the poll
// deadline passes. Deadline expiry is ErrPollTimeout; caller cancellation is ErrUpstream.
func (c *Client) poll(ctx context.Context, path string) (RunState, string, error) {
	pctx, cancel := context.WithTimeout(ctx, c.opts.PollTimeout)
	defer cancel()

	var (
		state     RunState
		lastError string
	)
	err := retry.Do(pctx, retry.NewConstant(c.opts.PollInterval), func(ctx context.Context) error {
		body, err := c.call(ctx, opRunPoll, http.MethodGet, path, nil, true)
		if err != nil {
			return err
		}
		state = RunState(gjson.GetBytes(body, "status").String())
		if !state.Terminal() {
			return retry.RetryableError(errRunPending)
		}
		lastError = gjson.GetBytes(body, "last_error.message").String()
		return nil
	})

	switch {
	case err == nil:
		return state, lastError, nil
	case errors.Is(pctx.Err(), context.DeadlineExceeded):
		return state, "", &Error{Kind: ErrPollTimeout, Op: opRunPoll, State: state, Err: pctx.Err()}
	case pctx.Err() != nil:
		return state, "", newError(ErrUpstream, opRunPoll, pctx.Err())
	default:
		return state, "", err
	}
}

// assistantText concatenates the text parts of the newest assistant message.
func assistantText(body []byte) string {
	var parts []string
	gjson.GetBytes(body, "data").ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() != "assistant" {
			return true
		}
		msg.Get("content").ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() != "text" {
				return true
			}
			if v := part.Get("text.value").String(); v != "" {
				parts = append(parts, v)
			}
			return true
		})
		return len(parts) == 0
	})
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func readCachedID(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// writeCachedID stores id in a single attempt. Failures are logged and ignored.
func writeCachedID(path, id string) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to cache assistant id")
		return
	}
	if err := os.WriteFile(path, []byte(id), 0o600); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to cache assistant id")
	}
}
