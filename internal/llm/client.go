// Package llm talks to the upstream generative-text service over its
// single-shot Responses protocol and its threaded Assistants protocol.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultModel          = "gpt-5"
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultPollTimeout    = 3 * time.Minute
	DefaultRequestTimeout = 2 * time.Minute

	assistantsBeta = "assistants=v2"
)

// proxyEnvKeys are the variables that would reroute upstream traffic.
var proxyEnvKeys = []string{
	"OPENAI_HTTP_PROXY", "OPENAI_PROXY",
	"ALL_PROXY", "all_proxy",
	"HTTPS_PROXY", "https_proxy",
	"HTTP_PROXY", "http_proxy",
}

// Options configures upstream access.
type Options struct {
	APIKey          string
	BaseURL         string
	Model           string
	VectorStoreID   string        // knowledge store bound to the file_search tool
	AssistantID     string        // explicit assistant override
	AssistantIDFile string        // cache of a previously created assistant
	RequestTimeout  time.Duration // per HTTP request
	PollInterval    time.Duration
	PollTimeout     time.Duration
	IgnoreProxyEnv  bool
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = DefaultPollTimeout
	}
	return o
}

// Client is an immutable handle on the upstream HTTP API, safe for concurrent use.
type Client struct {
	http *resty.Client
	opts Options
}

// Provider builds the Client at most once, on first use.
// A construction failure is cached and returned to every caller.
type Provider struct {
	get func() (*Client, error)
}

// NewProvider returns a Provider for opts. Nothing is validated until Client is called.
func NewProvider(opts Options) *Provider {
	opts = opts.withDefaults()
	return &Provider{get: sync.OnceValues(func() (*Client, error) {
		return newClient(opts)
	})}
}

// Client returns the shared handle, building it on the first call.
func (p *Provider) Client() (*Client, error) {
	return p.get()
}

func newClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, newError(ErrConfiguration, "client", errors.New("OPENAI_API_KEY is not configured"))
	}

	hc := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.RequestTimeout).
		SetAuthToken(opts.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	if opts.IgnoreProxyEnv {
		hc.RemoveProxy()
		if ignored := presentProxyEnv(); len(ignored) > 0 {
			log.Warn().Strs("vars", ignored).Msg("Ignoring proxy environment variables for upstream client")
		}
	}

	return &Client{http: hc, opts: opts}, nil
}

func presentProxyEnv() []string {
	var found []string
	for _, k := range proxyEnvKeys {
		if _, ok := os.LookupEnv(k); ok {
			found = append(found, k)
		}
	}
	return found
}

// call issues one request and returns the raw body of a 2xx response.
// Transport failures and non-2xx statuses become ErrUpstream.
func (c *Client) call(ctx context.Context, op, method, path string, body any, beta bool) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if beta {
		req.SetHeader("OpenAI-Beta", assistantsBeta)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, newError(ErrUpstream, op, err)
	}
	if resp.IsError() {
		return nil, newError(ErrUpstream, op, fmt.Errorf("status %d: %s", resp.StatusCode(), apiMessage(resp.Body())))
	}
	return resp.Body(), nil
}

// apiMessage extracts a readable message from an error body.
func apiMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
		return msg
	}
	return truncate(strings.TrimSpace(string(body)), 200)
}

// truncate truncates a string to the specified length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
