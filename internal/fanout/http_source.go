package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
)

// HTTPSource fetches procurement records from a REST endpoint that speaks
// the engine's record envelope: a JSON body with contracts, payments, and
// bids arrays. Portal da Transparência and PNCP adapters are deployed as
// thin proxies that translate to this envelope.
type HTTPSource struct {
	name    string
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// HTTPSourceOption is a functional option for configuring HTTPSource.
type HTTPSourceOption func(*HTTPSource)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// WithAPIKey sets the chave-api-dados header value.
func WithAPIKey(key string) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.apiKey = key
	}
}

// NewHTTPSource creates a source for the given endpoint. A zero timeout
// falls back to 15 seconds.
func NewHTTPSource(name, baseURL string, timeout time.Duration, opts ...HTTPSourceOption) *HTTPSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	s := &HTTPSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Source.
func (s *HTTPSource) Name() string { return s.name }

// Timeout implements Source.
func (s *HTTPSource) Timeout() time.Duration { return s.timeout }

// recordEnvelope is the wire shape of a source response.
type recordEnvelope struct {
	Contracts []procurement.Contract `json:"contracts"`
	Payments  []procurement.Payment  `json:"payments"`
	Bids      []procurement.Bid      `json:"bids"`
	Partial   bool                   `json:"partial"`
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, query procurement.Query) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/records", nil)
	if err != nil {
		return FetchResult{}, err
	}

	params := url.Values{}
	for _, entity := range query.Entities {
		params.Add("entity", entity)
	}
	if !query.From.IsZero() {
		params.Set("from", query.From.Format(time.RFC3339))
	}
	if !query.To.IsZero() {
		params.Set("to", query.To.Format(time.RFC3339))
	}
	for _, kind := range query.Kinds {
		params.Add("kind", kind)
	}
	req.URL.RawQuery = params.Encode()

	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("chave-api-dados", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FetchResult{}, fmt.Errorf("source %s returned status %d", s.name, resp.StatusCode)
	}

	var envelope recordEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return FetchResult{}, fmt.Errorf("decoding %s response: %w", s.name, err)
	}

	records := &procurement.RecordSet{
		Contracts: envelope.Contracts,
		Payments:  envelope.Payments,
		Bids:      envelope.Bids,
	}
	for i := range records.Contracts {
		if records.Contracts[i].Source == "" {
			records.Contracts[i].Source = s.name
		}
	}
	for i := range records.Payments {
		if records.Payments[i].Source == "" {
			records.Payments[i].Source = s.name
		}
	}
	for i := range records.Bids {
		if records.Bids[i].Source == "" {
			records.Bids[i].Source = s.name
		}
	}
	return FetchResult{Records: records, Partial: envelope.Partial}, nil
}
