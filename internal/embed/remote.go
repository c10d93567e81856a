package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// RemoteConfig holds settings for an OpenAI-compatible /v1/embeddings
// endpoint.
type RemoteConfig struct {
	Provider    string // "ollama", "openai", "custom"
	Model       string
	Endpoint    string
	APIKey      string
	MaxRetries  int // default 3
	TimeoutSecs int // per-request, default 60
}

// ParseRemoteFlag parses "provider/model" into a RemoteConfig, filling
// provider defaults. Model names may themselves contain slashes.
func ParseRemoteFlag(flag string) (*RemoteConfig, error) {
	slash := strings.Index(flag, "/")
	if slash <= 0 || slash == len(flag)-1 {
		return nil, fmt.Errorf("invalid embed flag %q: expected provider/model", flag)
	}

	cfg := &RemoteConfig{
		Provider:    flag[:slash],
		Model:       flag[slash+1:],
		MaxRetries:  3,
		TimeoutSecs: 60,
	}

	switch cfg.Provider {
	case "ollama":
		cfg.Endpoint = "http://localhost:11434/v1/embeddings"
	case "openai":
		cfg.Endpoint = "https://api.openai.com/v1/embeddings"
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	case "custom":
		cfg.Endpoint = os.Getenv("SCHOLAR_EMBED_ENDPOINT")
		cfg.APIKey = os.Getenv("SCHOLAR_EMBED_API_KEY")
	default:
		return nil, fmt.Errorf("unknown embed provider %q (supported: ollama, openai, custom)", cfg.Provider)
	}

	if endpoint := os.Getenv("SCHOLAR_EMBED_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if key := os.Getenv("SCHOLAR_EMBED_API_KEY"); key != "" {
		cfg.APIKey = key
	}

	return cfg, nil
}

func (c *RemoteConfig) validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.Provider == "openai" && c.APIKey == "" {
		return fmt.Errorf("API key is required for provider %q", c.Provider)
	}
	return nil
}

// Remote is an Embedder backed by an OpenAI-compatible HTTP endpoint.
type Remote struct {
	cfg  RemoteConfig
	http *http.Client
	dims int
}

// NewRemote creates a remote embedding client.
func NewRemote(cfg *RemoteConfig) (*Remote, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 60
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid embed config: %w", err)
	}

	return &Remote{
		cfg: *cfg,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
		},
	}, nil
}

// ModelID implements Embedder.
func (r *Remote) ModelID() string {
	return r.cfg.Provider + "/" + r.cfg.Model
}

// Dimensions implements Embedder. Unknown (0) until the first call.
func (r *Remote) Dimensions() int {
	return r.dims
}

// Embed implements Embedder.
func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder, retrying with exponential backoff and
// honoring Retry-After on rate limits.
func (r *Remote) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		vecs, err := r.attempt(ctx, texts)
		if err == nil {
			for _, v := range vecs {
				if len(v) > 0 {
					r.dims = len(v)
					break
				}
			}
			return vecs, nil
		}
		lastErr = err

		if attempt == r.cfg.MaxRetries {
			break
		}

		backoff := time.Duration(1<<attempt) * time.Second
		var httpErr *httpError
		if ok := asHTTPError(err, &httpErr); ok && httpErr.status == http.StatusTooManyRequests && httpErr.retryAfter > 0 {
			backoff = httpErr.retryAfter
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("embedding failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

type httpError struct {
	status     int
	body       string
	retryAfter time.Duration
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
}

func asHTTPError(err error, target **httpError) bool {
	he, ok := err.(*httpError)
	if ok {
		*target = he
	}
	return ok
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (r *Remote) attempt(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: r.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		he := &httpError{status: resp.StatusCode, body: string(body)}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				he.retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, he
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("invalid embedding index %d", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}
