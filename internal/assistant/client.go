package assistant

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollamaapi "github.com/ollama/ollama/api"
)

// NewClient builds an Ollama API client. host may be a bare host:port, in
// which case plain http is assumed.
func NewClient(host string, httpClient *http.Client) (*ollamaapi.Client, error) {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("parse ollama host %q: missing host", host)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return ollamaapi.NewClient(base, httpClient), nil
}
