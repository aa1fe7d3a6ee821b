// Package proxy relays lookups to third-party OSINT APIs so API keys and CORS stay server-side.
package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	DefaultHunterURL = "https://api.hunter.io/v2/domain-search"
	DefaultShodanURL = "https://api.shodan.io/shodan/host/"
)

type Proxy struct {
	log        *zap.SugaredLogger
	httpClient *http.Client

	hunterURL string
	shodanURL string
}

type Option func(p *Proxy)

func WithHunterURL(u string) Option {
	return func(p *Proxy) {
		p.hunterURL = u
	}
}

func WithShodanURL(u string) Option {
	return func(p *Proxy) {
		p.shodanURL = u
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Proxy) {
		p.httpClient = c
	}
}

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

func New(log *zap.SugaredLogger, opts ...Option) *Proxy {
	p := &Proxy{
		log:       log.Named("proxy"),
		hunterURL: DefaultHunterURL,
		shodanURL: DefaultShodanURL,
	}
	for _, o := range opts {
		o(p)
	}
	if p.httpClient == nil {
		// A lookup is issued exactly once; upstream error responses are relayed, not retried.
		retryClient := retryablehttp.NewClient()
		retryClient.RetryMax = 0
		retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
		retryClient.Logger = &logAdapter{SugaredLogger: p.log}
		p.httpClient = retryClient.StandardClient()
	}
	return p
}

// HunterURL builds the Hunter.io domain search URL.
func (p *Proxy) HunterURL(domain, key string) string {
	q := url.Values{}
	q.Set("domain", domain)
	q.Set("api_key", key)
	return p.hunterURL + "?" + q.Encode()
}

// ShodanURL builds the Shodan host information URL.
func (p *Proxy) ShodanURL(ip, key string) string {
	q := url.Values{}
	q.Set("key", key)
	return p.shodanURL + url.PathEscape(ip) + "?" + q.Encode()
}

// Hunter relays a Hunter.io domain search.
func (p *Proxy) Hunter(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	domain, key := q.Get("domain"), q.Get("key")
	if domain == "" || key == "" {
		WriteError(w, http.StatusBadRequest, "Domain and API Key required")
		return
	}
	p.relay(w, r, p.HunterURL(domain, key))
}

// Shodan relays a Shodan host lookup.
func (p *Proxy) Shodan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ip, key := q.Get("ip"), q.Get("key")
	if ip == "" || key == "" {
		WriteError(w, http.StatusBadRequest, "IP and API Key required")
		return
	}
	p.relay(w, r, p.ShodanURL(ip, key))
}

// relay issues a GET to target and copies the response status, content type and body verbatim.
func (p *Proxy) relay(w http.ResponseWriter, r *http.Request, target string) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("building request: %s", err))
		return
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.log.Debugf("upstream request error: %s", err)
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	_, err = io.Copy(w, resp.Body)
	if err != nil {
		p.log.Debugf("error relaying upstream response: %s", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// WriteError writes a JSON {"error": msg} payload.
func WriteError(w http.ResponseWriter, code int, msg string) {
	b, err := json.Marshal(errorResponse{Error: msg})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(b)
}
