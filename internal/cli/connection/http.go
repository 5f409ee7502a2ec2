package connection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/yndnr/autosave-go/internal/infra/buildinfo"
	"github.com/yndnr/autosave-go/internal/infra/tlsroots"
)

// localHost is the Host header sent over a unix socket.
const localHost = "autosave.local"

// DefaultTimeout bounds API calls. Downloads are bounded by their context.
const DefaultTimeout = 30 * time.Second

// APIError is an error envelope returned by the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Options configure a Client.
type Options struct {
	// Timeout bounds each API call; zero uses DefaultTimeout.
	Timeout time.Duration

	// CAFile is a PEM bundle trusted for https servers in addition to
	// the system roots.
	CAFile string
}

// Client provides HTTP communication with the server.
type Client struct {
	baseURL   string
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewClient creates a client for server, which may omit the scheme. A
// unix:// address dials the server's local socket.
func NewClient(server string, opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()

	var baseURL string
	if socket, ok := strings.CutPrefix(server, "unix://"); ok {
		if socket == "" {
			return nil, fmt.Errorf("invalid server address %q: missing socket path", server)
		}
		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		}
		baseURL = "http://" + localHost
	} else {
		baseURL = strings.TrimRight(server, "/")
		if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
			baseURL = "http://" + baseURL
		}
		if _, err := url.Parse(baseURL); err != nil {
			return nil, fmt.Errorf("invalid server address %q: %w", server, err)
		}
		if opts.CAFile != "" {
			tlsCfg, err := tlsroots.ClientConfig(opts.CAFile)
			if err != nil {
				return nil, err
			}
			transport.TLSClientConfig = tlsCfg
		}
	}

	return &Client{
		baseURL:   baseURL,
		client:    &http.Client{Transport: transport},
		timeout:   opts.Timeout,
		userAgent: "autosave-cli/" + buildinfo.Get().Version,
	}, nil
}

// BaseURL returns the base URL of the client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Call sends a request and decodes the data field of the response
// envelope into out. A nil out discards it.
func (c *Client) Call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parse response data: %w", err)
	}
	return nil
}

// Download streams a GET response body to w and returns the suggested
// file name from Content-Disposition, if any.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return fileName(resp.Header.Get("Content-Disposition")), nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, RequestID: resp.Header.Get("X-Request-ID")}
	var env struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&env); err == nil {
		apiErr.Code = env.Code
		apiErr.Message = env.Message
	}
	return apiErr
}

func fileName(disposition string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	name := params["filename"]
	if name == "" {
		return ""
	}
	return filepath.Base(name)
}
