package config

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/qa-tooling/uiprobe/internal/version"
)

var (
	preflightDialTimeout = 2 * time.Second
	preflightHTTPTimeout = 5 * time.Second
)

// Preflight checks that baseURL accepts connections and answers HTTP before
// a browser is started for it. Any response status counts as reachable.
func Preflight(ctx context.Context, baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("preflight: invalid base url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("preflight: base url %q must be http or https", baseURL)
	}

	// TCP probe
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	d := net.Dialer{Timeout: preflightDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("preflight: %s is not reachable: %w", host, err)
	}
	_ = conn.Close()

	client := &http.Client{Timeout: preflightHTTPTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("preflight: GET %s: %w", baseURL, err)
	}
	_ = resp.Body.Close()
	return nil
}
