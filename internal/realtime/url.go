package realtime

import (
	"fmt"
	"net"
	"net/url"
)

// devPort is the backend port used when the API runs on localhost without
// an explicit port
const devPort = "8080"

// BuildURL derives the push-channel URL from the API base URL: ws/wss
// following http/https, the API host, path /ws and the auth token in the
// query string.
func BuildURL(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	scheme := "ws"
	switch u.Scheme {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
	default:
		return "", fmt.Errorf("invalid base URL %q: unsupported scheme", baseURL)
	}

	host := u.Host
	if u.Port() == "" && u.Hostname() == "localhost" {
		host = net.JoinHostPort(u.Hostname(), devPort)
	}
	if host == "" {
		return "", fmt.Errorf("invalid base URL %q: missing host", baseURL)
	}

	ws := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     "/ws",
		RawQuery: url.Values{"token": {token}}.Encode(),
	}
	return ws.String(), nil
}

// redact strips the query string so tokens never reach the logs
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}
