package entity

import (
	"fmt"
	"net/url"
	"strings"
)

// EndpointURL represents a typed URL for a node endpoint.
type EndpointURL string

// NewEndpointURL creates a new EndpointURL instance.
func NewEndpointURL(rawURL string) (EndpointURL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("endpoint url cannot be empty")
	}

	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint url format '%s': %w", rawURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss":
	default:
		return "", fmt.Errorf("endpoint url '%s' has unsupported scheme: '%s'", rawURL, u.Scheme)
	}

	return EndpointURL(rawURL), nil
}

// String returns the string representation of the EndpointURL.
func (e EndpointURL) String() string {
	return string(e)
}

// Protocol derives the transport protocol from the URL scheme.
func (e EndpointURL) Protocol() Protocol {
	scheme, _, _ := strings.Cut(string(e), "://")
	switch strings.ToLower(scheme) {
	case "http":
		return ProtocolHTTP
	case "https":
		return ProtocolHTTPS
	case "ws":
		return ProtocolWS
	case "wss":
		return ProtocolWSS
	default:
		return ProtocolUnknown
	}
}

// IsWebSocket reports whether the endpoint speaks ws or wss.
func (e EndpointURL) IsWebSocket() bool {
	p := e.Protocol()
	return p == ProtocolWS || p == ProtocolWSS
}
