package entity

// Protocol defines the type for RPC protocols.
type Protocol string

// Constants for known protocols.
const (
	ProtocolHTTP    Protocol = "http"
	ProtocolHTTPS   Protocol = "https"
	ProtocolWS      Protocol = "ws"
	ProtocolWSS     Protocol = "wss"
	ProtocolUnknown Protocol = "unknown"
)

// EndpointDetail holds information about a specific endpoint after checking.
type EndpointDetail struct {
	URL       EndpointURL `json:"url"`
	Protocol  Protocol    `json:"protocol"`
	IsWorking *bool       `json:"isWorking"`
	LatencyMs *int64      `json:"latencyMs,omitempty"`
}

// ConnectionStatus describes the live connection slot of one network.
type ConnectionStatus struct {
	Network   NetworkID   `json:"network"`
	Connected bool        `json:"connected"`
	Endpoint  EndpointURL `json:"endpoint,omitempty"`
}
