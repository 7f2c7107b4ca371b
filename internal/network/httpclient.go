// File: internal/network/httpclient.go
package network

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Constants for default TCP/HTTP settings. Every outbound call the tool makes
// is a sequential JSON request against one backend host, so the pools are kept
// small; the overall request timeout is the terminal bound per call.
const (
	DefaultDialTimeout           = 5 * time.Second
	DefaultKeepAliveInterval     = 15 * time.Second
	DefaultTLSHandshakeTimeout   = 5 * time.Second
	DefaultResponseHeaderTimeout = 10 * time.Second
	DefaultRequestTimeout        = 30 * time.Second

	DefaultMaxIdleConns        = 10
	DefaultMaxIdleConnsPerHost = 4
	DefaultIdleConnTimeout     = 30 * time.Second
)

// ClientConfig holds the configuration for the HTTP client and transport.
type ClientConfig struct {
	// IgnoreTLSErrors relaxes certificate validation. Backends frequently sit
	// behind internal CAs or self-signed certificates; this trade-off is
	// deliberate and surfaced in the configuration, never implied.
	IgnoreTLSErrors bool
	TLSConfig       *tls.Config // Allows advanced customization if needed

	RequestTimeout        time.Duration // Overall per-call timeout
	DialTimeout           time.Duration
	KeepAliveInterval     time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	ForceHTTP2 bool

	Logger *zap.Logger
}

// NewDefaultClientConfig creates a configuration suited to paging through a
// report backend: one host, bounded timeouts, conservative connection reuse.
func NewDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		IgnoreTLSErrors:       false,
		RequestTimeout:        DefaultRequestTimeout,
		DialTimeout:           DefaultDialTimeout,
		KeepAliveInterval:     DefaultKeepAliveInterval,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		ForceHTTP2:            true,
		Logger:                zap.NewNop(),
	}
}

// NewHTTPTransport creates and configures an http.Transport from the config.
func NewHTTPTransport(config *ClientConfig) *http.Transport {
	if config == nil {
		config = NewDefaultClientConfig()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	dialer := &net.Dialer{
		Timeout:   config.DialTimeout,
		KeepAlive: config.KeepAliveInterval,
		// Dual-stack with Happy Eyeballs (RFC 8305) for faster connects.
		FallbackDelay: 300 * time.Millisecond,
	}

	tlsConfig := configureTLS(config)

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: config.TLSHandshakeTimeout,

		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,

		ResponseHeaderTimeout: config.ResponseHeaderTimeout,

		ForceAttemptHTTP2: config.ForceHTTP2,
	}

	if config.ForceHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			// Graceful fallback to HTTP/1.1.
			config.Logger.Warn("Failed to configure HTTP/2 transport, falling back to HTTP/1.1", zap.Error(err))
		}
	} else if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{"http/1.1"}
	}

	return transport
}

// NewClient creates an http.Client using the configured transport.
func NewClient(config *ClientConfig) *http.Client {
	if config == nil {
		config = NewDefaultClientConfig()
	}
	return &http.Client{
		Transport: NewHTTPTransport(config),
		Timeout:   config.RequestTimeout,
	}
}

// configureTLS sets up the TLS configuration with strong defaults.
func configureTLS(config *ClientConfig) *tls.Config {
	var tlsConfig *tls.Config

	if config.TLSConfig != nil {
		tlsConfig = config.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			// Session resumption saves a round trip between pages.
			ClientSessionCache: tls.NewLRUClientSessionCache(16),
		}
	}

	tlsConfig.InsecureSkipVerify = config.IgnoreTLSErrors

	return tlsConfig
}
