package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/cigen/internal/config"
)

// Export protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool            `koanf:"enabled"`
	Endpoint       string          `koanf:"endpoint"`
	ServiceName    string          `koanf:"service_name"`
	ServiceVersion string          `koanf:"service_version"`
	Protocol       string          `koanf:"protocol"`
	Insecure       bool            `koanf:"insecure"`
	TLSSkipVerify  bool            `koanf:"tls_skip_verify"`
	SampleRate     float64         `koanf:"sample_rate"`
	Metrics        bool            `koanf:"metrics"`
	ExportInterval config.Duration `koanf:"export_interval"`
	ShutdownWait   config.Duration `koanf:"shutdown_wait"`
}

// NewDefaultConfig returns telemetry defaults: disabled, exporting to a
// local collector over plaintext gRPC when turned on.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:       "localhost:4317",
		ServiceName:    "cigen",
		ServiceVersion: "dev",
		Protocol:       ProtocolGRPC,
		Insecure:       true,
		SampleRate:     1,
		Metrics:        true,
		ExportInterval: config.Duration(15 * time.Second),
		ShutdownWait:   config.Duration(5 * time.Second),
	}
}

// FromObservability builds a telemetry config from the observability
// section. A remote endpoint switches the exporters to TLS.
func FromObservability(o config.ObservabilityConfig, version string) *Config {
	cfg := NewDefaultConfig()
	cfg.Enabled = o.EnableTelemetry
	if o.Endpoint != "" {
		cfg.Endpoint = o.Endpoint
		cfg.Insecure = isLoopback(cfg.Endpoint)
	}
	if o.ServiceName != "" {
		cfg.ServiceName = o.ServiceName
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	return cfg
}

// Validate checks an enabled config. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.ServiceName == "" {
		errs = append(errs, errors.New("service_name is required"))
	}
	if c.ServiceVersion == "" {
		errs = append(errs, errors.New("service_version is required"))
	}
	if p := c.protocol(); p != ProtocolGRPC && p != ProtocolHTTP {
		errs = append(errs, fmt.Errorf("protocol must be %s or %s, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol))
	}
	if c.Insecure && c.Endpoint != "" && !isLoopback(c.Endpoint) {
		errs = append(errs, fmt.Errorf("insecure export is only allowed to a loopback endpoint, got %q", c.Endpoint))
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("sample_rate must be within [0, 1], got %g", c.SampleRate))
	}
	if c.Metrics && c.ExportInterval.Duration() <= 0 {
		errs = append(errs, errors.New("export_interval must be positive when metrics are exported"))
	}
	if c.ShutdownWait.Duration() <= 0 {
		errs = append(errs, errors.New("shutdown_wait must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) protocol() string {
	if c.Protocol == "" {
		return ProtocolGRPC
	}
	return c.Protocol
}

// isLoopback reports whether endpoint (host, host:port or a URL) names
// localhost or a loopback address.
func isLoopback(endpoint string) bool {
	host := stripScheme(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// stripScheme removes an http or https scheme. OTLP HTTP exporters take
// host:port.
func stripScheme(endpoint string) string {
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(endpoint, scheme) {
			return strings.TrimSuffix(endpoint[len(scheme):], "/")
		}
	}
	return endpoint
}
