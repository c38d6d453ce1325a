// Package endpoint resolves the telemetry collector endpoint and wire
// protocol from the deployment environment.
//
// Resolution reads the environment on every call and keeps no state, so it is
// safe to call concurrently and always reflects the current environment.
package endpoint

import (
	"net/url"
	"os"
	"strings"
)

// Protocol is the OTLP wire protocol.
type Protocol string

const (
	// ProtocolDefault means no override; the exporter pipeline default (gRPC) applies.
	ProtocolDefault Protocol = ""
	// ProtocolGRPC is OTLP over gRPC.
	ProtocolGRPC Protocol = "grpc"
	// ProtocolHTTPProtobuf is OTLP over HTTP with protobuf payloads.
	ProtocolHTTPProtobuf Protocol = "http/protobuf"
)

// Signal is the per-signal path appended to HTTP endpoints.
type Signal string

const (
	SignalNone    Signal = ""
	SignalTraces  Signal = "v1/traces"
	SignalMetrics Signal = "v1/metrics"
	SignalLogs    Signal = "v1/logs"
)

// Environment variables consulted during resolution.
const (
	EnvAppEnvironment = "APP_ENVIRONMENT"
	EnvGoEnvironment  = "GO_ENVIRONMENT"
	EnvOTLPEndpoint   = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPProtocol   = "OTEL_EXPORTER_OTLP_PROTOCOL"
)

// Documented defaults.
const (
	DefaultDevEndpoint     = "http://localhost:4318"
	DefaultClusterEndpoint = "http://otel-collector:4317"
	DefaultGRPCEndpoint    = "http://localhost:4317"
)

// Endpoint is a resolved collector endpoint. It is derived per call and
// never cached.
type Endpoint struct {
	URL      *url.URL
	Protocol Protocol
}

// EffectiveProtocol returns the protocol the exporter should use, mapping
// ProtocolDefault to gRPC.
func (e Endpoint) EffectiveProtocol() Protocol {
	if e.Protocol == ProtocolDefault {
		return ProtocolGRPC
	}
	return e.Protocol
}

// String returns the endpoint URL.
func (e Endpoint) String() string {
	if e.URL == nil {
		return ""
	}
	return e.URL.String()
}

// Resolver resolves endpoints from an environment lookup function.
// The zero value reads the process environment.
type Resolver struct {
	Getenv func(string) string
}

// Resolve resolves the endpoint for signal from the process environment.
func Resolve(signal Signal) Endpoint {
	return Resolver{}.Resolve(signal)
}

// ResolveExplicit resolves the endpoint from the OTLP exporter variables
// only, without environment classification.
func ResolveExplicit() Endpoint {
	return Resolver{}.ResolveExplicit()
}

// IsDevelopment reports whether the process environment is local/dev.
func IsDevelopment() bool {
	return Resolver{}.IsDevelopment()
}

// Resolve returns the collector endpoint for signal.
//
// In local/dev environments the base defaults to http://localhost:4318 with
// HTTP/protobuf, and OTEL_EXPORTER_OTLP_PROTOCOL may replace the protocol.
// Elsewhere it defaults to the in-cluster collector and the protocol is always
// left to the exporter default (gRPC). OTEL_EXPORTER_OTLP_ENDPOINT replaces the
// base in both cases when it parses. When the effective protocol is HTTP the
// signal path is appended to the base.
func (r Resolver) Resolve(signal Signal) Endpoint {
	base, protocol := DefaultClusterEndpoint, ProtocolDefault
	if r.IsDevelopment() {
		base, protocol = DefaultDevEndpoint, ProtocolHTTPProtobuf
		if override, ok := r.protocolOverride(); ok {
			protocol = override
		}
	}

	if override, ok := r.endpointOverride(); ok {
		base = override
	}

	target := base
	if protocol == ProtocolHTTPProtobuf && signal != SignalNone {
		target = JoinPath(base, string(signal))
	}

	return Endpoint{URL: parseURL(target), Protocol: protocol}
}

// ResolveExplicit returns the override endpoint and protocol when set and
// valid, falling back to http://localhost:4317 over gRPC.
func (r Resolver) ResolveExplicit() Endpoint {
	base := DefaultGRPCEndpoint
	if override, ok := r.endpointOverride(); ok {
		base = override
	}

	protocol := ProtocolGRPC
	if override, ok := r.protocolOverride(); ok {
		protocol = override
	}

	return Endpoint{URL: parseURL(base), Protocol: protocol}
}

// IsDevelopment reports whether the environment indicator names a local/dev
// environment. The first non-empty indicator wins.
func (r Resolver) IsDevelopment() bool {
	return IsDevelopmentName(r.environmentName())
}

// IsDevelopmentName reports whether name is Development, Dev or Local,
// ignoring case.
func IsDevelopmentName(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "development", "dev", "local":
		return true
	default:
		return false
	}
}

// ParseProtocol parses a protocol name, ignoring case.
func ParseProtocol(s string) (Protocol, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ProtocolGRPC):
		return ProtocolGRPC, true
	case string(ProtocolHTTPProtobuf):
		return ProtocolHTTPProtobuf, true
	default:
		return ProtocolDefault, false
	}
}

// JoinPath joins base and path with exactly one slash.
func JoinPath(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func (r Resolver) getenv(key string) string {
	if r.Getenv != nil {
		return r.Getenv(key)
	}
	return os.Getenv(key)
}

func (r Resolver) environmentName() string {
	for _, key := range []string{EnvAppEnvironment, EnvGoEnvironment} {
		if v := strings.TrimSpace(r.getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// endpointOverride returns the override base URL with trailing slashes
// trimmed. Values that are not absolute http(s) URIs are treated as absent.
func (r Resolver) endpointOverride() (string, bool) {
	raw := strings.TrimSpace(r.getenv(EnvOTLPEndpoint))
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}

	return strings.TrimRight(raw, "/"), true
}

func (r Resolver) protocolOverride() (Protocol, bool) {
	return ParseProtocol(r.getenv(EnvOTLPProtocol))
}

// parseURL parses URLs that were validated or built from constants.
func parseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
