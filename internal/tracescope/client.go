package tracescope

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fyrsmithlabs/telemetrybridge/internal/logging"
)

// DefaultClientTimeout bounds a whole client call, retries included.
const DefaultClientTimeout = 30 * time.Second

// ClientOption configures a client built by ClientFactory.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout      time.Duration
	retries      int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	base         http.RoundTripper
}

// WithTimeout sets the overall client timeout. Zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithRetries retries failed calls up to n times on connection errors and
// 5xx responses. Each attempt is traced and scoped on its own.
func WithRetries(n int) ClientOption {
	return func(c *clientConfig) {
		c.retries = n
	}
}

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(minWait, maxWait time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.retryWaitMin = minWait
		c.retryWaitMax = maxWait
	}
}

// WithBaseTransport replaces the pooled cleanhttp transport at the bottom
// of the chain.
func WithBaseTransport(rt http.RoundTripper) ClientOption {
	return func(c *clientConfig) {
		c.base = rt
	}
}

// ClientFactory builds HTTP clients whose transport always runs through
// OpenTelemetry client instrumentation and the outbound scope:
//
//	otelhttp.Transport -> tracescope.Transport -> base
type ClientFactory struct {
	opts     Options
	otelOpts []otelhttp.Option
}

// NewClientFactory creates a factory. otelOpts configure the client spans
// (tracer provider, propagators, span names).
func NewClientFactory(o Options, otelOpts ...otelhttp.Option) *ClientFactory {
	return &ClientFactory{opts: o, otelOpts: otelOpts}
}

// Transport wraps base in the instrumented chain. A nil base gets a pooled
// cleanhttp transport.
func (f *ClientFactory) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = cleanhttp.DefaultPooledTransport()
	}
	return otelhttp.NewTransport(Transport{Base: base, Options: f.opts}, f.otelOpts...)
}

// Client returns a new instrumented client.
func (f *ClientFactory) Client(opts ...ClientOption) *http.Client {
	cfg := clientConfig{timeout: DefaultClientTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	transport := f.Transport(cfg.base)
	if cfg.retries <= 0 {
		return &http.Client{Transport: transport, Timeout: cfg.timeout}
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Transport: transport}
	rc.RetryMax = cfg.retries
	if cfg.retryWaitMin > 0 {
		rc.RetryWaitMin = cfg.retryWaitMin
	}
	if cfg.retryWaitMax > 0 {
		rc.RetryWaitMax = cfg.retryWaitMax
	}
	rc.Logger = retryLogger{f.opts.Logger}

	client := rc.StandardClient()
	client.Timeout = cfg.timeout
	return client
}

// retryLogger adapts logging.Logger to retryablehttp.LeveledLogger.
type retryLogger struct {
	logger *logging.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.logger.Underlying().Sugar().Errorw(msg, keysAndValues...)
	}
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.logger.Underlying().Sugar().Infow(msg, keysAndValues...)
	}
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.logger.Underlying().Sugar().Debugw(msg, keysAndValues...)
	}
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.logger.Underlying().Sugar().Warnw(msg, keysAndValues...)
	}
}
