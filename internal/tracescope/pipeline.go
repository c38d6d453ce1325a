package tracescope

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Pipeline installs the inbound interceptors on application servers.
type Pipeline struct {
	operation string
	opts      Options
	otelOpts  []otelhttp.Option

	installed sync.Map // *echo.Echo -> struct{}
}

// NewPipeline creates a pipeline whose server spans use operation as the
// default name. otelOpts configure the server instrumentation.
func NewPipeline(operation string, o Options, otelOpts ...otelhttp.Option) *Pipeline {
	opts := append([]otelhttp.Option{otelhttp.WithSpanNameFormatter(spanName)}, otelOpts...)
	return &Pipeline{operation: operation, opts: o, otelOpts: opts}
}

// Install adds server instrumentation followed by the trace scope middleware
// to e. It installs at most once per Echo instance and reports whether this
// call did.
func (p *Pipeline) Install(e *echo.Echo) bool {
	if e == nil {
		return false
	}
	if _, loaded := p.installed.LoadOrStore(e, struct{}{}); loaded {
		return false
	}
	e.Use(echo.WrapMiddleware(otelhttp.NewMiddleware(p.operation, p.otelOpts...)))
	e.Use(Echo(p.opts))
	return true
}

// Installed reports whether Install has run for e.
func (p *Pipeline) Installed(e *echo.Echo) bool {
	_, ok := p.installed.Load(e)
	return ok
}

// Wrap returns h behind server instrumentation and the trace scope, for
// hosts built on net/http directly.
func (p *Pipeline) Wrap(h http.Handler) http.Handler {
	return otelhttp.NewHandler(Middleware(p.opts)(h), p.operation, p.otelOpts...)
}

func spanName(_ string, r *http.Request) string {
	return r.Method + " " + r.URL.Path
}
