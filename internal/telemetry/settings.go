package telemetry

import (
	"errors"
	"os"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
)

// DefaultServiceVersion is used when the binary carries no module version.
const DefaultServiceVersion = "1.0.0"

// ErrInvalidServiceName is returned when the service name is blank.
var ErrInvalidServiceName = errors.New("service name must not be blank")

// Settings is the process identity shared read-only by every bridge
// component. It is built once by the bootstrap and never mutated.
type Settings struct {
	serviceName      string
	serviceVersion   string
	logCapturePrefix string
	instanceID       string
}

// SettingsOption customizes Settings construction.
type SettingsOption func(*Settings)

// WithServiceVersion overrides the detected service version.
func WithServiceVersion(version string) SettingsOption {
	return func(s *Settings) {
		if v := strings.TrimSpace(version); v != "" {
			s.serviceVersion = v
		}
	}
}

// WithCapturePrefix overrides the log category prefix mirrored onto spans.
// The default is the service name.
func WithCapturePrefix(prefix string) SettingsOption {
	return func(s *Settings) {
		s.logCapturePrefix = prefix
	}
}

// WithInstanceID overrides the detected instance identity.
func WithInstanceID(id string) SettingsOption {
	return func(s *Settings) {
		if v := strings.TrimSpace(id); v != "" {
			s.instanceID = v
		}
	}
}

// NewSettings builds Settings for serviceName, which is trimmed and must not
// be blank.
func NewSettings(serviceName string, opts ...SettingsOption) (Settings, error) {
	name := strings.TrimSpace(serviceName)
	if name == "" {
		return Settings{}, ErrInvalidServiceName
	}

	s := Settings{
		serviceName:      name,
		serviceVersion:   detectVersion(),
		logCapturePrefix: name,
		instanceID:       detectInstanceID(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s, nil
}

// ServiceName returns the trimmed service name.
func (s Settings) ServiceName() string { return s.serviceName }

// ServiceVersion returns the service version.
func (s Settings) ServiceVersion() string { return s.serviceVersion }

// LogCapturePrefix returns the log category prefix mirrored onto spans.
func (s Settings) LogCapturePrefix() string { return s.logCapturePrefix }

// InstanceID returns the service instance identity.
func (s Settings) InstanceID() string { return s.instanceID }

// IsZero reports whether s was never built by NewSettings.
func (s Settings) IsZero() bool { return s.serviceName == "" }

func detectVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return DefaultServiceVersion
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	return DefaultServiceVersion
}

func detectInstanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}
