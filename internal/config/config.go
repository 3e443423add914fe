// Package config collects the runtime settings shared by the globe commands.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/signalsfoundry/membership-globe/core"
	"github.com/signalsfoundry/membership-globe/kb"
)

// Environment keys.
const (
	EnvSphereRadius      = "GLOBE_SPHERE_RADIUS"
	EnvImageWidth        = "GLOBE_IMAGE_WIDTH"
	EnvImageHeight       = "GLOBE_IMAGE_HEIGHT"
	EnvGRPCAddr          = "GLOBE_GRPC_ADDR"
	EnvMetricsAddr       = "GLOBE_METRICS_ADDR"
	EnvCountriesPath     = "GLOBE_COUNTRIES_PATH"
	EnvOrganizationsPath = "GLOBE_ORGANIZATIONS_PATH"
	EnvMaxActive         = "GLOBE_MAX_ACTIVE"
	EnvActive            = "GLOBE_ACTIVE_ORGANIZATIONS"

	EnvTracingEnabled     = "GLOBE_TRACING_ENABLED"
	EnvTracingExporter    = "GLOBE_TRACING_EXPORTER"
	EnvTracingServiceName = "GLOBE_TRACING_SERVICE_NAME"
	EnvTracingSampleRatio = "GLOBE_TRACING_SAMPLE_RATIO"
	EnvOTLPEndpoint       = "GLOBE_OTLP_ENDPOINT"
)

// DefaultEnvFile is loaded by Load when present.
const DefaultEnvFile = ".env"

// Config holds the service settings.
type Config struct {
	Projection core.ProjectionParams

	GRPCAddr    string
	MetricsAddr string

	// Empty paths select the embedded reference data.
	CountriesPath     string
	OrganizationsPath string

	MaxActive int
	// Active is the initial organization selection, comma separated in env.
	Active []string

	Tracing Tracing
}

// Tracing configures span export.
type Tracing struct {
	Enabled     bool
	Exporter    string // stdout | otlp
	ServiceName string
	SampleRatio float64
	Endpoint    string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Projection:  core.DefaultProjectionParams(),
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		MaxActive:   kb.DefaultMaxActive,
		Tracing: Tracing{
			Exporter:    "stdout",
			ServiceName: "membership-globe",
			SampleRatio: 1,
		},
	}
}

// Load reads the optional env files (DefaultEnvFile when none are given)
// into the process environment without overriding variables that are
// already set, then returns FromEnv.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, starting from Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	r := reader{lookup: lookup}

	cfg.Projection.SphereRadius = r.positiveFloat(EnvSphereRadius, cfg.Projection.SphereRadius)
	cfg.Projection.ImageWidth = r.positiveInt(EnvImageWidth, cfg.Projection.ImageWidth)
	cfg.Projection.ImageHeight = r.positiveInt(EnvImageHeight, cfg.Projection.ImageHeight)
	cfg.GRPCAddr = r.str(EnvGRPCAddr, cfg.GRPCAddr)
	cfg.MetricsAddr = r.str(EnvMetricsAddr, cfg.MetricsAddr)
	cfg.CountriesPath = r.str(EnvCountriesPath, "")
	cfg.OrganizationsPath = r.str(EnvOrganizationsPath, "")
	cfg.MaxActive = r.positiveInt(EnvMaxActive, cfg.MaxActive)
	cfg.Active = splitList(r.str(EnvActive, ""))

	cfg.Tracing.Enabled = r.boolean(EnvTracingEnabled, false)
	cfg.Tracing.Exporter = strings.ToLower(r.str(EnvTracingExporter, cfg.Tracing.Exporter))
	cfg.Tracing.ServiceName = r.str(EnvTracingServiceName, cfg.Tracing.ServiceName)
	cfg.Tracing.SampleRatio = r.ratio(EnvTracingSampleRatio, cfg.Tracing.SampleRatio)
	cfg.Tracing.Endpoint = r.str(EnvOTLPEndpoint, "")

	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that flags may have changed after loading.
func (c Config) Validate() error {
	var errs []error
	if !(c.Projection.SphereRadius > 0) || math.IsInf(c.Projection.SphereRadius, 0) {
		errs = append(errs, fmt.Errorf("sphere radius must be positive, got %v", c.Projection.SphereRadius))
	}
	if c.Projection.ImageWidth <= 0 || c.Projection.ImageHeight <= 0 {
		errs = append(errs, fmt.Errorf("image size must be positive, got %dx%d", c.Projection.ImageWidth, c.Projection.ImageHeight))
	}
	if c.MaxActive <= 0 {
		errs = append(errs, fmt.Errorf("max active must be positive, got %d", c.MaxActive))
	}
	if len(c.Active) > c.MaxActive {
		errs = append(errs, fmt.Errorf("%d initial organizations exceed max active %d", len(c.Active), c.MaxActive))
	}
	switch c.Tracing.Exporter {
	case "stdout", "otlp", "otlpgrpc":
	default:
		errs = append(errs, fmt.Errorf("unsupported tracing exporter %q", c.Tracing.Exporter))
	}
	return errors.Join(errs...)
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) raw(key string) (string, bool) {
	if r.lookup == nil {
		return "", false
	}
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) positiveInt(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.errs = append(r.errs, fmt.Errorf("%s: want a positive integer, got %q", key, v))
		return def
	}
	return n
}

func (r *reader) positiveFloat(key string, def float64) float64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || !(f > 0) || math.IsInf(f, 0) {
		r.errs = append(r.errs, fmt.Errorf("%s: want a positive number, got %q", key, v))
		return def
	}
	return f
}

func (r *reader) ratio(key string, def float64) float64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		r.errs = append(r.errs, fmt.Errorf("%s: want a ratio in [0,1], got %q", key, v))
		return def
	}
	return f
}

func (r *reader) boolean(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: want a boolean, got %q", key, v))
		return def
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
