package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// Source kinds.
const (
	SourceStdin = "stdin"
	SourceHTTP  = "http"
)

// Config is the validated configuration.
type Config struct {
	LogLevel       string       `json:"log_level"`
	Source         SourceConfig `json:"source"`
	Journal        string       `json:"journal"`
	ReportWindowMS int          `json:"report_window_ms"`
}

// SourceConfig selects the visibility source.
type SourceConfig struct {
	Kind string `json:"kind"`
	Addr string `json:"addr"`
}

// ReportWindow returns the report throttle window.
func (c Config) ReportWindow() time.Duration {
	return time.Duration(c.ReportWindowMS) * time.Millisecond
}

// Level maps LogLevel to a slog level. Unknown values map to info.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := Parse([]byte("{}"), "default.cue")
	if err != nil {
		// The embedded schema is broken.
		panic(fmt.Sprintf("config: default: %v", err))
	}
	return cfg
}

// Load reads and parses a config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Parse validates data against the schema and decodes it.
// The first CUE error is returned as an *Error.
func Parse(data []byte, filename string) (Config, error) {
	v, err := build(data, filename)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Check validates data and returns every error found.
func Check(data []byte, filename string) []error {
	_, err := build(data, filename)
	if err == nil {
		return nil
	}
	var out []error
	for _, e := range cueerrors.Errors(err) {
		out = append(out, toError(e))
	}
	if len(out) == 0 {
		out = append(out, err)
	}
	return out
}

func build(data []byte, filename string) (cue.Value, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	file := ctx.CompileBytes(data, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return cue.Value{}, wrapCUEError(err)
	}

	v := def.Unify(file)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, wrapCUEError(err)
	}
	return v, nil
}
