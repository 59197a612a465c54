/*
Package logging builds the process-wide zap logger. Grounded on midaz's
common/mzap/injector.go (ENV_NAME-keyed production/development config,
LOG_LEVEL override), trimmed of its otel-log-bridge wiring (otelzap,
mopentelemetry) since that depends on Lerian-internal exporter packages this
repository does not carry; tracing here goes through internal/observability's
plain otel spans instead of a logger-attached bridge.
*/
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger configured for env ("production" gets JSON
// encoding and no color; anything else gets the human-readable development
// encoder). LOG_LEVEL, if set, overrides the environment's default level.
func New(env string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if val, ok := os.LookupEnv("LOG_LEVEL"); ok {
		var lvl zapcore.Level
		if err := lvl.Set(val); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", val, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return logger, nil
}
