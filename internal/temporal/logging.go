package temporal

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// sdkLogger bridges the Temporal SDK's keyval-style logger onto zerolog so
// workflow and worker output lands in the same stream as the rest of the
// service.
type sdkLogger struct {
	logger zerolog.Logger
}

func NewSDKLogger(logger zerolog.Logger) log.Logger {
	return &sdkLogger{logger: logger.With().Str("component", "temporal-sdk").Logger()}
}

func (l *sdkLogger) fields(keyvals []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		fields[key] = keyvals[i+1]
	}
	if len(keyvals)%2 != 0 {
		// SDK callers occasionally pass a trailing value with no key.
		fields["orphan"] = keyvals[len(keyvals)-1]
	}
	return fields
}

func (l *sdkLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug().Fields(l.fields(keyvals)).Msg(msg)
}

func (l *sdkLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info().Fields(l.fields(keyvals)).Msg(msg)
}

func (l *sdkLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn().Fields(l.fields(keyvals)).Msg(msg)
}

func (l *sdkLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error().Fields(l.fields(keyvals)).Msg(msg)
}
