package logctx

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFromContext_NilContext(t *testing.T) {
	// FromContext(nil) should return default logger, not panic
	logger := FromContext(nil)

	var buf bytes.Buffer
	testLogger := logger.Output(&buf)
	testLogger.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("expected logger to produce output")
	}
}

func TestFromContext_ContextWithoutLogger(t *testing.T) {
	logger := FromContext(context.Background())

	var buf bytes.Buffer
	testLogger := logger.Output(&buf)
	testLogger.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("expected logger to produce output")
	}
}

func TestWithLogger_AndFromContext(t *testing.T) {
	var buf bytes.Buffer
	customLogger := zerolog.New(&buf).With().Str("custom", "field").Logger()

	ctx := WithLogger(context.Background(), customLogger)
	logger := FromContext(ctx)

	logger.Info().Msg("test")

	output := buf.String()
	if !strings.Contains(output, `"custom":"field"`) {
		t.Errorf("expected custom field in output, got: %s", output)
	}
}

func TestWithLogger_NilContext(t *testing.T) {
	var buf bytes.Buffer
	customLogger := zerolog.New(&buf)

	// Should not panic with nil context
	ctx := WithLogger(nil, customLogger)
	if ctx == nil {
		t.Error("expected non-nil context")
	}

	logger := FromContext(ctx)
	logger.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("expected logger to produce output")
	}
}

func TestWithStr(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))

	ctx = WithStr(ctx, "key", "value")
	logger := FromContext(ctx)
	logger.Info().Msg("test")

	if !strings.Contains(buf.String(), `"key":"value"`) {
		t.Errorf("expected field in output, got: %s", buf.String())
	}
}

func TestWithJob_WithSnapshot(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))

	ctx = WithSnapshot(WithJob(ctx, "job-1"), "snap-1")
	logger := FromContext(ctx)
	logger.Info().Msg("test")

	output := buf.String()
	if !strings.Contains(output, `"job_id":"job-1"`) {
		t.Errorf("expected job_id in output, got: %s", output)
	}
	if !strings.Contains(output, `"snapshot_id":"snap-1"`) {
		t.Errorf("expected snapshot_id in output, got: %s", output)
	}
}

func TestWithStr_FieldsAccumulate(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))

	ctx = WithStr(ctx, "a", "1")
	ctx = WithStr(ctx, "b", "2")
	logger := FromContext(ctx)
	logger.Info().Msg("test")

	output := buf.String()
	if !strings.Contains(output, `"a":"1"`) || !strings.Contains(output, `"b":"2"`) {
		t.Errorf("expected both fields, got: %s", output)
	}
}
