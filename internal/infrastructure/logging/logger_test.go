package logging

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type testingWriter struct {
	logs *bytes.Buffer
}

func (w *testingWriter) Write(p []byte) (int, error) {
	return w.logs.Write(p)
}

func (w *testingWriter) Sync() error {
	return nil
}

func newTestLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()

	buf := &bytes.Buffer{}
	writer := &testingWriter{logs: buf}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "timestamp",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(writer),
		zap.NewAtomicLevelAt(zapcore.DebugLevel),
	)

	zapLogger := zap.New(core)
	return &Logger{
		logger: zapLogger,
		sugar:  zapLogger.Sugar(),
	}, buf
}

func TestLoggerLevels(t *testing.T) {
	testLogger, buf := newTestLogger(t)
	defer testLogger.Sync()

	testLogger.Debug("debug message")
	testLogger.Info("info message")
	testLogger.Warn("warning message")
	testLogger.Error("error message")

	output := buf.String()
	for _, want := range []string{
		"debug message", "info message", "warning message", "error message",
		`"level":"debug"`, `"level":"info"`, `"level":"warn"`, `"level":"error"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q", want)
		}
	}
}

func TestLoggerWithFields(t *testing.T) {
	testLogger, buf := newTestLogger(t)
	defer testLogger.Sync()

	testLogger.Info("session opened", Fields{
		"session_id": "abc-123",
		"buffer":     100,
	})

	output := buf.String()
	if !strings.Contains(output, `"session_id":"abc-123"`) {
		t.Error("session_id field not found in logs")
	}
	if !strings.Contains(output, `"buffer":100`) {
		t.Error("buffer field not found in logs")
	}
}

func TestLoggerFormattedMessages(t *testing.T) {
	testLogger, buf := newTestLogger(t)
	defer testLogger.Sync()

	testLogger.Infof("session %s closed after %d messages", "abc-123", 4)

	if !strings.Contains(buf.String(), "session abc-123 closed after 4 messages") {
		t.Error("Formatted message not found in logs")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "development config",
			config:  DevelopmentConfig(),
			wantErr: false,
		},
		{
			name:    "production config",
			config:  ProductionConfig(),
			wantErr: false,
		},
		{
			name: "unknown level defaults to info",
			config: Config{
				Level:       LogLevel("unknown"),
				OutputPaths: []string{"stdout"},
			},
			wantErr: false,
		},
		{
			name: "initial fields",
			config: Config{
				Level:       InfoLevel,
				OutputPaths: []string{"stdout"},
				InitialFields: Fields{
					"service": "mcp-server",
				},
			},
			wantErr: false,
		},
		{
			name: "invalid output path",
			config: Config{
				Level:       InfoLevel,
				OutputPaths: []string{"/invalid/path/that/doesnt/exist"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("Expected non-nil logger")
			}
		})
	}
}

func TestWithEmptyFields(t *testing.T) {
	testLogger, _ := newTestLogger(t)
	defer testLogger.Sync()

	if testLogger.With(Fields{}) != testLogger {
		t.Error("Expected same logger instance when With is called with empty fields")
	}
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	if logger == nil {
		t.Fatal("Expected non-nil logger")
	}
	logger.Info("discarded")
	logger.Errorf("also %s", "discarded")
}
