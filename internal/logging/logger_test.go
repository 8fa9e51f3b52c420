package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected zapcore.Level
		wantErr  bool
	}{
		{input: "", expected: zapcore.InfoLevel},
		{input: " DEBUG ", expected: zapcore.DebugLevel},
		{input: "warning", expected: zapcore.WarnLevel},
		{input: "error", expected: zapcore.ErrorLevel},
		{input: "verbose", expected: zapcore.InfoLevel, wantErr: true},
	}

	for _, testCase := range testCases {
		level, err := ParseLevel(testCase.input)
		if (err != nil) != testCase.wantErr {
			t.Fatalf("input %q: unexpected error state %v", testCase.input, err)
		}
		if level != testCase.expected {
			t.Fatalf("input %q: expected %s, got %s", testCase.input, testCase.expected, level)
		}
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	logger, err := NewLogger("warn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected info to be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("expected warn to be enabled")
	}

	if _, err := NewLogger("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
