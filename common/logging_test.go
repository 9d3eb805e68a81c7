package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputSplitterRoutesByLevel(t *testing.T) {
	splitter := &OutputSplitter{}

	tests := []struct {
		name    string
		message string
	}{
		{name: "error level", message: `level=error msg="db connection failed"`},
		{name: "info level", message: `level=info msg="listener started"`},
		{name: "warn level", message: `level=warning msg="high memory usage"`},
		{name: "error word but info level", message: `level=info msg="error occurred but not error level"`},
		{name: "empty", message: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := splitter.Write([]byte(tt.message))
			assert.NoError(t, err)
			assert.Equal(t, len(tt.message), n)
		})
	}
}

func TestLoggerUsesOutputSplitter(t *testing.T) {
	assert.NotNil(t, Logger)
	_, ok := Logger.Out.(*OutputSplitter)
	assert.True(t, ok, "Logger should write through an OutputSplitter")
}
