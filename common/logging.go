// Package common provides the server's logging infrastructure: a global
// logrus instance with stream-aware output routing, so error-level log
// lines land on stderr while everything else goes to stdout.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log lines to stderr or stdout based on
// level, so container log collectors can treat the two streams
// differently without parsing structured fields themselves.
type OutputSplitter struct{}

func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the process-wide logrus instance every package logs through
// unless it needs a request/connection-scoped *ContextLogger instead.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
