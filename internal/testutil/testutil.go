// Package testutil holds helpers shared by the package tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/banshee-data/proximity.report/internal/monitoring"
)

// RunQuiet silences diagnostic and standard logrus output, then runs the
// package tests. Call it from TestMain.
func RunQuiet(m *testing.M) {
	monitoring.SetLogger(nil)
	logrus.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// QuietLogger returns a logrus logger that discards everything.
func QuietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// DecodeJSON decodes the recorded response body into a T, failing the test
// with the raw body when it is not valid JSON.
func DecodeJSON[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	body := rec.Body.String()
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		t.Fatalf("decoding %T from %q: %v", v, body, err)
	}
	return v
}
