package testutil

import (
	"net/http/httptest"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.WriteString(`{"running": true, "distance": 42.5}`)

	got := DecodeJSON[struct {
		Running  bool    `json:"running"`
		Distance float64 `json:"distance"`
	}](t, rec)
	if !got.Running || got.Distance != 42.5 {
		t.Errorf("DecodeJSON() = %+v", got)
	}
}

func TestQuietLogger(t *testing.T) {
	l := QuietLogger()
	l.Info("not shown")
	if l.Out == nil {
		t.Fatal("logger has no output")
	}
}
