// Package testutil holds helpers shared by package tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// NewVCRRecorder replays testdata/fixtures/<cassetteName>.yaml, or records it
// against the live endpoint when VCR_MODE=record.
func NewVCRRecorder(t *testing.T, cassetteName string) (*recorder.Recorder, func()) {
	t.Helper()

	mode := recorder.ModeReplaying
	if os.Getenv("VCR_MODE") == "record" {
		mode = recorder.ModeRecording
	}

	cassettePath := filepath.Join("testdata", "fixtures", cassetteName)

	r, err := recorder.NewAsMode(cassettePath, mode, nil)
	if err != nil {
		t.Fatalf("Failed to create VCR recorder: %v", err)
	}

	r.SetMatcher(MatchGeneratorRequest)

	cleanup := func() {
		if err := r.Stop(); err != nil {
			t.Errorf("Failed to stop VCR recorder: %v", err)
		}
	}

	return r, cleanup
}

// VCRHTTPClient returns an HTTP client configured to use the VCR recorder.
func VCRHTTPClient(r *recorder.Recorder) *http.Client {
	return &http.Client{
		Transport: r,
	}
}

// MatchGeneratorRequest matches a generator call to a recorded one by method,
// URL and payload shape: both bodies must be JSON objects with the same set of
// top-level fields. Field values may differ so form defaults can change
// without re-recording.
func MatchGeneratorRequest(r *http.Request, i cassette.Request) bool {
	if r.Method != i.Method || r.URL.String() != i.URL {
		return false
	}

	var body []byte
	if r.Body != nil {
		var err error
		if body, err = io.ReadAll(r.Body); err != nil {
			return false
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	got, ok := payloadFields(body)
	if !ok {
		return false
	}
	want, ok := payloadFields([]byte(i.Body))
	if !ok {
		return false
	}
	return slices.Equal(got, want)
}

// payloadFields returns the sorted top-level keys of a JSON object body. An
// empty body has no fields.
func payloadFields(body []byte) ([]string, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, false
	}
	return slices.Sorted(maps.Keys(obj)), true
}
