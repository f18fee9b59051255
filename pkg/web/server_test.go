package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/meterblink/meterblink/internal/history"
	"github.com/meterblink/meterblink/pkg/attempt"
)

type fakeRuns struct {
	runs []history.Run
	err  error
}

func (f *fakeRuns) Recent(_ context.Context, limit int) ([]history.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func newTestServer(t *testing.T, runs RunLister) (*Server, *int, *int) {
	t.Helper()

	starts, stops := 0, 0
	s := NewServer("127.0.0.1:0", t.TempDir(), runs)
	s.OnStart = func() error { starts++; return nil }
	s.OnStop = func() bool { stops++; return true }
	s.Status = func() attempt.Status {
		return attempt.Status{Active: true, CurrentCode: "0042", CodesSent: 43}
	}
	s.Stream = func(ctx context.Context, w io.Writer) error { return nil }
	t.Cleanup(func() { s.Shutdown() })
	return s, &starts, &stops
}

func TestPinReportsStatus(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodGet, "/pin", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var st attempt.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if !st.Active || st.CurrentCode != "0042" || st.CodesSent != 43 {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestControlFormInvokesCallbacks(t *testing.T) {
	s, starts, stops := newTestServer(t, nil)

	for _, action := range []string{"start", "stop"} {
		form := url.Values{"action": {action}}
		req, _ := http.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := s.app.Test(req)
		if err != nil {
			t.Fatalf("%s request failed: %v", action, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", action, resp.StatusCode)
		}
		resp.Body.Close()
	}
	if *starts != 1 || *stops != 1 {
		t.Errorf("starts = %d, stops = %d, want 1 and 1", *starts, *stops)
	}
}

func TestControlReportsStartRejection(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	s.OnStart = func() error { return attempt.ErrAlreadyRunning }

	form := url.Values{"action": {"start"}}
	req, _ := http.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "already active") {
		t.Errorf("page does not report the rejection: %s", body)
	}
}

func TestImagesListFiltersAndSorts(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	for _, name := range []string{"b_0002.jpg", "a_0001.jpg", "notes.txt", "clip.avi"} {
		if err := os.WriteFile(filepath.Join(s.imageDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, "/images_list", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Images []string `json:"images"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	want := []string{"a_0001.jpg", "b_0002.jpg"}
	if len(payload.Images) != len(want) {
		t.Fatalf("images = %v, want %v", payload.Images, want)
	}
	for i := range want {
		if payload.Images[i] != want[i] {
			t.Errorf("images[%d] = %q, want %q", i, payload.Images[i], want[i])
		}
	}
}

func TestRunsServesHistory(t *testing.T) {
	lister := &fakeRuns{runs: []history.Run{
		{ID: "run-2", StartedAt: time.Now()},
		{ID: "run-1", StartedAt: time.Now().Add(-time.Hour)},
	}}
	s, _, _ := newTestServer(t, lister)

	req, _ := http.NewRequest(http.MethodGet, "/runs", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Runs []history.Run `json:"runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(payload.Runs) != 2 || payload.Runs[0].ID != "run-2" {
		t.Errorf("unexpected runs payload: %+v", payload.Runs)
	}
}

func TestRunsErrorsSurfaceAsServerError(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeRuns{err: errors.New("db offline")})

	req, _ := http.NewRequest(http.MethodGet, "/runs", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}
