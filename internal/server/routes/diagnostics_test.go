package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/groovecache/groovecache/internal/fetch"
	"github.com/groovecache/groovecache/internal/lifecycle"
)

type stubInterceptor struct {
	activateErr error
	evicted     string
}

func (s *stubInterceptor) OnInstall(ctx context.Context) (lifecycle.InstallReport, error) {
	return lifecycle.InstallReport{
		Version:  "groove-v3",
		Cached:   3,
		Failures: []lifecycle.AssetFailure{{URL: "https://groove.example/manifest.json", Err: errors.New("unreachable")}},
	}, nil
}

func (s *stubInterceptor) OnActivate(ctx context.Context) (lifecycle.ActivateReport, error) {
	if s.activateErr != nil {
		return lifecycle.ActivateReport{}, s.activateErr
	}
	return lifecycle.ActivateReport{Version: "groove-v3", Deleted: []string{"groove-v2"}}, nil
}

func (s *stubInterceptor) OnFetch(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	return nil, errors.New("not used")
}

func (s *stubInterceptor) Status(ctx context.Context) (lifecycle.Status, error) {
	return lifecycle.Status{Version: "groove-v3", Phase: "active", Stores: []string{"groove-v3"}, Entries: 4}, nil
}

func (s *stubInterceptor) EvictEntry(ctx context.Context, rawURL string) error {
	s.evicted = rawURL
	return nil
}

func newDiagnosticsApp(stub *stubInterceptor) *fiber.App {
	app := fiber.New()
	RegisterDiagnosticsRoutes(app, stub)
	return app
}

func TestStatusEndpoint(t *testing.T) {
	app := newDiagnosticsApp(&stubInterceptor{})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/-/status", nil))
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var st lifecycle.Status
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Version != "groove-v3" || st.Phase != "active" || st.Entries != 4 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestInstallEndpointReportsFailures(t *testing.T) {
	app := newDiagnosticsApp(&stubInterceptor{})
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/-/lifecycle/install", nil))
	if err != nil {
		t.Fatalf("install request failed: %v", err)
	}
	var payload installPayload
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode install: %v", err)
	}
	if payload.Cached != 3 || len(payload.Failures) != 1 || payload.Failures[0].Error != "unreachable" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestActivateEndpoint(t *testing.T) {
	app := newDiagnosticsApp(&stubInterceptor{})
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/-/lifecycle/activate", nil))
	if err != nil {
		t.Fatalf("activate request failed: %v", err)
	}
	var payload activatePayload
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode activate: %v", err)
	}
	if len(payload.Deleted) != 1 || payload.Deleted[0] != "groove-v2" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestActivateEndpointMapsErrors(t *testing.T) {
	cases := map[error]int{
		lifecycle.ErrNotInstalled:         fiber.StatusConflict,
		lifecycle.ErrTransitionInProgress: fiber.StatusConflict,
		errors.New("disk gone"):           fiber.StatusInternalServerError,
	}
	for cause, want := range cases {
		app := newDiagnosticsApp(&stubInterceptor{activateErr: cause})
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/-/lifecycle/activate", nil))
		if err != nil {
			t.Fatalf("activate request failed: %v", err)
		}
		if resp.StatusCode != want {
			t.Fatalf("%v: expected %d, got %d", cause, want, resp.StatusCode)
		}
	}
}

func TestEvictEndpoint(t *testing.T) {
	stub := &stubInterceptor{}
	app := newDiagnosticsApp(stub)

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/-/cache", nil))
	if err != nil {
		t.Fatalf("evict request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without url, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/-/cache?url=https%3A%2F%2Fgroove.example%2Fapp.js", nil))
	if err != nil {
		t.Fatalf("evict request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if stub.evicted != "https://groove.example/app.js" {
		t.Fatalf("unexpected evicted url %q", stub.evicted)
	}
}
