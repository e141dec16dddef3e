package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-social-connect/core"
)

func newTestHandler(t *testing.T, verifier core.SessionVerifier, platforms ...*stubPlatform) *Handler {
	t.Helper()

	dispatcher := newTestDispatcher(t, verifier, platforms...)
	handler, err := NewHandler(dispatcher)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	return handler
}

func postAction(t *testing.T, handler *Handler, authorization string, req Request) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq := httptest.NewRequest(http.MethodPost, "/api/social/connect", strings.NewReader(string(body)))
	httpReq.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		httpReq.Header.Set("Authorization", authorization)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httpReq)
	return recorder
}

func decodeErrorBody(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()

	var payload map[string]string
	if err := json.NewDecoder(recorder.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload["error"]
}

func TestHandler_PreflightShortCircuitsWithCORS(t *testing.T) {
	handler := newTestHandler(t, &stubVerifier{userID: "user-1"})

	req := httptest.NewRequest(http.MethodOptions, "/api/social/connect", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for preflight, got %d", recorder.Code)
	}
	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Fatalf("expected open CORS origin, got %q", origin)
	}
	if methods := recorder.Header().Get("Access-Control-Allow-Methods"); methods != "POST, OPTIONS" {
		t.Fatalf("unexpected allowed methods: %q", methods)
	}
	if headers := recorder.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(headers, "Authorization") {
		t.Fatalf("expected Authorization in allowed headers, got %q", headers)
	}
	if recorder.Body.Len() != 0 {
		t.Fatalf("preflight must not carry a body, got %q", recorder.Body.String())
	}
}

func TestHandler_RejectsNonPost(t *testing.T) {
	handler := newTestHandler(t, &stubVerifier{userID: "user-1"})

	req := httptest.NewRequest(http.MethodGet, "/api/social/connect", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", recorder.Code)
	}
	if message := decodeErrorBody(t, recorder); message != "Method not allowed" {
		t.Fatalf("unexpected error message: %q", message)
	}
	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Fatalf("error responses still carry CORS headers, got %q", origin)
	}
}

func TestHandler_RejectsMalformedBody(t *testing.T) {
	handler := newTestHandler(t, &stubVerifier{userID: "user-1"})

	req := httptest.NewRequest(http.MethodPost, "/api/social/connect", strings.NewReader("{not json"))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if message := decodeErrorBody(t, recorder); message != "Invalid request body" {
		t.Fatalf("unexpected error message: %q", message)
	}
}

func TestHandler_UnknownActionIsBadRequest(t *testing.T) {
	handler := newTestHandler(t, &stubVerifier{userID: "user-1"})

	recorder := postAction(t, handler, "Bearer good", Request{Action: "export"})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if message := decodeErrorBody(t, recorder); message != "Invalid action" {
		t.Fatalf("unexpected error message: %q", message)
	}
}

func TestHandler_UnauthorizedWithoutSession(t *testing.T) {
	handler := newTestHandler(t, &stubVerifier{err: errors.New("token rejected")})

	recorder := postAction(t, handler, "Bearer bad", Request{
		Action:   ActionStatus,
		Platform: "instagram",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if message := decodeErrorBody(t, recorder); message != "Unauthorized" {
		t.Fatalf("unexpected error message: %q", message)
	}
}

func TestHandler_CallbackLinksAccountWithoutSession(t *testing.T) {
	handler := newTestHandler(t, &stubVerifier{err: errors.New("token rejected")})

	recorder := postAction(t, handler, "", Request{
		Action:   ActionCallback,
		Platform: "instagram",
		Code:     "auth-code",
		State:    freshState(t, "user-1", "instagram"),
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type: %q", ct)
	}

	var payload struct {
		Success bool `json:"success"`
		Account struct {
			ID       string `json:"id"`
			Platform string `json:"platform"`
			Username string `json:"username"`
		} `json:"account"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&payload); err != nil {
		t.Fatalf("decode callback body: %v", err)
	}
	if !payload.Success || payload.Account.Platform != "instagram" || payload.Account.ID == "" {
		t.Fatalf("unexpected callback payload: %+v", payload)
	}
}

func TestHandler_ProviderFailureKeepsMappedEnvelope(t *testing.T) {
	platform := &stubPlatform{id: "instagram"}
	handler := newTestHandler(t, &stubVerifier{userID: "user-1"}, platform)

	linked := postAction(t, handler, "", Request{
		Action:   ActionCallback,
		Platform: "instagram",
		Code:     "auth-code",
		State:    freshState(t, "user-1", "instagram"),
	})
	if linked.Code != http.StatusOK {
		t.Fatalf("link account: %d %s", linked.Code, linked.Body.String())
	}
	var callback struct {
		Account struct {
			ID string `json:"id"`
		} `json:"account"`
	}
	if err := json.NewDecoder(linked.Body).Decode(&callback); err != nil {
		t.Fatalf("decode callback body: %v", err)
	}

	platform.refresh = func(ctx context.Context, refreshToken string) (core.TokenGrant, error) {
		return core.TokenGrant{}, errors.New("upstream says: secret=abc123 invalid_grant")
	}

	recorder := postAction(t, handler, "Bearer good", Request{
		Action:    ActionRefresh,
		AccountID: callback.Account.ID,
	})
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", recorder.Code)
	}
	message := decodeErrorBody(t, recorder)
	if message != "Token refresh failed" {
		t.Fatalf("expected mapped message, got %q", message)
	}
	if strings.Contains(recorder.Body.String(), "secret=abc123") {
		t.Fatalf("provider detail leaked into response body")
	}
}
