package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"pvs_monitor/internal/service"
)

func postJSON(r http.Handler, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestAuthHandlers_SignUpAndSignIn(t *testing.T) {
	auth := &mockAuth{signUpID: 42, genTokenToken: "tok123", parseID: 1}
	r := newTestRouter(&service.Service{Authorization: auth})

	w := postJSON(r, "/auth/sign-up", `{"username":"operator","password":"p"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sign-up status=%d, body=%s", w.Code, w.Body.String())
	}
	var m map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if int(m["id"].(float64)) != 42 {
		t.Fatalf("expected id=42, got %v", m["id"])
	}
	if auth.lastSignUpUsername != "operator" {
		t.Fatalf("username passed = %q", auth.lastSignUpUsername)
	}

	w = postJSON(r, "/auth/sign-in", `{"username":"operator","password":"p"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sign-in status=%d, body=%s", w.Code, w.Body.String())
	}
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if m["token"] != "tok123" {
		t.Fatalf("expected token tok123, got %v", m["token"])
	}

	if w := postJSON(r, "/auth/sign-in", `{"username":1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", w.Code)
	}
}

func TestAuthHandlers_Failures(t *testing.T) {
	auth := &mockAuth{signUpErr: service.ErrUserExists, genTokenErr: service.ErrInvalidPassword}
	r := newTestRouter(&service.Service{Authorization: auth})

	if w := postJSON(r, "/auth/sign-up", `{"username":"operator","password":"p"}`); w.Code != http.StatusConflict {
		t.Fatalf("duplicate sign-up status=%d", w.Code)
	}
	w := postJSON(r, "/auth/sign-in", `{"username":"operator","password":"bad"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("sign-in status=%d", w.Code)
	}
	var m map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if m["error"] != "invalid credentials" {
		t.Fatalf("error = %q", m["error"])
	}
}
