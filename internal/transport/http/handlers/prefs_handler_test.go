package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	prefssvc "github.com/ivankudzin/tipjar/internal/services/prefs"
)

type prefsStoreStub struct {
	saved *prefssvc.Appearance
}

func (s *prefsStoreStub) Load(context.Context) (prefssvc.Appearance, error) {
	if s.saved == nil {
		return prefssvc.Appearance{}, prefssvc.ErrNotFound
	}
	return *s.saved, nil
}

func (s *prefsStoreStub) Save(_ context.Context, appearance prefssvc.Appearance) error {
	s.saved = &appearance
	return nil
}

func newPrefsHandler(store *prefsStoreStub) *PrefsHandler {
	return NewPrefsHandler(prefssvc.NewService(store, prefssvc.Config{}))
}

func TestPrefsGetReturnsDefaults(t *testing.T) {
	h := newPrefsHandler(&prefsStoreStub{})

	req := httptest.NewRequest(http.MethodGet, "/v1/prefs", nil)
	rr := httptest.NewRecorder()
	h.Get(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}

	var payload struct {
		AccentColor string `json:"accent_color"`
		Icon        string `json:"icon"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.AccentColor != "#f2a03d" || payload.Icon != "default" {
		t.Fatalf("unexpected defaults: %+v", payload)
	}
}

func TestPrefsUpdateAccentColor(t *testing.T) {
	store := &prefsStoreStub{}
	h := newPrefsHandler(store)

	body, _ := json.Marshal(map[string]string{"accent_color": "#AABBCC"})
	req := httptest.NewRequest(http.MethodPut, "/v1/prefs", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.Update(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}

	var payload struct {
		AccentColor string `json:"accent_color"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.AccentColor != "#aabbcc" {
		t.Fatalf("unexpected accent color: got %q want %q", payload.AccentColor, "#aabbcc")
	}
	if store.saved == nil || store.saved.AccentColor != "#aabbcc" {
		t.Fatalf("accent color was not persisted: %+v", store.saved)
	}
}

func TestPrefsUpdateRejectsInvalidColor(t *testing.T) {
	h := newPrefsHandler(&prefsStoreStub{})

	body, _ := json.Marshal(map[string]string{"accent_color": "not-a-color"})
	req := httptest.NewRequest(http.MethodPut, "/v1/prefs", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.Update(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}

	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error code: got %q want %q", payload.Code, "VALIDATION_ERROR")
	}
}

func TestPrefsUpdateRejectsEmptyBody(t *testing.T) {
	h := newPrefsHandler(&prefsStoreStub{})

	req := httptest.NewRequest(http.MethodPut, "/v1/prefs", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	h.Update(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestPrefsUpdateBothFields(t *testing.T) {
	store := &prefsStoreStub{}
	h := newPrefsHandler(store)

	body, _ := json.Marshal(map[string]string{"accent_color": "#112233", "icon": "mono"})
	req := httptest.NewRequest(http.MethodPut, "/v1/prefs", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.Update(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if store.saved == nil || store.saved.AccentColor != "#112233" || store.saved.Icon != "mono" {
		t.Fatalf("unexpected persisted appearance: %+v", store.saved)
	}
}
