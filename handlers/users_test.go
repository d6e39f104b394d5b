package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"mediatrack/models"
	"mediatrack/services/users"
)

type fakeUsersService struct {
	users     []models.User
	user      models.User
	err       error
	verifyErr error

	lastName  string
	lastColor string
	lastPin   string
	lastID    string
}

func (f *fakeUsersService) List() []models.User { return f.users }

func (f *fakeUsersService) Create(name string) (models.User, error) {
	f.lastName = name
	return f.user, f.err
}

func (f *fakeUsersService) Rename(id, name string) (models.User, error) {
	f.lastID = id
	f.lastName = name
	return f.user, f.err
}

func (f *fakeUsersService) SetColor(id, color string) (models.User, error) {
	f.lastID = id
	f.lastColor = color
	return f.user, f.err
}

func (f *fakeUsersService) Delete(id string) error {
	f.lastID = id
	return f.err
}

func (f *fakeUsersService) Exists(id string) bool { return true }

func (f *fakeUsersService) SetPin(id, pin string) (models.User, error) {
	f.lastID = id
	f.lastPin = pin
	return f.user, f.err
}

func (f *fakeUsersService) ClearPin(id string) (models.User, error) {
	f.lastID = id
	return f.user, f.err
}

func (f *fakeUsersService) VerifyPin(id, pin string) error {
	f.lastID = id
	f.lastPin = pin
	return f.verifyErr
}

func (f *fakeUsersService) HasPin(id string) bool { return f.user.HasPin() }

func TestUsersHandler_Create(t *testing.T) {
	fake := &fakeUsersService{user: models.User{ID: "u1", Name: "Mara"}}
	handler := NewUsersHandler(fake)

	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"name":"Mara"}`))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected %d, got %d", http.StatusCreated, rec.Code)
	}
	if fake.lastName != "Mara" {
		t.Fatalf("unexpected name %q", fake.lastName)
	}

	var payload models.User
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Name != "Mara" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestUsersHandler_CreateEmptyName(t *testing.T) {
	handler := NewUsersHandler(&fakeUsersService{err: users.ErrNameRequired})

	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"name":""}`))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestUsersHandler_DeleteLastUser(t *testing.T) {
	handler := NewUsersHandler(&fakeUsersService{err: errors.New("cannot delete the last user")})

	req := httptest.NewRequest(http.MethodDelete, "/api/users/u1", nil)
	req = mux.SetURLVars(req, map[string]string{"userID": "u1"})
	rec := httptest.NewRecorder()

	handler.Delete(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestUsersHandler_DeleteUnknownUser(t *testing.T) {
	handler := NewUsersHandler(&fakeUsersService{err: users.ErrUserNotFound})

	req := httptest.NewRequest(http.MethodDelete, "/api/users/ghost", nil)
	req = mux.SetURLVars(req, map[string]string{"userID": "ghost"})
	rec := httptest.NewRecorder()

	handler.Delete(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestUsersHandler_SetPinTooShort(t *testing.T) {
	handler := NewUsersHandler(&fakeUsersService{err: users.ErrPinTooShort})

	req := httptest.NewRequest(http.MethodPut, "/api/users/u1/pin", strings.NewReader(`{"pin":"12"}`))
	req = mux.SetURLVars(req, map[string]string{"userID": "u1"})
	rec := httptest.NewRecorder()

	handler.SetPin(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestUsersHandler_VerifyPin(t *testing.T) {
	fake := &fakeUsersService{}
	handler := NewUsersHandler(fake)

	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/pin/verify", strings.NewReader(`{"pin":"4812"}`))
	req = mux.SetURLVars(req, map[string]string{"userID": "u1"})
	rec := httptest.NewRecorder()

	handler.VerifyPin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	if fake.lastPin != "4812" {
		t.Fatalf("unexpected pin %q", fake.lastPin)
	}

	var payload map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !payload["valid"] {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestUsersHandler_VerifyPinWrong(t *testing.T) {
	handler := NewUsersHandler(&fakeUsersService{verifyErr: users.ErrPinInvalid})

	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/pin/verify", strings.NewReader(`{"pin":"0000"}`))
	req = mux.SetURLVars(req, map[string]string{"userID": "u1"})
	rec := httptest.NewRecorder()

	handler.VerifyPin(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestUsersHandler_GeneratePin(t *testing.T) {
	fake := &fakeUsersService{user: models.User{ID: "u1", Name: "Mara"}}
	handler := NewUsersHandler(fake)

	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/pin/generate", nil)
	req = mux.SetURLVars(req, map[string]string{"userID": "u1"})
	rec := httptest.NewRecorder()

	handler.GeneratePin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}

	var payload struct {
		Pin  string      `json:"pin"`
		User models.User `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Pin) != 6 {
		t.Fatalf("expected 6 digit pin, got %q", payload.Pin)
	}
	if payload.Pin != fake.lastPin {
		t.Fatalf("returned pin %q was not the one stored %q", payload.Pin, fake.lastPin)
	}
}

func TestUsersHandler_SetColor(t *testing.T) {
	fake := &fakeUsersService{user: models.User{ID: "u1", Color: "#7c3aed"}}
	handler := NewUsersHandler(fake)

	req := httptest.NewRequest(http.MethodPut, "/api/users/u1/color", strings.NewReader(`{"color":"#7c3aed"}`))
	req = mux.SetURLVars(req, map[string]string{"userID": "u1"})
	rec := httptest.NewRecorder()

	handler.SetColor(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	if fake.lastColor != "#7c3aed" {
		t.Fatalf("unexpected color %q", fake.lastColor)
	}
}
