package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
)

type stubAdminService struct {
	users    map[string]ports.UserInfo
	active   map[string]bool
	unlocked []string
	password map[string]string
}

func newStubAdmin() *stubAdminService {
	return &stubAdminService{
		users:    map[string]ports.UserInfo{"u-1": {ID: "u-1", Username: "alice", AccountLocked: true}},
		active:   map[string]bool{},
		password: map[string]string{},
	}
}

func (s *stubAdminService) GetUser(ctx context.Context, userID string) (*ports.UserInfo, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (s *stubAdminService) UnlockAccount(ctx context.Context, userID string) error {
	if _, ok := s.users[userID]; !ok {
		return domain.ErrUserNotFound
	}
	s.unlocked = append(s.unlocked, userID)
	return nil
}

func (s *stubAdminService) SetActive(ctx context.Context, userID string, active bool) error {
	if _, ok := s.users[userID]; !ok {
		return domain.ErrUserNotFound
	}
	s.active[userID] = active
	return nil
}

func (s *stubAdminService) ResetPassword(ctx context.Context, userID, newPassword string) error {
	if _, ok := s.users[userID]; !ok {
		return domain.ErrUserNotFound
	}
	s.password[userID] = newPassword
	return nil
}

func (s *stubAdminService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return domain.SeedRoles(), nil
}

func TestAdminHandler_GetUser(t *testing.T) {
	h := NewAdminHandler(newStubAdmin())

	c, rec := newContext(http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("u-1")
	if err := h.GetUser(c); err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	data, _ := decode(t, rec)["data"].(map[string]any)
	if data["username"] != "alice" || data["account_locked"] != true {
		t.Fatalf("unexpected payload: %+v", data)
	}

	c, _ = newContext(http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("ghost")
	if err := h.GetUser(c); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAdminHandler_Mutations(t *testing.T) {
	stub := newStubAdmin()
	h := NewAdminHandler(stub)

	c, rec := newContext(http.MethodPost, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("u-1")
	if err := h.Unlock(c); err != nil || rec.Code != http.StatusNoContent {
		t.Fatalf("Unlock: err=%v code=%d", err, rec.Code)
	}
	if len(stub.unlocked) != 1 {
		t.Fatalf("expected unlock call")
	}

	c, rec = newContext(http.MethodPut, "/", `{"active":false}`)
	c.SetParamNames("id")
	c.SetParamValues("u-1")
	if err := h.SetStatus(c); err != nil || rec.Code != http.StatusNoContent {
		t.Fatalf("SetStatus: err=%v code=%d", err, rec.Code)
	}
	if active, ok := stub.active["u-1"]; !ok || active {
		t.Fatalf("expected u-1 deactivated")
	}

	c, rec = newContext(http.MethodPost, "/", `{"password":"new-password"}`)
	c.SetParamNames("id")
	c.SetParamValues("u-1")
	if err := h.ResetPassword(c); err != nil || rec.Code != http.StatusNoContent {
		t.Fatalf("ResetPassword: err=%v code=%d", err, rec.Code)
	}
	if stub.password["u-1"] != "new-password" {
		t.Fatalf("password not forwarded")
	}
}

func TestAdminHandler_SetStatusRequiresField(t *testing.T) {
	h := NewAdminHandler(newStubAdmin())

	c, _ := newContext(http.MethodPut, "/", `{}`)
	c.SetParamNames("id")
	c.SetParamValues("u-1")
	if code := httpCode(t, h.SetStatus(c)); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}
}

func TestAdminHandler_ListRoles(t *testing.T) {
	h := NewAdminHandler(newStubAdmin())

	c, rec := newContext(http.MethodGet, "/", "")
	if err := h.ListRoles(c); err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	roles, _ := decode(t, rec)["data"].([]any)
	if len(roles) != len(domain.SeedRoles()) {
		t.Fatalf("expected %d roles, got %d", len(domain.SeedRoles()), len(roles))
	}
}
