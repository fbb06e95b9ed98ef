package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/yarago/auth-service/internal/core/ports"
)

// AdminHandler exposes account administration to ROLE_ADMIN callers.
type AdminHandler struct {
	service ports.AdminService
}

func NewAdminHandler(service ports.AdminService) *AdminHandler {
	return &AdminHandler{service: service}
}

// GetUser handles GET /api/v1/admin/users/:id.
//
// @Summary      Get a user
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  envelope{data=userResponse}
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /api/v1/admin/users/{id} [get]
func (h *AdminHandler) GetUser(c echo.Context) error {
	info, err := h.service.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, success("user found", toUserResponse(*info)))
}

// Unlock handles POST /api/v1/admin/users/:id/unlock.
//
// @Summary      Unlock an account
// @Tags         admin
// @Security     BearerAuth
// @Param        id   path  string  true  "User ID"
// @Success      204
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /api/v1/admin/users/{id}/unlock [post]
func (h *AdminHandler) Unlock(c echo.Context) error {
	if err := h.service.UnlockAccount(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SetStatus handles PUT /api/v1/admin/users/:id/status.
//
// @Summary      Activate or deactivate an account
// @Tags         admin
// @Accept       json
// @Security     BearerAuth
// @Param        id    path  string         true  "User ID"
// @Param        body  body  statusRequest  true  "Desired status"
// @Success      204
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      422  {object}  errorResponse
// @Router       /api/v1/admin/users/{id}/status [put]
func (h *AdminHandler) SetStatus(c echo.Context) error {
	var req statusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.service.SetActive(c.Request().Context(), c.Param("id"), *req.Active); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ResetPassword handles POST /api/v1/admin/users/:id/password.
//
// @Summary      Reset a password
// @Tags         admin
// @Accept       json
// @Security     BearerAuth
// @Param        id    path  string                true  "User ID"
// @Param        body  body  passwordResetRequest  true  "New password"
// @Success      204
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      422  {object}  errorResponse
// @Router       /api/v1/admin/users/{id}/password [post]
func (h *AdminHandler) ResetPassword(c echo.Context) error {
	var req passwordResetRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.service.ResetPassword(c.Request().Context(), c.Param("id"), req.Password); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListRoles handles GET /api/v1/admin/roles.
//
// @Summary      List roles
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  envelope{data=[]roleResponse}
// @Failure      403  {object}  errorResponse
// @Router       /api/v1/admin/roles [get]
func (h *AdminHandler) ListRoles(c echo.Context) error {
	roles, err := h.service.ListRoles(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, success("roles", toRoleResponses(roles)))
}
