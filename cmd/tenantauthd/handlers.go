package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/internal/pgstore"
	"github.com/MrEthical07/tenantauth/middleware"
)

const maxBodyBytes = 1 << 16

type api struct {
	engine *tenantauth.Engine
	guard  *middleware.Pipeline
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

type meResponse struct {
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Email     string    `json:"email"`
	SessionID string    `json:"session_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	Plan      string    `json:"plan,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return tenantauth.ValidationError("malformed JSON body")
	}
	return nil
}

func (a *api) login(w http.ResponseWriter, r *http.Request) error {
	var body loginBody
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if strings.TrimSpace(body.Email) == "" || body.Password == "" {
		return tenantauth.ValidationError("email and password are required")
	}
	tx, _ := middleware.TxFromContext(r.Context())
	pair, err := a.engine.Login(r.Context(), tx, tenantauth.LoginRequest{
		Email:     body.Email,
		Password:  body.Password,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, pair)
	return nil
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) error {
	var body refreshBody
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if body.RefreshToken == "" {
		return tenantauth.ValidationError("refresh_token is required")
	}
	tx, _ := middleware.TxFromContext(r.Context())
	pair, err := a.engine.Refresh(r.Context(), tx, body.RefreshToken)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, pair)
	return nil
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) error {
	claims, ok := tenantauth.ClaimsFromContext(r.Context())
	if !ok {
		return tenantauth.ErrInvalidToken
	}
	tx, _ := middleware.TxFromContext(r.Context())
	if err := a.engine.Logout(r.Context(), tx, claims); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (a *api) me(w http.ResponseWriter, r *http.Request) error {
	claims, ok := tenantauth.ClaimsFromContext(r.Context())
	if !ok {
		return tenantauth.ErrInvalidToken
	}
	tx, _ := middleware.TxFromContext(r.Context())
	user, err := pgstore.New(tx).UserByID(r.Context(), claims.Subject)
	if errors.Is(err, pgstore.ErrNotFound) {
		return tenantauth.ErrInvalidToken
	}
	if err != nil {
		return err
	}
	resp := meResponse{
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: claims.SessionID,
		Role:      claims.Role,
		Roles:     claims.Roles,
		Plan:      claims.Plan,
		ExpiresAt: claims.ExpiresAt.UTC(),
	}
	if !claims.Tenant.IsGlobal() {
		resp.TenantID = claims.Tenant.String()
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
	return nil
}
