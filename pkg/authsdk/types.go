package authsdk

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ============================================================================
// Request Types
// ============================================================================

// LoginRequest is the body of POST {authBase}/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ============================================================================
// Response Types
// ============================================================================

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	// AccessToken is the short lived bearer token for API calls
	AccessToken string `json:"access_token"`

	// RefreshToken is the longer lived token used only against /refresh
	RefreshToken string `json:"refresh_token,omitempty"`

	// User is a snapshot of the authenticated user's profile
	User *Profile `json:"user"`

	// Message is the backend's human readable status, if any
	Message string `json:"message,omitempty"`
}

// RefreshResponse is returned by a successful refresh. The backend may or
// may not rotate the refresh token.
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ValidateResponse is returned by GET {authBase}/validate with status 200.
type ValidateResponse struct {
	Valid bool     `json:"valid"`
	User  *Profile `json:"user,omitempty"`
}

// ============================================================================
// User Types
// ============================================================================

// Profile is the denormalised user snapshot the panel keeps next to the
// tokens. It is replaced wholesale, never merged.
type Profile struct {
	ID          ID       `json:"id"`
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`

	// Optional fields some backend versions include
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsActive  *bool  `json:"is_active,omitempty"`
}

// HasPermission reports whether the profile lists perm.
func (p *Profile) HasPermission(perm string) bool {
	if p == nil {
		return false
	}
	for _, have := range p.Permissions {
		if have == perm {
			return true
		}
	}
	return false
}

// ID is a user identifier. The backend emits integers while tokens carry
// strings, so both forms decode into the string representation.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("authsdk: invalid id %s", string(b))
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse covers the error payload shapes the backend produces:
// flask-smorest ({"code","status","message"}), flask-jwt-extended ({"msg"})
// and the occasional {"error","error_description"} or {"detail"}.
type ErrorResponse struct {
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Detail           string `json:"detail"`
}

// text returns the most specific human readable message in the payload.
func (e ErrorResponse) text() string {
	for _, s := range []string{e.Message, e.Msg, e.ErrorDescription, e.Error, e.Detail} {
		if s != "" {
			return s
		}
	}
	return ""
}
