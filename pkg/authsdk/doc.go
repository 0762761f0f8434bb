/*
Package authsdk provides a client for the panel backend's auth endpoints.

# Overview

The backend mounts four endpoints under an auth base path (by default
/api/auth):

	POST {authBase}/login     {"username","password"} -> tokens + user
	POST {authBase}/refresh   Authorization: Bearer <refresh token> -> {"access_token"}
	GET  {authBase}/validate  Authorization: Bearer <access token> -> {"valid","user"}
	POST {authBase}/logout    Authorization: Bearer <access token>

SDKClient wraps those calls. It keeps no state of its own; session
bookkeeping (where tokens live, when to refresh) belongs to the caller.

	client := authsdk.NewSDKClient("https://panel.example.com")

	login, err := client.Login(ctx, "admin", "secret")
	if err != nil {
		var apiErr *authsdk.APIError
		if errors.As(err, &apiErr) {
			fmt.Println(apiErr.Message) // e.g. "Invalid credentials"
		}
		return err
	}

	refreshed, err := client.Refresh(ctx, login.RefreshToken)

# Errors

Non-2xx responses become *APIError carrying the backend's message. Several
payload shapes are understood ({"message"}, {"msg"}, {"error_description"},
{"error"}, {"detail"}); anything else gets a generic message naming the
operation and status. Failures to reach the backend at all are returned as
*NetworkError so callers can tell "the server said no" from "no server".
*/
package authsdk
