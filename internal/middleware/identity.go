package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated user id, or 0 for anonymous requests.
func UserID(c echo.Context) uint64 {
	id, _ := c.Get(CtxUserID).(uint64)
	return id
}

// Role returns the authenticated role, or "" for anonymous requests.
func Role(c echo.Context) string {
	r, _ := c.Get(CtxRole).(string)
	return r
}

// Username returns the display name carried by the token.
func Username(c echo.Context) string {
	n, _ := c.Get(CtxUsername).(string)
	return n
}

// userKey renders the user id for redis keys; anonymous callers share
// "anon".
func userKey(c echo.Context) string {
	if id := UserID(c); id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
