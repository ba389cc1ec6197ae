package middleware

// identity.go holds the context key shared by the auth middleware and the
// handlers.  JWTAuth stores the caller as a model.Actor; Actor reads it
// back.

import (
	"github.com/labstack/echo/v4"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

const actorKey = "actor"

// SetActor stores a in the request context.
func SetActor(c echo.Context, a model.Actor) {
	c.Set(actorKey, a)
}

// Actor returns the authenticated caller.  ok is false when no token was
// verified for this request.
func Actor(c echo.Context) (model.Actor, bool) {
	a, ok := c.Get(actorKey).(model.Actor)
	return a, ok
}

// userID identifies the caller for rate limiting; "guest" when anonymous.
func userID(c echo.Context) string {
	if a, ok := Actor(c); ok && a.ID != 0 {
		return formatID(a.ID)
	}
	return "guest"
}
