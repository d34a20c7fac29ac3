// Package middleware holds fiber middleware for the public API.
package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"glimpse/internal/identity"
	"glimpse/internal/location"
)

// VisitorContext mints the visitor and session cookies and exposes the
// resolved ids plus the client IP on the request context. The visitor
// cookie is long-lived and never regenerated once set; the session cookie
// expires with the session TTL.
func VisitorContext(appName string, sessionTTL time.Duration) fiber.Handler {
	visitorCookie := appName + "_visitor"
	sessionCookie := appName + "_session"

	return func(c *fiber.Ctx) error {
		now := time.Now()

		visitor := c.Cookies(visitorCookie)
		if visitor == "" {
			visitor = identity.NewID("visitor", now)
			c.Cookie(&fiber.Cookie{
				Name:     visitorCookie,
				Value:    visitor,
				Expires:  now.AddDate(1, 0, 0),
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		session := c.Cookies(sessionCookie)
		if session == "" {
			session = identity.NewID("session", now)
			c.Cookie(&fiber.Cookie{
				Name:     sessionCookie,
				Value:    session,
				Expires:  now.Add(sessionTTL),
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		ctx := identity.WithIDs(c.UserContext(), identity.IDs{Visitor: visitor, Session: session})
		ctx = location.WithClientIP(ctx, c.IP())
		c.SetUserContext(ctx)

		return c.Next()
	}
}
