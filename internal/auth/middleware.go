package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const operatorKey = "operator"

// Middleware admits requests carrying the admin secret in X-Admin-Secret, or
// a Bearer credential that is either the secret or a token from IssueToken.
func (s *Service) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.CheckSecret(c.Request().Header.Get("X-Admin-Secret")) {
			c.Set(operatorKey, "admin-secret")
			return next(c)
		}

		authHeader := c.Request().Header.Get("Authorization")
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			credential := strings.TrimSpace(authHeader[7:])
			if s.CheckSecret(credential) {
				c.Set(operatorKey, "admin-secret")
				return next(c)
			}
			if subject, err := s.VerifyToken(credential); err == nil {
				c.Set(operatorKey, subject)
				return next(c)
			}
		}

		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

// OperatorFromContext returns who authenticated the request.
func OperatorFromContext(c echo.Context) (string, error) {
	op, ok := c.Get(operatorKey).(string)
	if !ok || op == "" {
		return "", errors.New("operator not found in context")
	}
	return op, nil
}
