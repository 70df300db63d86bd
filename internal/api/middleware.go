package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Ключи gin.Context, которые заполняет jwtMiddleware
const (
	ctxUsername = "username"
	ctxIsAdmin  = "is_admin"
)

// bearerToken достаёт токен из заголовка "Authorization: Bearer <token>"
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// jwtMiddleware проверяет JWT токен в заголовке Authorization
func (rs *RestServer) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			fail(c, http.StatusUnauthorized, "Отсутствует токен авторизации")
			return
		}
		token, ok := bearerToken(header)
		if !ok {
			fail(c, http.StatusUnauthorized, "Неверный формат токена")
			return
		}
		claims, err := rs.tokens.Validate(token)
		if err != nil {
			fail(c, http.StatusUnauthorized, "Недействительный токен")
			return
		}

		c.Set(ctxUsername, claims.Username)
		c.Set(ctxIsAdmin, claims.IsAdmin)
		c.Next()
	}
}

// adminMiddleware пропускает только администраторов
func (rs *RestServer) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ctxIsAdmin) {
			fail(c, http.StatusForbidden, "Недостаточно прав доступа")
			return
		}
		c.Next()
	}
}
