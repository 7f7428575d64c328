package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthOption configura o middleware de autenticação. APIKey vazio desliga a
// chave estática e só JWT é aceito.
type AuthOption struct {
	JWTSecret string
	APIKey    string
}

func Auth(secret string) gin.HandlerFunc {
	return AuthWithOptions(AuthOption{JWTSecret: secret})
}

func AuthWithOptions(opts AuthOption) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractBearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token ausente"})
			return
		}

		if opts.APIKey != "" && subtle.ConstantTimeCompare([]byte(tokenString), []byte(opts.APIKey)) == 1 {
			c.Set("authType", "api_key")
			c.Next()
			return
		}

		if opts.JWTSecret != "" {
			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
				return []byte(opts.JWTSecret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err == nil && token.Valid {
				if sub, err := token.Claims.GetSubject(); err == nil && sub != "" {
					c.Set("subject", sub)
				}
				c.Set("authType", "jwt")
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token inválido"})
	}
}
