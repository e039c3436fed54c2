/**
 * @description
 * This file contains the authentication middleware for the HTTP router. It
 * validates HS256 bearer tokens issued by this service and injects the
 * verified caller identity (email, mobile, role) into the request context,
 * so handlers and the transfer engine work with a verified identity rather
 * than client-supplied fields.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	authEmailKey  contextKey = "authEmail"
	authMobileKey contextKey = "authMobile"
	authRoleKey   contextKey = "authRole"
)

// AuthMiddleware validates bearer tokens and injects the caller identity
// into the request context.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(30*time.Second))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			email, _ := claims["sub"].(string)
			if email == "" {
				http.Error(w, "Caller identity not found in token", http.StatusUnauthorized)
				return
			}
			mobile, _ := claims["mobile"].(string)
			role, _ := claims["role"].(string)

			ctx := context.WithValue(r.Context(), authEmailKey, email)
			ctx = context.WithValue(ctx, authMobileKey, mobile)
			ctx = context.WithValue(ctx, authRoleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAuthenticatedEmail retrieves the verified caller email from the request context.
func GetAuthenticatedEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(authEmailKey).(string)
	return email, ok
}

// GetAuthenticatedMobile retrieves the caller's mobile claim from the request context.
func GetAuthenticatedMobile(ctx context.Context) (string, bool) {
	mobile, ok := ctx.Value(authMobileKey).(string)
	return mobile, ok
}

// GetAuthenticatedRole retrieves the caller's role claim from the request context.
func GetAuthenticatedRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(authRoleKey).(string)
	return role, ok
}
