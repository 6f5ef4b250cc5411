package routes

import (
	"time"

	"github.com/avvvet/namecard-services/internal/socketsvc/handlers"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

var tokenAuth *jwtauth.JWTAuth

func SetRoutes(r chi.Router, h *handlers.Handler) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.HealthHandler)

		// Secure routes, browsers cannot set headers on a websocket so
		// the token may also come as ?jwt=
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verify(tokenAuth, jwtauth.TokenFromQuery, jwtauth.TokenFromHeader))
			r.Use(jwtauth.Authenticator)

			r.Get("/ws", h.HandleWebSocket)
		})
	})
}

func InitAuth(secret string) *jwtauth.JWTAuth {
	tokenAuth = jwtauth.New("HS256", []byte(secret), nil)

	if log.IsLevelEnabled(log.DebugLevel) {
		expirationTime := time.Now().Add(7 * 24 * time.Hour).Unix()
		_, tokenString, _ := tokenAuth.Encode(map[string]interface{}{
			"user_id":     "debug-user",
			"name":        "debug",
			"permissions": []string{"namecards.player.set"},
			"exp":         expirationTime,
		})
		log.Debugf("JWT for testing the websocket: %s", tokenString)
	}
	return tokenAuth
}
