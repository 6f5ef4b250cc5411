package handlers

import (
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SetRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {

		// public routes here
		r.Get("/health", h.HealthHandler)
		r.Get("/cards", h.CardsHandler)

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Post("/admin/command", h.CommandHandler)
		})
	})
}

func (h *Handler) InitAuth(secret string) {
	h.tokenAuth = jwtauth.New("HS256", []byte(secret), nil)

	if log.IsLevelEnabled(log.DebugLevel) {
		expirationTime := time.Now().Add(7 * 24 * time.Hour).Unix()
		_, tokenString, _ := h.tokenAuth.Encode(map[string]interface{}{
			"service_id": "namecard-admin",
			"exp":        expirationTime,
		})
		log.Debugf("JWT for testing the admin route: %s", tokenString)
	}
}
