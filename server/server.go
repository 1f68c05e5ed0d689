// Package server wires the webhook HTTP surface.
package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/raincheckbot/raincheck/relay/orchestrator"
	"github.com/raincheckbot/raincheck/relay/webhook"
)

const maxBodyBytes = 1 << 20

type Config struct {
	Addr string `envconfig:"ADDR" split_words:"true" default:":8080"`
}

// TokenVerifier checks the GET handshake the platform performs when the
// webhook URL is registered.
type TokenVerifier interface {
	VerifyToken(mode, token string) bool
}

func NewRouter(orch *orchestrator.Orchestrator, verifier TokenVerifier) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	r.GET("/webhook", func(c *gin.Context) {
		mode := c.Query("hub.mode")
		token := c.Query("hub.verify_token")
		challenge := c.Query("hub.challenge")

		if verifier.VerifyToken(mode, token) {
			c.String(http.StatusOK, challenge)
			return
		}
		c.String(http.StatusForbidden, "Forbidden")
	})

	r.POST("/webhook", func(c *gin.Context) {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			// The platform only cares that we answered; it retries on non-2xx.
			c.String(http.StatusOK, "OK")
			return
		}

		ev, err := webhook.ParseEvent(raw)
		if err != nil {
			log.Warn().Err(err).Msg("unparseable webhook payload")
			c.String(http.StatusOK, "OK")
			return
		}

		ack := orch.Handle(c.Request.Context(), ev)
		log.Debug().
			Str("outcome", string(ack.Outcome)).
			Strs("reasons", ack.Reasons).
			Msg("turn acknowledged")

		c.String(http.StatusOK, "OK")
	})

	return r
}
