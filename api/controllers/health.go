package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/edulink-id/studyfair-backend/api/responses"
	"github.com/edulink-id/studyfair-backend/pkg/config"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
)

const readyCheckTimeout = 2 * time.Second

type pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-StudyFair-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-StudyFair-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		checks := map[string]pinger{
			"database": dbP,
			"redis":    redisP,
		}
		for name, p := range checks {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" not ready").
						WithDetails(map[string]any{"check": name}))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
