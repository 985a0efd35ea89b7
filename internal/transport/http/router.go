package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmw "github.com/cwrk-planet/meet-service/internal/transport/http/middleware"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(h *Handler, wsHandler http.Handler, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httpmw.WithRequestLogger)
	r.Use(httpmw.RequestLogger)
	r.Use(middlewareChi.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Websocket живёт дольше любого таймаута запроса — вне группы с Timeout.
	r.Get("/ws", wsHandler.ServeHTTP)

	r.Group(func(api chi.Router) {
		api.Use(middlewareChi.Timeout(cfg.RequestTimeout))

		api.Route("/api/rooms", func(rm chi.Router) {
			rm.Post("/", h.CreateRoom)
			rm.Get("/", h.ListRooms)
			rm.Post("/join", h.JoinRoom)
			rm.Post("/leave/{sessionId}", h.LeaveRoom)

			rm.Route("/{code}", func(rr chi.Router) {
				rr.Get("/", h.GetRoom)
				rr.Delete("/", h.DeleteRoom)
				rr.Get("/messages", h.GetChatHistory)
				rr.Post("/close", h.CloseRoom)
			})
		})
		api.Get("/api/webrtc/ice-servers", h.ICEServers)
	})

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	return r
}
