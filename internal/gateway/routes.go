package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/saransh1220/tableside-sync/internal/gateway/middleware"
	notification_http "github.com/saransh1220/tableside-sync/internal/modules/notification/interfaces/http"
	order_http "github.com/saransh1220/tableside-sync/internal/modules/order/interfaces/http"
	"github.com/saransh1220/tableside-sync/internal/shared/realtime"
	"github.com/saransh1220/tableside-sync/internal/shared/utils"
)

// RouterConfig holds all the handlers and middleware needed for routing
type RouterConfig struct {
	NotificationHandler *notification_http.NotificationHandler
	OrderHandler        *order_http.OrderHandler
	Hub                 *realtime.Hub
	AuthMiddleware      *middleware.AuthMiddleWare
	AllowedOrigins      []string
}

// SetupRoutes creates and configures all application routes
func SetupRoutes(config RouterConfig) http.Handler {
	var guard func(http.Handler) http.Handler
	if config.AuthMiddleware != nil {
		guard = config.AuthMiddleware.RequireAuth
	}
	router := NewRouter(guard)

	// Health Check
	router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus Metrics Endpoint
	router.Handle("GET /metrics", promhttp.Handler())

	// Notification Routes
	if h := config.NotificationHandler; h != nil {
		router.Protect("GET /notifications", h.ListNotifications)
		router.Protect("GET /notifications/unread-count", h.UnreadCount)
		router.Protect("POST /notifications/page/{page}", h.GoToPage)
		router.Protect("POST /notifications/jump", h.JumpToPage)
		router.Protect("POST /notifications/refresh", h.Refresh)
		router.Protect("PATCH /notifications/{id}/read", h.MarkAsRead)
		router.Protect("PATCH /notifications/read-all", h.MarkAllAsRead)
	}

	// Order Routes
	if h := config.OrderHandler; h != nil {
		router.Protect("GET /orders", h.ListOrders)
		router.Protect("POST /orders/page/{page}", h.GoToPage)
		router.Protect("POST /orders/jump", h.JumpToPage)
		router.Protect("POST /orders/refresh", h.Refresh)
		router.Protect("PATCH /orders/{id}/status", h.UpdateStatus)
		router.Protect("POST /orders/{id}/reorder", h.Reorder)
	}

	// Live stream of store changes
	if hub := config.Hub; hub != nil {
		router.Protect("GET /ws", func(w http.ResponseWriter, r *http.Request) {
			channel := r.URL.Query().Get("channel")
			if !realtime.KnownChannel(channel) {
				utils.WriteError(w, http.StatusBadRequest, "unknown channel", nil)
				return
			}
			realtime.ServeWs(hub, w, r, channel)
		})
	}

	var handler http.Handler = router.Mux()
	handler = middleware.PrometheusMiddleware(handler)
	if len(config.AllowedOrigins) > 0 {
		handler = middleware.CORSMiddleware(handler, config.AllowedOrigins)
	}
	return handler
}
