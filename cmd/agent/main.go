package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/saransh1220/tableside-sync/internal/gateway"
	"github.com/saransh1220/tableside-sync/internal/gateway/middleware"
	"github.com/saransh1220/tableside-sync/internal/modules/notification"
	"github.com/saransh1220/tableside-sync/internal/modules/order"
	"github.com/saransh1220/tableside-sync/internal/shared/httpapi"
	"github.com/saransh1220/tableside-sync/internal/shared/infrastructure/config"
	"github.com/saransh1220/tableside-sync/internal/shared/infrastructure/database"
	"github.com/saransh1220/tableside-sync/internal/shared/realtime"
	"github.com/saransh1220/tableside-sync/internal/shared/utils"
)

func main() {
	issueFor := flag.String("issue-token", "", "print a local API token for this subject and exit")
	role := flag.String("role", "display", "role claim for -issue-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *issueFor != "" {
		token, err := issueToken(cfg, *issueFor, *role)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Agent stopped: %v", err)
	}
}

func issueToken(cfg config.Config, subject, role string) (string, error) {
	if cfg.Auth.JWTSecret == "" {
		return "", errors.New("JWT_SECRET is not set, the local API is open")
	}
	return utils.GenerateToken(subject, role, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
}

func run(ctx context.Context, cfg config.Config) error {
	client, err := httpapi.NewClient(httpapi.Options{
		BaseURL:       cfg.Backend.URL,
		Timeout:       cfg.Backend.RequestTimeout,
		SessionCookie: cfg.Backend.SessionCookie,
	})
	if err != nil {
		return err
	}

	userID, err := resolveUserID(ctx, client, cfg.Backend)
	if err != nil {
		return err
	}
	log.Printf("Syncing as user %s", userID)

	transport, closeTransport, err := newTransport(ctx, cfg, client)
	if err != nil {
		return err
	}
	defer closeTransport()

	hub := realtime.NewHub()
	go hub.Run()
	defer hub.Stop()

	// Initialize Modules
	notificationModule := notification.NewModule(client, transport, cfg.Feeds.NotificationPageSize)
	defer notificationModule.Shutdown()
	orderModule := order.NewModule(client, transport, cfg.Feeds.OrderPageSize)
	defer orderModule.Shutdown()

	defer notificationModule.Broadcast(hub)()
	defer orderModule.Broadcast(hub)()

	if err := notificationModule.Start(ctx, userID); err != nil {
		return fmt.Errorf("starting notifications: %w", err)
	}
	if err := orderModule.Start(ctx); err != nil {
		return fmt.Errorf("starting orders: %w", err)
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret)
	if !authMiddleware.Enabled() {
		log.Println("JWT_SECRET not set, local API is unauthenticated")
	}

	handler := gateway.SetupRoutes(gateway.RouterConfig{
		NotificationHandler: notificationModule.HTTPHandler(),
		OrderHandler:        orderModule.HTTPHandler(),
		Hub:                 hub,
		AuthMiddleware:      authMiddleware,
		AllowedOrigins:      cfg.Server.Origins(),
	})

	return gateway.NewServer(cfg.Server.Port, handler).Run(ctx)
}

// resolveUserID logs in when credentials are configured and otherwise reuses
// the session cookie. An explicit user id wins over the profile id.
func resolveUserID(ctx context.Context, client *httpapi.Client, cfg config.BackendConfig) (string, error) {
	var (
		profile *httpapi.Profile
		err     error
	)
	if cfg.Username != "" {
		profile, err = client.Login(ctx, cfg.Username, cfg.Password)
	} else {
		profile, err = client.Me(ctx)
	}

	if cfg.UserID != "" {
		if err != nil {
			log.Printf("Could not fetch profile, using configured user id: %v", err)
		}
		return cfg.UserID, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolving user: %w", err)
	}
	if profile.ID == 0 {
		return "", errors.New("backend returned a profile without an id")
	}
	return strconv.FormatInt(profile.ID, 10), nil
}

func newTransport(ctx context.Context, cfg config.Config, client *httpapi.Client) (realtime.Transport, func(), error) {
	switch cfg.Realtime.Transport {
	case config.TransportRedis:
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Realtime via Redis at %s", cfg.Redis.Addr())
		t := realtime.NewRedisTransport(rdb)
		return t, func() {
			t.Close()
			rdb.Close()
		}, nil
	default:
		stomp := realtime.NewStompClient(realtime.StompConfig{
			URL:            cfg.Realtime.URL,
			Header:         client.SessionHeader(),
			ReconnectDelay: cfg.Realtime.ReconnectDelay,
			HeartBeat:      cfg.Realtime.HeartBeat,
		})
		go stomp.Run()
		log.Printf("Realtime via STOMP at %s", cfg.Realtime.URL)
		return stomp, stomp.Stop, nil
	}
}
