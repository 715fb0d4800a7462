// Package server wires the sync agent together: engine, gate, schedule
// cache, notifier and the HTTP surface over them.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/LOCAL2/itshard-items/internal/backup"
	"github.com/LOCAL2/itshard-items/internal/bus"
	"github.com/LOCAL2/itshard-items/internal/config"
	"github.com/LOCAL2/itshard-items/internal/gate"
	"github.com/LOCAL2/itshard-items/internal/handler"
	"github.com/LOCAL2/itshard-items/internal/middleware"
	"github.com/LOCAL2/itshard-items/internal/notify"
	"github.com/LOCAL2/itshard-items/internal/push"
	"github.com/LOCAL2/itshard-items/internal/remote"
	"github.com/LOCAL2/itshard-items/internal/schedule"
	"github.com/LOCAL2/itshard-items/internal/store"
	"github.com/LOCAL2/itshard-items/internal/sync"
	ws "github.com/LOCAL2/itshard-items/internal/websocket"
)

type Server struct {
	hub    *ws.Hub
	broker *bus.Broker

	engine        *sync.Engine
	gate          *gate.Gate
	cache         *schedule.Cache
	notifier      *notify.Notifier
	backupManager *backup.Manager

	memberH   *handler.MemberHandler
	itemH     *handler.ItemHandler
	scheduleH *handler.ScheduleHandler
	managerH  *handler.ManagerHandler
	settingsH *handler.SettingsHandler
	statsH    *handler.StatsHandler
	backupH   *handler.BackupHandler
	pushH     *handler.PushHandler

	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	broker := bus.NewBroker()

	deviceStore := store.NewDeviceStore(db)
	scheduleStore := store.NewScheduleStore(db)
	pushStore := store.NewPushStore(db)

	remoteClient := remote.NewClient(remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		APIKey:  cfg.Remote.APIKey,
	})

	notifier := notify.New(notify.Config{
		WebhookURL: cfg.Discord.WebhookURL,
		ThreadID:   cfg.Discord.ThreadID,
		EmbedColor: cfg.Discord.EmbedColor,
		Title:      cfg.Discord.Title,
	}, deviceStore, logger.With("component", "notify"))

	var pushSvc *push.Service
	var broadcaster *push.Broadcaster
	var pushH *handler.PushHandler
	if cfg.Push.VAPIDPublicKey != "" && cfg.Push.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(push.Config{
			VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
			Subscriber:      cfg.Push.Subscriber,
		})
		broadcaster = push.NewBroadcaster(pushSvc, pushStore, deviceStore, logger.With("component", "push"))
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
	}

	var engine *sync.Engine
	engine = sync.NewEngine(remoteClient, logger.With("component", "sync"),
		sync.WithNotices(func(n sync.Notice) {
			hub.Broadcast(ws.Message{
				Type:   "change_notice",
				Entity: n.Collection,
				Action: "notice",
				Extra:  map[string]any{"summary": n.Summary},
			})
			if broadcaster != nil {
				broadcaster.Broadcast(n.Collection, n.Summary)
			}
		}),
		sync.WithOnApply(func(membersChanged, itemsChanged bool) {
			if membersChanged {
				hub.Broadcast(ws.NewMessage(ws.EntityMember, "refreshed", "", nil))
			}
			if itemsChanged {
				hub.Broadcast(ws.NewMessage(ws.EntityItem, "refreshed", "", nil))
				notifier.Sync(engine.Items())
			}
		}),
	)

	// Polling follows the connected viewers: the engine pauses when the last
	// websocket client drops and resumes when one connects.
	hub.SetOnClientCount(func(count int) {
		engine.SetVisible(count > 0)
	})

	g := gate.New(cfg.ManagerPIN, remoteClient, deviceStore, broker, logger.With("component", "gate"))
	cache := schedule.NewCache(remoteClient, scheduleStore, broker, logger.With("component", "schedule"))
	backupMgr := backup.NewManager(backup.Config{
		Dir:       cfg.Backup.Dir,
		KeepCount: cfg.Backup.KeepCount,
		S3: backup.S3Config{
			Endpoint:  cfg.Backup.S3.Endpoint,
			Bucket:    cfg.Backup.S3.Bucket,
			Region:    cfg.Backup.S3.Region,
			AccessKey: cfg.Backup.S3.AccessKey,
			SecretKey: cfg.Backup.S3.SecretKey,
		},
	}, remoteClient, logger.With("component", "backup"))

	return &Server{
		hub:           hub,
		broker:        broker,
		engine:        engine,
		gate:          g,
		cache:         cache,
		notifier:      notifier,
		backupManager: backupMgr,
		memberH:       handler.NewMemberHandler(remoteClient, engine, hub, cfg.Locale, logger.With("component", "member")),
		itemH:         handler.NewItemHandler(remoteClient, engine, hub, notifier, logger.With("component", "item")),
		scheduleH:     handler.NewScheduleHandler(cache, hub, logger.With("component", "schedule_handler")),
		managerH:      handler.NewManagerHandler(g, hub, logger.With("component", "manager")),
		settingsH:     handler.NewSettingsHandler(deviceStore, broker, hub, logger.With("component", "settings")),
		statsH:        handler.NewStatsHandler(engine, hub),
		backupH:       handler.NewBackupHandler(backupMgr, logger.With("component", "backup_handler")),
		pushH:         pushH,
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}
}

// Start launches the background loops: the poll engine, the lock resync and
// an initial schedule hydration.
func (s *Server) Start(ctx context.Context) {
	s.engine.Start(ctx)
	s.gate.StartResync(ctx)

	go func() {
		hydrateCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if _, err := s.cache.Hydrate(hydrateCtx); err != nil {
			s.logger.Warn("initial schedule hydration failed", "error", err)
		}
	}()
}

// Stop joins the background loops.
func (s *Server) Stop() {
	s.engine.Stop()
	s.gate.StopResync()
	s.notifier.Close()
}

// RateLimiter returns the limiter for periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public read surface
	mux.HandleFunc("GET /api/members", s.memberH.List)
	mux.HandleFunc("GET /api/members/search", s.memberH.Search)
	mux.HandleFunc("GET /api/items", s.itemH.List)
	mux.HandleFunc("GET /api/items/search", s.itemH.Search)
	mux.HandleFunc("GET /api/schedules", s.scheduleH.List)
	mux.HandleFunc("GET /api/stats", s.statsH.Stats)
	mux.HandleFunc("GET /api/status", s.statsH.Status)
	mux.HandleFunc("GET /api/settings", s.settingsH.Get)
	mux.HandleFunc("PUT /api/settings", s.settingsH.Update)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
	mux.HandleFunc("GET /health", s.healthHandler)

	// Gate surface: PIN submission is rate limited by client IP.
	mux.HandleFunc("POST /api/manager/pin", s.rateLimitedHandler(s.managerH.SubmitPIN))
	mux.HandleFunc("GET /api/manager/session", s.managerH.Session)
	mux.HandleFunc("POST /api/manager/logout", s.managerH.Logout)
	mux.HandleFunc("POST /api/manager/focus", s.managerH.Focus)

	if s.pushH != nil {
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("POST /api/push/unsubscribe", s.pushH.Unsubscribe)
	}

	// Manager surface, session guarded.
	managerMux := http.NewServeMux()
	managerMux.HandleFunc("POST /api/members", s.memberH.Create)
	managerMux.HandleFunc("PUT /api/members/{id}", s.memberH.Update)
	managerMux.HandleFunc("PATCH /api/members/{id}/status", s.memberH.UpdateStatus)
	managerMux.HandleFunc("DELETE /api/members/{id}", s.memberH.Delete)

	managerMux.HandleFunc("POST /api/items", s.itemH.Create)
	managerMux.HandleFunc("PUT /api/items/{id}", s.itemH.Update)
	managerMux.HandleFunc("DELETE /api/items/{id}", s.itemH.Delete)
	managerMux.HandleFunc("PUT /api/items/reorder", s.itemH.Reorder)

	managerMux.HandleFunc("POST /api/schedules/hydrate", s.scheduleH.Hydrate)
	managerMux.HandleFunc("PUT /api/schedules/{id}", s.scheduleH.Set)
	managerMux.HandleFunc("DELETE /api/schedules/{id}", s.scheduleH.Remove)
	managerMux.HandleFunc("POST /api/schedules/batch", s.scheduleH.SetMany)
	managerMux.HandleFunc("POST /api/schedules/batch-delete", s.scheduleH.RemoveMany)

	// Manual polling override, normally driven by websocket client count.
	managerMux.HandleFunc("POST /api/visibility", s.statsH.Visibility)

	managerMux.HandleFunc("POST /api/backup/run", s.backupH.Run)
	managerMux.HandleFunc("GET /api/backup", s.backupH.List)
	managerMux.HandleFunc("GET /api/backup/{filename}", s.backupH.Download)

	guard := middleware.RequireManager(s.gate)
	mux.Handle("/api/", guard(managerMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
