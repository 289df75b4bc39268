package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/ichikitsu-lab/OrderingSystem/config"
	"github.com/ichikitsu-lab/OrderingSystem/feed"
	"github.com/ichikitsu-lab/OrderingSystem/hub"
	"github.com/ichikitsu-lab/OrderingSystem/mirror"
	"github.com/ichikitsu-lab/OrderingSystem/remote"
	"github.com/ichikitsu-lab/OrderingSystem/router"
	"github.com/ichikitsu-lab/OrderingSystem/services"
	"github.com/ichikitsu-lab/OrderingSystem/settings"
	"github.com/ichikitsu-lab/OrderingSystem/sound"
	"github.com/ichikitsu-lab/OrderingSystem/utils"
)

func init() {
	// Load .env file di awal sebelum apapun
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or error loading: %v", err)
	}

	utils.InitLogger()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Preferensi lokal (sqlite), hidup terpisah dari state tersinkronisasi
	prefs, err := settings.Open(cfg.SettingsDBPath)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to open settings store: %v", err)
	}

	remoteStore := remote.NewHTTPStore(cfg.RemoteBaseURL, cfg.RemoteToken, cfg.DeviceID)

	// Probe awal: gagal bukan fatal, reconciler akan resync saat feed tersambung
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := remoteStore.Ping(ctx); err != nil {
		utils.ErrorLogger.Printf("Remote store unreachable at startup: %v", err)
	}
	cancel()

	store := mirror.New()
	h := hub.New()

	rec := services.NewReconciler(store, remoteStore, h)
	rec.Start()
	defer rec.Stop()
	rec.RequestResync()

	feedClient := feed.NewClient(cfg.RemoteWSURL, cfg.RemoteToken, rec, h)
	feedClient.Start()
	defer feedClient.Stop()

	gate := &sound.Gate{}
	player := sound.NewPlayer(gate, prefs, nil)
	dispatcher := services.NewDispatcher(store, remoteStore, rec, player)

	r := router.SetupRouter(router.Deps{
		Store:         store,
		Dispatcher:    dispatcher,
		Hub:           h,
		Settings:      prefs,
		Gate:          gate,
		RetentionDays: cfg.HistoryRetentionDays,
	})

	utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		utils.ErrorLogger.Fatal(err)
	}
}
