package main

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pccr10001/groupcall/internal/api"
	"github.com/pccr10001/groupcall/internal/auth"
	"github.com/pccr10001/groupcall/internal/calling"
	"github.com/pccr10001/groupcall/internal/config"
	"github.com/pccr10001/groupcall/internal/dialog"
	"github.com/pccr10001/groupcall/internal/logic"
	"github.com/pccr10001/groupcall/internal/miclevel"
	"github.com/pccr10001/groupcall/internal/model"
	"github.com/pccr10001/groupcall/internal/repository"
	"github.com/pccr10001/groupcall/pkg/logger"
	"gorm.io/gorm"
)

func main() {
	// 1. Load Config
	config.LoadConfig()
	cfg := config.AppConfig

	// 2. Init Logger
	logger.InitLogger(cfg.Log.Level, logger.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logger.Log.Sync()
	logger.Log.Info("Starting group call settings server...")

	auth.Init(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	// 3. Init Database
	db, err := repository.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Log.Fatalf("Failed to init database: %v", err)
	}
	initAdmin(db)

	// 4. Calling and level meters
	callMgr, err := calling.NewManager(calling.Config{
		STUNServers: cfg.Calling.STUNServers,
		UDPPortMin:  cfg.Calling.UDPPortMin,
		UDPPortMax:  cfg.Calling.UDPPortMax,
	}, logger.Named("calling"))
	if err != nil {
		logger.Log.Fatalf("Failed to init calling manager: %v", err)
	}
	defer callMgr.CloseAll()

	files := make([]miclevel.FileDevice, 0, len(cfg.Meter.Files))
	for _, f := range cfg.Meter.Files {
		files = append(files, miclevel.FileDevice{ID: f.ID, Name: f.Name, Path: f.Path})
	}
	sources := miclevel.NewSources(miclevel.SourceConfig{
		SampleRate:      cfg.Meter.SampleRate,
		FramesPerBuffer: cfg.Meter.FramesPerBuffer,
		Files:           files,
	}, callMgr, logger.Named("miclevel"))

	var defaultInput miclevel.Device
	if cfg.Meter.InputDevice != "" {
		defaultInput = miclevel.Device{ID: cfg.Meter.InputDevice, Name: cfg.Meter.InputDevice}
	}

	webhooks := logic.NewWebhookService(repository.NewWebhookRepository(db))
	settings := logic.NewSettingsService(db, webhooks, cfg.Invite.BaseURL)

	dialogs := dialog.NewManager(dialog.Config{
		Monitor: miclevel.MonitorConfig{
			UpdateInterval:    cfg.Meter.UpdateInterval,
			AnimationDuration: cfg.Meter.AnimationDuration,
			FrameInterval:     cfg.Meter.FrameInterval,
		},
		DefaultInput:   defaultInput,
		IdleTimeout:    cfg.Dialog.IdleTimeout,
		ReapInterval:   cfg.Dialog.ReapInterval,
		RequestTimeout: cfg.Dialog.RequestTimeout,
	}, settings, sources, logger.Named("dialog"))
	dialogs.OnDialogClosed = func(id string) {
		if err := callMgr.ClosePeer(id); err != nil {
			logger.Log.Warnf("close browser microphone of dialog %s: %v", id, err)
		}
	}
	dialogs.Start()

	// 5. Init Router
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	api.RegisterRoutes(r, api.Deps{
		DB:       db,
		Settings: settings,
		Dialogs:  dialogs,
		Devices:  sources,
		CallMgr:  callMgr,
	})

	// 6. Start Server
	srv := &http.Server{Addr: cfg.Server.Port, Handler: r}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Log.Infof("Server listening on %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warnf("HTTP shutdown: %v", err)
	}
	// Closing the dialogs commits pending join-muted edits.
	dialogs.Stop()
	webhooks.Wait()
}

func initAdmin(db *gorm.DB) {
	users := repository.NewUserRepository(db)
	ctx := context.Background()

	count, err := users.Count(ctx)
	if err != nil {
		logger.Log.Fatalf("Failed to count users: %v", err)
	}
	if count > 0 {
		return
	}

	// Generate random password
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ret := make([]byte, 12)
	for i := range ret {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			logger.Log.Fatalf("Failed to generate random password: %v", err)
		}
		ret[i] = chars[num.Int64()]
	}
	randPw := string(ret)

	hash, err := api.HashPassword(randPw)
	if err != nil {
		logger.Log.Fatalf("Failed to hash password: %v", err)
	}

	admin := model.User{
		Username:     "admin",
		PasswordHash: hash,
		Role:         "admin",
	}
	if err := users.Create(ctx, &admin); err != nil {
		logger.Log.Fatalf("Failed to create admin: %v", err)
	}
	logger.Log.Warnf("INITIAL ADMIN CREATED. Username: admin, Password: %s", randPw)
}
