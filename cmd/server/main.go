package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/mc-server/internal/api"
	"github.com/annel0/mc-server/internal/auth"
	"github.com/annel0/mc-server/internal/config"
	"github.com/annel0/mc-server/internal/eventbus"
	"github.com/annel0/mc-server/internal/logging"
	"github.com/annel0/mc-server/internal/network"
	"github.com/annel0/mc-server/internal/observability"
	"github.com/annel0/mc-server/internal/storage"
	"github.com/annel0/mc-server/internal/tick"
	"github.com/annel0/mc-server/internal/world"
	"github.com/annel0/mc-server/internal/world/generator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const (
	flushTimeout  = 15 * time.Second
	busStatsEvery = 5 * time.Second
	telemetryName = "mc-server"
)

func main() {
	app := &cli.App{
		Name:  "mc-server",
		Usage: "Minecraft 1.8.x (protocol 47) server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML файл конфигурации",
				EnvVars: []string{"MC_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "properties",
				Usage: "ванильный server.properties поверх YAML (пусто — не читать)",
				Value: "server.properties",
			},
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "консольные логи уровня DEBUG и журнал событий шины",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("конфигурация: %w", err)
	}
	propsCreated := false
	if path := c.String("properties"); path != "" {
		if propsCreated, err = config.LoadProperties(path, cfg); err != nil {
			return fmt.Errorf("server.properties: %w", err)
		}
	}

	dev := c.Bool("dev")
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if dev {
		level = logging.DEBUG
	}
	logging.Configure(logging.Options{Level: level, Development: dev, Dir: cfg.Logging.Dir})
	if err := logging.InitDefaultLogger("server"); err != nil {
		return fmt.Errorf("логирование: %w", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🎮 Запуск сервера Minecraft 1.8 (протокол 47)")
	if propsCreated {
		logging.Info("📝 Создан %s со значениями по умолчанию", c.String("properties"))
	}
	if cfg.Server.OnlineMode {
		logging.Warn("⚠️ online-mode=true не поддерживается, игроки входят в offline-режиме")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, telemetryName, cfg.Telemetry.Endpoint)
		if err != nil {
			logging.Warn("⚠️ Трассировка отключена: %v", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	// === МИР ===
	chunks, err := openChunkStore(cfg.World.DataDir)
	if err != nil {
		return err
	}
	defer chunks.Close()

	store := world.NewStore(world.Options{
		Provider:    &storage.PersistentProvider{Store: chunks, Fallback: newGenerator(cfg.World)},
		Saver:       chunks,
		GracePeriod: cfg.World.GracePeriod,
	})

	positions, err := openPositions(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer positions.Close()

	// === ШИНА СОБЫТИЙ ===
	bus, err := openBus(cfg.EventBus)
	if err != nil {
		return err
	}
	defer bus.Close()
	eventbus.Init(bus)

	exporter := eventbus.NewMetricsExporter(bus, reg)
	exporter.Start(busStatsEvery)
	defer exporter.Stop()

	if dev {
		sub, err := eventbus.StartLoggingListener(bus)
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
	}

	// === АККАУНТЫ ПАНЕЛИ И БАН-ЛИСТ ===
	users, bans, closeAuth, err := openAuth(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	defer closeAuth()

	adminPassword := cfg.Auth.AdminPassword
	if adminPassword == "" {
		adminPassword = auth.GenerateSecret()[:16]
		logging.Warn("🔑 Пароль администратора %q не задан, сгенерирован: %s", cfg.Auth.AdminUser, adminPassword)
	}
	if err := auth.EnsureAdmin(ctx, users, cfg.Auth.AdminUser, adminPassword); err != nil {
		return fmt.Errorf("создание администратора: %w", err)
	}
	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	// === ИГРОВОЙ ЦИКЛ И СЕТЬ ===
	sched, err := tick.NewScheduler(tick.Options{
		Store:             store,
		TickRate:          cfg.Tick.Rate,
		MaxMovePerTick:    cfg.Tick.MaxMovePerTick,
		ChunkLoadsPerTick: cfg.Tick.ChunkLoadsPerTick,
		ViewDistance:      cfg.World.ViewDistance,
		MailboxSize:       cfg.Tick.MailboxSize,
		Gamemode:          cfg.World.Gamemode,
		Difficulty:        cfg.World.Difficulty,
		MaxPlayers:        cfg.Server.MaxPlayers,
		LevelType:         cfg.World.LevelType,
		Bus:               bus,
		Metrics:           metrics,
		Positions:         positions,
		AutosaveInterval:  cfg.Tick.Autosave,
	})
	if err != nil {
		return err
	}

	var favicon string
	if cfg.Server.Favicon != "" {
		if favicon, err = network.LoadFavicon(cfg.Server.Favicon); err != nil {
			logging.Warn("⚠️ Иконка сервера не загружена: %v", err)
		}
	}

	mgr, err := network.NewManager(network.Options{
		Scheduler:            sched,
		Store:                store,
		Bans:                 bans,
		Positions:            positions,
		Metrics:              metrics,
		MaxPlayers:           cfg.Server.MaxPlayers,
		MOTD:                 cfg.Server.MOTD,
		Favicon:              favicon,
		CompressionThreshold: cfg.Server.CompressionThreshold,
		KeepAliveInterval:    cfg.Server.KeepAlive,
		ReadTimeout:          cfg.Server.ReadTimeout,
		WriteTimeout:         cfg.Server.WriteTimeout,
		RateLimit:            cfg.Server.RateLimit,
		RateBurst:            cfg.Server.RateBurst,
		SendQueue:            cfg.Server.SendQueue,
	})
	if err != nil {
		return err
	}

	gameLn, err := network.Listen(cfg.Server.Transport, cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("игровой порт: %w", err)
	}

	// === АДМИНКА ===
	rest, err := api.NewRestServer(api.Config{
		Addr:       fmt.Sprintf(":%d", cfg.API.GetRESTPort()),
		Console:    mgr,
		Ticks:      sched,
		Users:      users,
		Bans:       bans,
		Tokens:     tokens,
		MaxPlayers: cfg.Server.MaxPlayers,
		Registerer: reg,
		Gatherer:   reg,
	})
	if err != nil {
		gameLn.Close()
		return err
	}
	grpcLn, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.API.GetGRPCPort()))
	if err != nil {
		gameLn.Close()
		return fmt.Errorf("порт gRPC: %w", err)
	}
	grpcSrv := api.NewGRPCServer(mgr, tokens)

	logging.Info("✅ Сервисы запущены: игра %s (%s), REST :%d, gRPC :%d",
		gameLn.Addr(), cfg.Server.Transport, cfg.API.GetRESTPort(), cfg.API.GetGRPCPort())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		store.Run(gctx)
		return nil
	})
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return mgr.Serve(gctx, gameLn) })
	g.Go(func() error { return rest.Run(gctx) })
	g.Go(func() error { return api.ServeGRPC(gctx, grpcSrv, grpcLn) })

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logging.Error("❌ Сервис остановился с ошибкой: %v", runErr)
	}

	// === GRACEFUL SHUTDOWN ===
	logging.Info("📡 Завершение работы...")
	mgr.Close()

	flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := store.Flush(flushCtx); err != nil {
		logging.Error("❌ Не все чанки сохранены: %v", err)
	}

	logging.Info("👋 Сервер успешно остановлен")
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func openChunkStore(dataDir string) (*storage.ChunkStore, error) {
	if dataDir == "" {
		logging.Warn("⚠️ data_dir не задан, мир хранится только в памяти")
		return storage.NewMemoryChunkStore()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return storage.OpenChunkStore(dataDir)
}

func newGenerator(cfg config.WorldConfig) world.ChunkProvider {
	if cfg.LevelType == "default" {
		logging.Info("🌄 Генератор Perlin, seed=%d", cfg.Seed)
		return generator.NewPerlin(cfg.Seed)
	}
	logging.Info("🟩 Плоский генератор мира")
	return generator.NewFlat()
}

func openPositions(ctx context.Context, cfg config.StorageConfig) (storage.PositionRepo, error) {
	switch cfg.Positions {
	case "redis":
		return storage.NewRedisPositionRepo(ctx, &storage.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: storage.DefaultRedisConfig().KeyPrefix,
			TTL:       storage.DefaultRedisConfig().TTL,
		})
	case "mariadb":
		return storage.NewMariaPositionRepo(ctx, cfg.MariaDSN)
	default:
		return storage.NewMemoryPositionRepo(), nil
	}
}

func openBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		return eventbus.NewMemoryBus(cfg.Capacity), nil
	}
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("шина событий: %w", err)
	}
	logging.Info("🛰️ JetStream подключён: %s, стрим %s", cfg.URL, cfg.Stream)
	return bus, nil
}

func openAuth(ctx context.Context, cfg config.AuthConfig) (auth.UserRepository, auth.BanList, func(), error) {
	if cfg.MongoURI == "" {
		return auth.NewMemoryUserRepo(), auth.NewMemoryBanList(), func() {}, nil
	}
	ms, err := auth.NewMongoStore(ctx, auth.MongoConfig{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("MongoDB: %w", err)
	}
	closeFn := func() {
		if err := ms.Close(); err != nil {
			logging.Warn("⚠️ Закрытие MongoDB: %v", err)
		}
	}
	return ms, ms, closeFn, nil
}
