package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"videoBot/config"
	"videoBot/handlers"
	"videoBot/internal/netx"
	"videoBot/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("🚀 Запуск бота...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	proxyCfg := config.LoadProxyConfig()
	if proxyCfg.UseProxy {
		log.Printf("🌐 Прокси включен: %s", proxyCfg.ProxyURL)
	}

	if err := os.MkdirAll(cfg.DownloadDir, 0755); err != nil {
		log.Fatalf("❌ Не удалось создать папку загрузок: %v", err)
	}

	storage, err := services.NewStorage(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("❌ Ошибка инициализации хранилища: %v", err)
	}
	defer storage.Close()

	detector := services.NewPlatformDetector()

	extractor := services.NewYtDlpExtractor(proxyCfg)
	if err := extractor.CheckYtDlp(); err != nil {
		log.Fatalf("❌ %v", err)
	}

	// Для YouTube метаданные забираем нативным клиентом, yt-dlp — запасной путь
	metadata := services.NewYouTubeMetadata(netx.NewHTTPClient(proxyCfg), extractor, detector)

	catalog := services.NewVideoCatalog(storage, detector, metadata, cfg.MaxVideoDuration)
	downloads := services.NewDownloadService(storage, extractor, cfg.DownloadDir, cfg.MaxFileSize)
	statsService := services.NewStatsService(storage, cfg.Location)
	userService := services.NewUserService(storage, cfg.AdminIDs)
	gate := services.NewSubscriptionGate()
	cleanup := services.NewCleanupService(storage, cfg.DownloadDir, cfg.CleanupInterval,
		cfg.DiskUsageThreshold, cfg.DiskUsageTarget, nil)

	queue := services.NewDownloadQueue(cfg.QueueWorkers, downloads)
	queue.Start()
	defer queue.Stop()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Fatalf("❌ Ошибка подключения к Telegram: %v", err)
	}
	log.Printf("✅ Бот авторизован: @%s", bot.Self.UserName)

	broadcast := services.NewBroadcastService(bot, userService)
	adminHandler := handlers.NewAdminHandler(bot, userService, statsService, cleanup, broadcast, gate)
	handler := handlers.NewTelegramHandler(bot, storage, userService, catalog, queue,
		downloads, statsService, gate, detector, adminHandler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go cleanup.RunScheduler(ctx)
	services.ServeMetrics(cfg.MetricsAddr)

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := bot.GetUpdatesChan(updateConfig)

	log.Printf("👂 Слушаю обновления...")
	for {
		select {
		case <-ctx.Done():
			log.Printf("🛑 Получен сигнал остановки")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go handler.HandleUpdate(ctx, update)
		}
	}
}
