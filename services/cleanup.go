package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// CleanupService удаляет скачанные файлы с диска. Записи аудита остаются,
// у них только обнуляется file_path.
type CleanupService struct {
	storage     *Storage
	downloadDir string
	interval    time.Duration
	// Проценты занятости диска: выше threshold начинаем чистить,
	// чистим до target
	threshold float64
	target    float64
	diskUsage DiskUsageFunc
}

// NewCleanupService создает сервис очистки
func NewCleanupService(storage *Storage, downloadDir string, interval time.Duration, threshold, target float64, diskUsage DiskUsageFunc) *CleanupService {
	if diskUsage == nil {
		diskUsage = StatfsDiskUsage
	}
	return &CleanupService{
		storage:     storage,
		downloadDir: downloadDir,
		interval:    interval,
		threshold:   threshold,
		target:      target,
		diskUsage:   diskUsage,
	}
}

// CleanupAll удаляет все скачанные файлы и возвращает число удаленных.
// Повторный вызов ничего не находит и возвращает 0.
func (cs *CleanupService) CleanupAll(ctx context.Context) (int, error) {
	downloads, err := cs.storage.ListDownloadsWithFiles(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := range downloads {
		d := &downloads[i]
		if err := cs.evict(ctx, d); err != nil {
			log.Printf("⚠️ Не удалось удалить файл загрузки %d: %v", d.ID, err)
			continue
		}
		removed++
	}

	log.Printf("🧹 Полная очистка: удалено %d файлов", removed)
	return removed, nil
}

// RunScheduler запускает бесконечный цикл фоновой очистки. Ошибки и паники
// отдельных проходов не убивают цикл. Останавливается только по контексту.
func (cs *CleanupService) RunScheduler(ctx context.Context) {
	log.Printf("🕐 Планировщик очистки запущен (интервал %v, порог %.0f%%, цель %.0f%%)",
		cs.interval, cs.threshold, cs.target)

	for {
		if !waitCtx(ctx, cs.interval) {
			log.Printf("🛑 Планировщик очистки остановлен")
			return
		}
		cs.runOnce(ctx)
	}
}

func (cs *CleanupService) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️ Паника в проходе очистки: %v", r)
		}
	}()

	if err := cs.FreeDiskSpace(ctx); err != nil {
		log.Printf("⚠️ Ошибка прохода очистки: %v", err)
	}
}

// FreeDiskSpace проверяет занятость диска и при превышении порога удаляет
// самые старые завершенные загрузки, пока не достигнет целевой занятости
func (cs *CleanupService) FreeDiskSpace(ctx context.Context) error {
	metricCleanupRuns.Inc()

	usage, err := cs.diskUsage(cs.downloadDir)
	if err != nil {
		return fmt.Errorf("ошибка измерения диска: %v", err)
	}

	percent := usage.UsedPercent()
	if percent < cs.threshold {
		return nil
	}

	targetUsed := uint64(float64(usage.Total) * cs.target / 100)
	var toFree uint64
	if usage.Used > targetUsed {
		toFree = usage.Used - targetUsed
	}

	log.Printf("📀 Диск занят на %.1f%% (порог %.0f%%), нужно освободить %d байт",
		percent, cs.threshold, toFree)

	downloads, err := cs.storage.ListDownloadsWithFiles(ctx)
	if err != nil {
		return err
	}

	var freed uint64
	removed := 0
	for i := range downloads {
		if freed >= toFree {
			break
		}
		d := &downloads[i]

		var size uint64
		if d.FileSize != nil {
			size = uint64(*d.FileSize)
		}

		if err := cs.evict(ctx, d); err != nil {
			log.Printf("⚠️ Не удалось удалить файл загрузки %d: %v", d.ID, err)
			continue
		}
		freed += size
		removed++
	}

	log.Printf("🧹 Очистка: удалено %d файлов, освобождено %d байт", removed, freed)
	return nil
}

// evict удаляет файл загрузки с диска и обнуляет путь в записи
func (cs *CleanupService) evict(ctx context.Context, d *Download) error {
	if d.FilePath == nil || *d.FilePath == "" {
		return nil
	}

	// Без file_id в Telegram контент после удаления не восстановить
	if d.TelegramFileID == nil || *d.TelegramFileID == "" {
		log.Printf("⚠️ Удаляю файл загрузки %d без telegram_file_id — контент будет потерян: %s",
			d.ID, *d.FilePath)
	}

	path := *d.FilePath
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	// Директория попытки после удаления файла пуста — убираем и её
	dir := filepath.Dir(path)
	if dir != cs.downloadDir {
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			log.Printf("⚠️ Не удалось удалить директорию %s: %v", dir, err)
		}
	}

	if err := cs.storage.ClearFilePath(ctx, d.ID); err != nil {
		return err
	}

	metricCleanupFiles.Inc()
	if d.FileSize != nil {
		metricCleanupBytes.Add(float64(*d.FileSize))
	}
	return nil
}
