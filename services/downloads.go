package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"videoBot/utils"
)

// keyedMutex выдает мьютекс на произвольный строковый ключ.
// Запись в карте живет, пока ключ кем-то удерживается.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (km *keyedMutex) Lock(key string) {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.mu.Lock()
}

func (km *keyedMutex) Unlock(key string) {
	km.mu.Lock()
	l := km.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(km.locks, key)
	}
	km.mu.Unlock()

	l.mu.Unlock()
}

// DownloadService — оркестратор загрузок. Каждая попытка — отдельная
// запись аудита; статусы движутся только вперед:
// pending -> downloading -> completed | failed.
type DownloadService struct {
	storage     *Storage
	fetcher     MediaFetcher
	downloadDir string
	maxFileSize int64
	// Сериализует проверку дедупликации и скачивание по кортежу
	// (видео, качество, формат): одно реальное скачивание на кортеж
	inflight *keyedMutex
}

// NewDownloadService создает оркестратор загрузок
func NewDownloadService(storage *Storage, fetcher MediaFetcher, downloadDir string, maxFileSize int64) *DownloadService {
	return &DownloadService{
		storage:     storage,
		fetcher:     fetcher,
		downloadDir: downloadDir,
		maxFileSize: maxFileSize,
		inflight:    newKeyedMutex(),
	}
}

func dedupKey(videoID int64, quality string, formatType FormatType) string {
	return fmt.Sprintf("%d|%s|%s", videoID, quality, formatType)
}

// Download выполняет загрузку видео для пользователя. Ошибки самой загрузки
// не возвращаются — они фиксируются в записи аудита со статусом failed;
// наверх уходит только отказ хранилища.
func (ds *DownloadService) Download(ctx context.Context, video *Video, user *User, quality string, formatType FormatType, requestedSize int64) (*Download, error) {
	record := &Download{
		UserID:     user.ID,
		VideoID:    video.ID,
		Quality:    quality,
		FormatType: formatType,
		Status:     StatusPending,
	}
	if err := ds.storage.CreateDownload(ctx, record); err != nil {
		return nil, err
	}
	metricDownloadsTotal.Inc()

	key := dedupKey(video.ID, quality, formatType)
	ds.inflight.Lock(key)
	defer ds.inflight.Unlock(key)

	// Дедупликация: тот же контент уже скачан и указатель на него жив
	existing, err := ds.storage.FindCompletedDownload(ctx, video.ID, quality, formatType)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Printf("♻️ Повторная загрузка видео %d (%s, %s) — отдаю существующий результат #%d",
			video.ID, quality, formatType, existing.ID)
		if err := ds.storage.MarkCompletedFrom(ctx, record.ID, existing); err != nil {
			return nil, err
		}
		var bytes int64
		if existing.FileSize != nil {
			bytes = *existing.FileSize
		}
		ds.bumpStatistics(ctx, video.ID, user.ID, bytes)
		metricDedupHits.Inc()
		metricDownloadsCompleted.Inc()
		return existing, nil
	}

	if err := ds.storage.MarkDownloading(ctx, record.ID); err != nil {
		return nil, err
	}

	if requestedSize > 0 && requestedSize > ds.maxFileSize {
		return ds.fail(ctx, record.ID, fmt.Sprintf("файл слишком большой: %s (лимит %s)",
			utils.FormatFileSize(requestedSize), utils.FormatFileSize(ds.maxFileSize)))
	}

	// Свежая директория на каждую попытку: ровно один файл внутри
	attemptDir := filepath.Join(ds.downloadDir, uuid.New().String())
	if err := os.MkdirAll(attemptDir, 0755); err != nil {
		return ds.fail(ctx, record.ID, fmt.Sprintf("не удалось создать директорию загрузки: %v", err))
	}

	selector := FormatSelector(quality, formatType)
	if err := ds.fetcher.Fetch(ctx, video.URL, selector, attemptDir, ds.maxFileSize); err != nil {
		os.RemoveAll(attemptDir)
		return ds.fail(ctx, record.ID, fmt.Sprintf("ошибка скачивания: %v", err))
	}

	filePath, fileSize, err := singleProducedFile(attemptDir)
	if err != nil {
		os.RemoveAll(attemptDir)
		return ds.fail(ctx, record.ID, err.Error())
	}

	if fileSize > ds.maxFileSize {
		os.RemoveAll(attemptDir)
		return ds.fail(ctx, record.ID, fmt.Sprintf("скачанный файл превышает лимит: %s", utils.FormatFileSize(fileSize)))
	}

	if err := ds.storage.MarkCompleted(ctx, record.ID, filePath, fileSize); err != nil {
		return nil, err
	}
	metricDownloadsCompleted.Inc()

	// Кэш параметров на видео заполняем один раз, первой успешной загрузкой
	if video.Quality == "" {
		if err := ds.storage.UpdateVideoFileCache(ctx, video.ID, fileSize, quality, selector); err != nil {
			log.Printf("⚠️ Не удалось обновить кэш видео %d: %v", video.ID, err)
		}
	}

	ds.bumpStatistics(ctx, video.ID, user.ID, fileSize)

	log.Printf("✅ Загрузка #%d завершена: %s (%s)", record.ID, filePath, utils.FormatFileSize(fileSize))
	return ds.storage.GetDownload(ctx, record.ID)
}

// SaveTelegramFileID запоминает file_id после отправки в Telegram
func (ds *DownloadService) SaveTelegramFileID(ctx context.Context, downloadID int64, fileID string) {
	if err := ds.storage.SetTelegramFileID(ctx, downloadID, fileID); err != nil {
		log.Printf("⚠️ Не удалось сохранить file_id для загрузки %d: %v", downloadID, err)
	}
}

func (ds *DownloadService) fail(ctx context.Context, id int64, message string) (*Download, error) {
	log.Printf("❌ Загрузка #%d не удалась: %s", id, message)
	if err := ds.storage.MarkFailed(ctx, id, message); err != nil {
		return nil, err
	}
	metricDownloadsFailed.Inc()
	return ds.storage.GetDownload(ctx, id)
}

func (ds *DownloadService) bumpStatistics(ctx context.Context, videoID, userID int64, bytes int64) {
	if err := ds.storage.IncrementVideoDownloads(ctx, videoID); err != nil {
		log.Printf("⚠️ Не удалось обновить счетчик видео %d: %v", videoID, err)
	}
	if err := ds.storage.BumpUserDownload(ctx, userID, bytes); err != nil {
		log.Printf("⚠️ Не удалось обновить статистику пользователя %d: %v", userID, err)
	}
}

// singleProducedFile ожидает в директории ровно один скачанный файл
func singleProducedFile(dir string) (string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, fmt.Errorf("не удалось прочитать директорию загрузки: %v", err)
	}

	var files []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e)
		}
	}
	if len(files) == 0 {
		return "", 0, fmt.Errorf("скачанный файл не найден")
	}
	if len(files) > 1 {
		return "", 0, fmt.Errorf("ожидался один файл, найдено %d", len(files))
	}

	info, err := files[0].Info()
	if err != nil {
		return "", 0, fmt.Errorf("не удалось прочитать информацию о файле: %v", err)
	}
	return filepath.Join(dir, files[0].Name()), info.Size(), nil
}

// waitCtx помогает ограничивать блокирующие операции контекстом
func waitCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
