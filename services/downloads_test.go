package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher кладет один файл в директорию попытки
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	err     error
	content []byte
	// Сколько файлов создавать (для проверки инварианта "ровно один")
	fileCount int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, selector, outDir string, maxBytes int64) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	n := f.fileCount
	if n == 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		name := filepath.Join(outDir, "video"+string(rune('a'+i))+".mp4")
		if err := os.WriteFile(name, f.content, 0644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestDownloadService(t *testing.T, fetcher MediaFetcher, maxSize int64) (*DownloadService, *Storage, string) {
	t.Helper()
	s := newTestStorage(t)
	dir := t.TempDir()
	return NewDownloadService(s, fetcher, dir, maxSize), s, dir
}

func TestDownloadSuccess(t *testing.T) {
	fetcher := &fakeFetcher{content: []byte("данные видео")}
	ds, s, dir := newTestDownloadService(t, fetcher, 1<<20)
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-ok")
	user := mustCreateUser(t, s, 300)

	record, err := ds.Download(ctx, video, user, "720p", FormatVideo, 0)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, StatusCompleted, record.Status)
	require.NotNil(t, record.FilePath)
	assert.True(t, strings.HasPrefix(*record.FilePath, dir))
	require.NotNil(t, record.FileSize)
	assert.Equal(t, int64(len("данные видео")), *record.FileSize)
	assert.NotNil(t, record.StartedAt)
	assert.NotNil(t, record.CompletedAt)

	// Статистика: счетчик видео и личные счетчики пользователя
	v, _ := s.GetVideoByID(ctx, video.ID)
	assert.Equal(t, 1, v.DownloadCount)
	assert.Equal(t, "720p", v.Quality, "кэш видео заполнен первой загрузкой")
	u, _ := s.GetUserByTelegramID(ctx, 300)
	assert.Equal(t, 1, u.TotalDownloads)
}

func TestDownloadDedup(t *testing.T) {
	fetcher := &fakeFetcher{content: []byte("x")}
	ds, s, _ := newTestDownloadService(t, fetcher, 1<<20)
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-dedup")
	user := mustCreateUser(t, s, 301)

	first, err := ds.Download(ctx, video, user, "720p", FormatVideo, 0)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, first.Status)
	assert.Equal(t, 1, fetcher.callCount())

	second, err := ds.Download(ctx, video, user, "720p", FormatVideo, 0)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, 1, fetcher.callCount(), "повторный запрос не скачивает заново")
	assert.Equal(t, first.ID, second.ID, "возвращается существующая запись")

	// Статистика растет и при попадании в дедупликацию
	v, _ := s.GetVideoByID(ctx, video.ID)
	assert.Equal(t, 2, v.DownloadCount)
	u, _ := s.GetUserByTelegramID(ctx, 301)
	assert.Equal(t, 2, u.TotalDownloads)

	// Другое качество — отдельное скачивание
	_, err = ds.Download(ctx, video, user, "480p", FormatVideo, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestDedupAuditRowDoesNotShareFile(t *testing.T) {
	fetcher := &fakeFetcher{content: []byte("payload")}
	ds, s, dir := newTestDownloadService(t, fetcher, 1<<20)
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-audit")
	user := mustCreateUser(t, s, 307)

	first, err := ds.Download(ctx, video, user, "720p", FormatVideo, 0)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, first.Status)

	_, err = ds.Download(ctx, video, user, "720p", FormatVideo, 0)
	require.NoError(t, err)

	// Аудитная запись completed, размер скопирован, но путь пуст:
	// файлом на диске владеет только первая запись
	rows, err := s.GetUserDownloads(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		if r.ID == first.ID {
			continue
		}
		assert.Equal(t, StatusCompleted, r.Status)
		assert.Nil(t, r.FilePath)
		require.NotNil(t, r.FileSize)
		assert.Equal(t, *first.FileSize, *r.FileSize)
	}

	list, err := s.ListDownloadsWithFiles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	// Очистка видит ровно один файл
	cs := NewCleanupService(s, dir, time.Minute, 85, 70, nil)
	removed, err := cs.CleanupAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestDownloadConcurrentSameTuple(t *testing.T) {
	fetcher := &fakeFetcher{content: []byte("payload")}
	ds, s, _ := newTestDownloadService(t, fetcher, 1<<20)
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-race")
	user := mustCreateUser(t, s, 302)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ds.Download(ctx, video, user, "720p", FormatVideo, 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fetcher.callCount(), "одно реальное скачивание на кортеж")

	v, _ := s.GetVideoByID(ctx, video.ID)
	assert.Equal(t, n, v.DownloadCount)
}

func TestDownloadFailureRecorded(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("сеть недоступна")}
	ds, s, _ := newTestDownloadService(t, fetcher, 1<<20)
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-fail")
	user := mustCreateUser(t, s, 303)

	record, err := ds.Download(ctx, video, user, "720p", FormatVideo, 0)
	require.NoError(t, err, "ошибка скачивания не пробрасывается")
	require.NotNil(t, record)

	assert.Equal(t, StatusFailed, record.Status)
	require.NotNil(t, record.ErrorMessage)
	assert.Contains(t, *record.ErrorMessage, "сеть недоступна")
	assert.Nil(t, record.FilePath)
	assert.Nil(t, record.TelegramFileID)

	// Неудача не трогает статистику
	v, _ := s.GetVideoByID(ctx, video.ID)
	assert.Equal(t, 0, v.DownloadCount)
}

func TestDownloadRejectsOversizedRequest(t *testing.T) {
	fetcher := &fakeFetcher{content: []byte("x")}
	ds, s, _ := newTestDownloadService(t, fetcher, 1000)
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-big")
	user := mustCreateUser(t, s, 304)

	record, err := ds.Download(ctx, video, user, "1080p", FormatVideo, 5000)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, StatusFailed, record.Status)
	require.NotNil(t, record.ErrorMessage)
	assert.Contains(t, *record.ErrorMessage, "слишком большой")
	assert.Zero(t, fetcher.callCount(), "скачивание даже не начинается")
}

func TestDownloadExpectsSingleFile(t *testing.T) {
	fetcher := &fakeFetcher{content: []byte("x"), fileCount: 2}
	ds, s, _ := newTestDownloadService(t, fetcher, 1<<20)
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-multi")
	user := mustCreateUser(t, s, 305)

	record, err := ds.Download(ctx, video, user, "720p", FormatVideo, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, record.Status)
}

func TestRetryIsNewRecord(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("временный сбой")}
	ds, s, _ := newTestDownloadService(t, fetcher, 1<<20)
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-retry")
	user := mustCreateUser(t, s, 306)

	first, err := ds.Download(ctx, video, user, "720p", FormatVideo, 0)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, first.Status)

	fetcher.err = nil
	fetcher.content = []byte("теперь получилось")

	second, err := ds.Download(ctx, video, user, "720p", FormatVideo, 0)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "повтор — новая запись")
	assert.Equal(t, StatusCompleted, second.Status)

	// Старая запись осталась failed
	old, _ := s.GetDownload(ctx, first.ID)
	assert.Equal(t, StatusFailed, old.Status)
}

func TestFormatSelector(t *testing.T) {
	assert.Equal(t, "bestaudio/best", FormatSelector("", FormatMP3))
	assert.Equal(t, "bestaudio/best", FormatSelector("720p", FormatMP3))
	assert.Equal(t,
		"bestvideo[height<=720][vcodec^=avc1]+bestaudio/best[height<=720]/best",
		FormatSelector("720p", FormatVideo))
	assert.Equal(t,
		"bestvideo[height<=1080][vcodec^=avc1]+bestaudio/best[height<=1080]/best",
		FormatSelector("1080p", FormatVideo))
}

func TestKeyedMutex(t *testing.T) {
	km := newKeyedMutex()

	var mu sync.Mutex
	inCritical := map[string]int{}
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		key := "a"
		if i%2 == 0 {
			key = "b"
		}
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			km.Lock(k)
			mu.Lock()
			inCritical[k]++
			assert.Equal(t, 1, inCritical[k])
			mu.Unlock()

			mu.Lock()
			inCritical[k]--
			mu.Unlock()
			km.Unlock(k)
		}(key)
	}
	wg.Wait()
}
