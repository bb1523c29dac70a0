package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDownloadFile раскладывает файл по схеме "папка попытки / файл"
// и создает завершенную запись загрузки
func writeDownloadFile(t *testing.T, s *Storage, root string, userID, videoID int64, name string, size int64) *Download {
	t.Helper()
	ctx := context.Background()

	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name+".mp4")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))

	d := &Download{UserID: userID, VideoID: videoID, Quality: "720p", FormatType: FormatVideo}
	require.NoError(t, s.CreateDownload(ctx, d))
	require.NoError(t, s.MarkCompleted(ctx, d.ID, path, size))
	got, err := s.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	return got
}

func TestCleanupAllIdempotent(t *testing.T) {
	s := newTestStorage(t)
	root := t.TempDir()
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-clean")
	user := mustCreateUser(t, s, 400)

	var paths []string
	for i, name := range []string{"a", "b", "c"} {
		d := writeDownloadFile(t, s, root, user.ID, video.ID, name, int64(100*(i+1)))
		paths = append(paths, *d.FilePath)
	}

	cs := NewCleanupService(s, root, time.Minute, 85, 70, nil)

	removed, err := cs.CleanupAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	for _, p := range paths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "файл должен быть удален: %s", p)
		// Пустая папка попытки тоже убрана
		_, err = os.Stat(filepath.Dir(p))
		assert.True(t, os.IsNotExist(err))
	}

	// Записи живы, но без путей
	list, err := s.ListDownloadsWithFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	// Повторный запуск ничего не находит
	removed, err = cs.CleanupAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestFreeDiskSpaceBelowThreshold(t *testing.T) {
	s := newTestStorage(t)
	root := t.TempDir()
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-quiet")
	user := mustCreateUser(t, s, 401)
	d := writeDownloadFile(t, s, root, user.ID, video.ID, "keep", 100)

	usage := func(path string) (DiskUsage, error) {
		return DiskUsage{Total: 1000, Used: 500, Available: 500}, nil
	}
	cs := NewCleanupService(s, root, time.Minute, 85, 70, usage)

	require.NoError(t, cs.FreeDiskSpace(ctx))

	_, err := os.Stat(*d.FilePath)
	assert.NoError(t, err, "ниже порога ничего не удаляется")
}

func TestFreeDiskSpaceEvictsOldestFirst(t *testing.T) {
	s := newTestStorage(t)
	root := t.TempDir()
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-evict")
	user := mustCreateUser(t, s, 402)

	// Три файла по 100 байт, от старого к новому
	var downloads []*Download
	for _, name := range []string{"old", "mid", "new"} {
		downloads = append(downloads, writeDownloadFile(t, s, root, user.ID, video.ID, name, 100))
		time.Sleep(1100 * time.Millisecond)
	}

	// Занято 90%, цель 70%: освободить 200 байт — два старейших файла
	usage := func(path string) (DiskUsage, error) {
		return DiskUsage{Total: 1000, Used: 900, Available: 100}, nil
	}
	cs := NewCleanupService(s, root, time.Minute, 85, 70, usage)

	require.NoError(t, cs.FreeDiskSpace(ctx))

	_, err := os.Stat(*downloads[0].FilePath)
	assert.True(t, os.IsNotExist(err), "старейший файл удален")
	_, err = os.Stat(*downloads[1].FilePath)
	assert.True(t, os.IsNotExist(err), "второй по возрасту удален")
	_, err = os.Stat(*downloads[2].FilePath)
	assert.NoError(t, err, "новейший файл остался")

	list, err := s.ListDownloadsWithFiles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, downloads[2].ID, list[0].ID)
}

func TestFreeDiskSpaceMissingFileIsSkipped(t *testing.T) {
	s := newTestStorage(t)
	root := t.TempDir()
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-ghost")
	user := mustCreateUser(t, s, 403)

	d := writeDownloadFile(t, s, root, user.ID, video.ID, "ghost", 100)
	require.NoError(t, os.Remove(*d.FilePath))

	usage := func(path string) (DiskUsage, error) {
		return DiskUsage{Total: 1000, Used: 900, Available: 100}, nil
	}
	cs := NewCleanupService(s, root, time.Minute, 85, 70, usage)

	// Файла нет на диске — путь все равно обнуляется без ошибки
	require.NoError(t, cs.FreeDiskSpace(ctx))

	list, err := s.ListDownloadsWithFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRunSchedulerStopsOnContext(t *testing.T) {
	s := newTestStorage(t)
	cs := NewCleanupService(s, t.TempDir(), 10*time.Millisecond, 85, 70,
		func(path string) (DiskUsage, error) {
			return DiskUsage{Total: 1000, Used: 100, Available: 900}, nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cs.RunScheduler(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("планировщик не остановился по контексту")
	}
}

func TestDiskUsagePercent(t *testing.T) {
	assert.Equal(t, 0.0, DiskUsage{}.UsedPercent())
	assert.InDelta(t, 90.0, DiskUsage{Total: 1000, Used: 900}.UsedPercent(), 0.001)
}
