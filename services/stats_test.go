package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalStatsEmpty(t *testing.T) {
	s := newTestStorage(t)
	ss := NewStatsService(s, time.UTC)

	stats, err := ss.Global(context.Background())
	require.NoError(t, err)

	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.SuccessRate, "ноль загрузок не делит на ноль")
}

func TestGlobalStats(t *testing.T) {
	s := newTestStorage(t)
	ss := NewStatsService(s, time.UTC)
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-stats")
	user := mustCreateUser(t, s, 500)

	mk := func(status DownloadStatus) {
		d := &Download{UserID: user.ID, VideoID: video.ID, Quality: "720p", FormatType: FormatVideo}
		require.NoError(t, s.CreateDownload(ctx, d))
		switch status {
		case StatusCompleted:
			require.NoError(t, s.MarkCompleted(ctx, d.ID, "/tmp/f", 10))
		case StatusFailed:
			require.NoError(t, s.MarkFailed(ctx, d.ID, "ошибка"))
		}
	}
	mk(StatusCompleted)
	mk(StatusCompleted)
	mk(StatusCompleted)
	mk(StatusFailed)

	stats, err := ss.Global(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Users)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 75.0, stats.SuccessRate, 0.001)
	assert.Equal(t, 4, stats.Today, "свежие загрузки попадают в сегодня")
}

func TestForUser(t *testing.T) {
	s := newTestStorage(t)
	ss := NewStatsService(s, time.UTC)
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-user-stats")
	user := mustCreateUser(t, s, 501)
	other := mustCreateUser(t, s, 502)

	for _, uid := range []int64{user.ID, user.ID, other.ID} {
		d := &Download{UserID: uid, VideoID: video.ID, Quality: "720p", FormatType: FormatVideo}
		require.NoError(t, s.CreateDownload(ctx, d))
		require.NoError(t, s.MarkCompleted(ctx, d.ID, "/tmp/f", 100))
		require.NoError(t, s.BumpUserDownload(ctx, uid, 100))
	}

	fresh, err := s.GetUserByTelegramID(ctx, 501)
	require.NoError(t, err)

	stats, err := ss.ForUser(ctx, fresh)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, int64(200), stats.TotalBytes)
	assert.Equal(t, 2, stats.Today)
	assert.Equal(t, 2, stats.Week)
	assert.NotNil(t, stats.LastDownload)
}

func TestMonthlyReport(t *testing.T) {
	s := newTestStorage(t)
	ss := NewStatsService(s, time.UTC)
	ctx := context.Background()

	video := mustCreateVideo(t, s, "vid-report")
	user := mustCreateUser(t, s, 503)

	d := &Download{UserID: user.ID, VideoID: video.ID, Quality: "720p", FormatType: FormatVideo}
	require.NoError(t, s.CreateDownload(ctx, d))
	require.NoError(t, s.MarkCompleted(ctx, d.ID, "/tmp/f", 1024))

	bad := &Download{UserID: user.ID, VideoID: video.ID, Quality: "480p", FormatType: FormatVideo}
	require.NoError(t, s.CreateDownload(ctx, bad))
	require.NoError(t, s.MarkFailed(ctx, bad.ID, "ошибка"))

	report, err := ss.MonthlyReport(ctx)
	require.NoError(t, err)

	assert.Contains(t, report, "Отчет по загрузкам")
	assert.Contains(t, report, "Тест")
	// Блок пользователя: счетчики и процент успеха
	assert.Contains(t, report, "Загрузок: 2 (✅ 1 / ❌ 1, успех 50%)")
	assert.Contains(t, report, "Объем: 1.0 КБ")
	assert.Contains(t, report, "Итого: 2 загрузок")
}

func TestPopularVideos(t *testing.T) {
	s := newTestStorage(t)
	ss := NewStatsService(s, time.UTC)
	ctx := context.Background()

	a := mustCreateVideo(t, s, "vid-pop-a")
	b := mustCreateVideo(t, s, "vid-pop-b")
	mustCreateVideo(t, s, "vid-pop-zero")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.IncrementVideoDownloads(ctx, a.ID))
	}
	require.NoError(t, s.IncrementVideoDownloads(ctx, b.ID))

	videos, err := ss.PopularVideos(ctx, 10)
	require.NoError(t, err)

	require.Len(t, videos, 2, "видео без скачиваний в топ не попадает")
	assert.Equal(t, a.ID, videos[0].ID)
	assert.Equal(t, 3, videos[0].DownloadCount)
}
