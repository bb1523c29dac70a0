package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"videoBot/utils"
)

// StatsService — read-only проекции над хранилищем, ничего не меняет
type StatsService struct {
	storage  *Storage
	location *time.Location
}

// NewStatsService создает сервис статистики
func NewStatsService(storage *Storage, location *time.Location) *StatsService {
	if location == nil {
		location = time.UTC
	}
	return &StatsService{storage: storage, location: location}
}

// GlobalStats — сводная статистика бота
type GlobalStats struct {
	Users       int
	Total       int
	Completed   int
	Failed      int
	SuccessRate float64
	Today       int
}

// UserStats — личная статистика пользователя
type UserStats struct {
	Total        int
	TotalBytes   int64
	Today        int
	Week         int
	LastDownload *time.Time
}

// localMidnight возвращает начало сегодняшнего дня в настроенном поясе
func (ss *StatsService) localMidnight() time.Time {
	now := time.Now().In(ss.location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, ss.location)
}

// Global собирает сводную статистику
func (ss *StatsService) Global(ctx context.Context) (*GlobalStats, error) {
	users, err := ss.storage.CountUsers(ctx)
	if err != nil {
		return nil, err
	}

	total, completed, failed, err := ss.storage.CountDownloads(ctx)
	if err != nil {
		return nil, err
	}

	today, err := ss.storage.CountDownloadsSince(ctx, ss.localMidnight())
	if err != nil {
		return nil, err
	}

	stats := &GlobalStats{
		Users:     users,
		Total:     total,
		Completed: completed,
		Failed:    failed,
		Today:     today,
	}
	if total > 0 {
		stats.SuccessRate = float64(completed) / float64(total) * 100
	}
	return stats, nil
}

// ForUser собирает статистику одного пользователя
func (ss *StatsService) ForUser(ctx context.Context, user *User) (*UserStats, error) {
	today, err := ss.storage.CountUserDownloadsSince(ctx, user.ID, ss.localMidnight())
	if err != nil {
		return nil, err
	}

	week, err := ss.storage.CountUserDownloadsSince(ctx, user.ID, time.Now().AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}

	return &UserStats{
		Total:        user.TotalDownloads,
		TotalBytes:   user.TotalBytes,
		Today:        today,
		Week:         week,
		LastDownload: user.LastDownloadAt,
	}, nil
}

// PopularVideos возвращает топ видео по числу скачиваний
func (ss *StatsService) PopularVideos(ctx context.Context, limit int) ([]Video, error) {
	return ss.storage.GetPopularVideos(ctx, limit)
}

// MonthlyReport строит текстовый отчет по загрузкам за последние 30 дней,
// сгруппированный по пользователям
func (ss *StatsService) MonthlyReport(ctx context.Context) (string, error) {
	since := time.Now().AddDate(0, 0, -30)
	rows, err := ss.storage.DownloadsReportSince(ctx, since)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("📊 Отчет по загрузкам за 30 дней\n")
	b.WriteString(fmt.Sprintf("Сформирован: %s\n\n", time.Now().In(ss.location).Format("02.01.2006 15:04")))

	var grandTotal, grandCompleted, grandFailed int
	var grandBytes int64

	for _, row := range rows {
		name := "аноним"
		user, err := ss.storage.GetUserByID(ctx, row.UserID)
		if err == nil && user != nil {
			name = user.FullName
			if user.Username != "" {
				name += " (@" + user.Username + ")"
			}
		}

		var rate float64
		if row.Total > 0 {
			rate = float64(row.Completed) / float64(row.Total) * 100
		}

		b.WriteString(fmt.Sprintf("👤 %s\n", name))
		b.WriteString(fmt.Sprintf("   Загрузок: %d (✅ %d / ❌ %d, успех %.0f%%)\n",
			row.Total, row.Completed, row.Failed, rate))
		b.WriteString(fmt.Sprintf("   Объем: %s\n\n", utils.FormatFileSize(row.Bytes)))

		grandTotal += row.Total
		grandCompleted += row.Completed
		grandFailed += row.Failed
		grandBytes += row.Bytes
	}

	b.WriteString("━━━━━━━━━━━━━━━\n")
	b.WriteString(fmt.Sprintf("Итого: %d загрузок (✅ %d / ❌ %d), %s\n",
		grandTotal, grandCompleted, grandFailed, utils.FormatFileSize(grandBytes)))

	return b.String(), nil
}
