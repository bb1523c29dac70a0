package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage — репозиторий поверх SQLite. Все запросы — прямой SQL,
// мьютекс защищает от гонок при параллельных загрузках.
type Storage struct {
	db    *sql.DB
	mutex sync.RWMutex
}

// NewStorage открывает базу данных и создает схему
func NewStorage(dbPath string) (*Storage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("ошибка создания директории БД: %v", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия БД: %v", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка создания схемы: %v", err)
	}

	return &Storage{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS videos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			video_id TEXT NOT NULL UNIQUE,
			platform TEXT NOT NULL DEFAULT 'youtube',
			url TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			duration INTEGER NOT NULL DEFAULT 0,
			view_count INTEGER NOT NULL DEFAULT 0,
			like_count INTEGER NOT NULL DEFAULT 0,
			channel_name TEXT NOT NULL DEFAULT '',
			channel_id TEXT NOT NULL DEFAULT '',
			upload_date DATETIME,
			thumbnail_url TEXT NOT NULL DEFAULT '',
			available_formats TEXT NOT NULL DEFAULT '[]',
			file_size INTEGER NOT NULL DEFAULT 0,
			quality TEXT NOT NULL DEFAULT '',
			format_id TEXT NOT NULL DEFAULT '',
			download_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER NOT NULL UNIQUE,
			full_name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			is_admin INTEGER NOT NULL DEFAULT 0,
			is_blocked INTEGER NOT NULL DEFAULT 0,
			total_downloads INTEGER NOT NULL DEFAULT 0,
			total_bytes INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_download_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS downloads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			video_id INTEGER NOT NULL REFERENCES videos(id),
			quality TEXT NOT NULL DEFAULT '',
			format_type TEXT NOT NULL DEFAULT 'video',
			status TEXT NOT NULL DEFAULT 'pending',
			file_path TEXT,
			telegram_file_id TEXT,
			file_size INTEGER,
			error_message TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			started_at DATETIME,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_videos_video_id ON videos(video_id)`,
		`CREATE INDEX IF NOT EXISTS idx_videos_download_count ON videos(download_count)`,
		`CREATE INDEX IF NOT EXISTS idx_users_telegram_id ON users(telegram_id)`,
		`CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status)`,
		`CREATE INDEX IF NOT EXISTS idx_downloads_user ON downloads(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_downloads_video ON downloads(video_id)`,
		`CREATE INDEX IF NOT EXISTS idx_downloads_dedup ON downloads(video_id, quality, format_type, status)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Close закрывает соединение с БД
func (s *Storage) Close() error {
	return s.db.Close()
}

// ---------- videos ----------

const videoColumns = `id, video_id, platform, url, title, description, duration,
	view_count, like_count, channel_name, channel_id, upload_date, thumbnail_url,
	available_formats, file_size, quality, format_id, download_count, created_at`

func scanVideo(row interface{ Scan(...any) error }) (*Video, error) {
	var v Video
	var uploadDate sql.NullTime
	err := row.Scan(
		&v.ID, &v.VideoID, &v.Platform, &v.URL, &v.Title, &v.Description, &v.Duration,
		&v.ViewCount, &v.LikeCount, &v.ChannelName, &v.ChannelID, &uploadDate, &v.Thumbnail,
		&v.AvailableFormats, &v.FileSize, &v.Quality, &v.FormatID, &v.DownloadCount, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if uploadDate.Valid {
		t := uploadDate.Time
		v.UploadDate = &t
	}
	return &v, nil
}

// GetVideoByVideoID возвращает видео по ID платформы, nil если его нет
func (s *Storage) GetVideoByVideoID(ctx context.Context, videoID string) (*Video, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE video_id = ?`, videoID)
	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения видео: %v", err)
	}
	return v, nil
}

// GetVideoByID возвращает видео по первичному ключу
func (s *Storage) GetVideoByID(ctx context.Context, id int64) (*Video, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения видео: %v", err)
	}
	return v, nil
}

// CreateVideo сохраняет новое видео в каталоге
func (s *Storage) CreateVideo(ctx context.Context, v *Video) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO videos (video_id, platform, url, title, description, duration,
			view_count, like_count, channel_name, channel_id, upload_date, thumbnail_url,
			available_formats, file_size, quality, format_id, download_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		v.VideoID, v.Platform, v.URL, v.Title, v.Description, v.Duration,
		v.ViewCount, v.LikeCount, v.ChannelName, v.ChannelID, nullTime(v.UploadDate), v.Thumbnail,
		v.AvailableFormats, v.FileSize, v.Quality, v.FormatID)
	if err != nil {
		return fmt.Errorf("ошибка сохранения видео: %v", err)
	}
	v.ID, _ = res.LastInsertId()
	v.CreatedAt = time.Now()
	return nil
}

// IncrementVideoDownloads увеличивает счетчик скачиваний видео
func (s *Storage) IncrementVideoDownloads(ctx context.Context, id int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE videos SET download_count = download_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления счетчика: %v", err)
	}
	return nil
}

// UpdateVideoFileCache запоминает параметры последней успешной загрузки
func (s *Storage) UpdateVideoFileCache(ctx context.Context, id int64, fileSize int64, quality, formatID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE videos SET file_size = ?, quality = ?, format_id = ? WHERE id = ?`,
		fileSize, quality, formatID, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления кэша видео: %v", err)
	}
	return nil
}

// GetPopularVideos возвращает топ видео по числу скачиваний
func (s *Storage) GetPopularVideos(ctx context.Context, limit int) ([]Video, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos
		 WHERE download_count > 0
		 ORDER BY download_count DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения популярных видео: %v", err)
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			log.Printf("⚠️ Ошибка сканирования строки: %v", err)
			continue
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

// ---------- users ----------

const userColumns = `id, telegram_id, full_name, username, is_admin, is_blocked,
	total_downloads, total_bytes, created_at, last_download_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var last sql.NullTime
	err := row.Scan(&u.ID, &u.TelegramID, &u.FullName, &u.Username, &u.IsAdmin, &u.IsBlocked,
		&u.TotalDownloads, &u.TotalBytes, &u.CreatedAt, &last)
	if err != nil {
		return nil, err
	}
	if last.Valid {
		t := last.Time
		u.LastDownloadAt = &t
	}
	return &u, nil
}

// GetUserByTelegramID возвращает пользователя, nil если не найден
func (s *Storage) GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения пользователя: %v", err)
	}
	return u, nil
}

// GetUserByID возвращает пользователя по первичному ключу
func (s *Storage) GetUserByID(ctx context.Context, id int64) (*User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения пользователя: %v", err)
	}
	return u, nil
}

// CreateUser сохраняет нового пользователя
func (s *Storage) CreateUser(ctx context.Context, u *User) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (telegram_id, full_name, username, is_admin, is_blocked)
		VALUES (?, ?, ?, ?, ?)`,
		u.TelegramID, u.FullName, u.Username, u.IsAdmin, u.IsBlocked)
	if err != nil {
		return fmt.Errorf("ошибка сохранения пользователя: %v", err)
	}
	u.ID, _ = res.LastInsertId()
	u.CreatedAt = time.Now()
	return nil
}

// UpdateUserProfile обновляет имя и username (они меняются в Telegram)
func (s *Storage) UpdateUserProfile(ctx context.Context, telegramID int64, fullName, username string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET full_name = ?, username = ? WHERE telegram_id = ?`,
		fullName, username, telegramID)
	if err != nil {
		return fmt.Errorf("ошибка обновления профиля: %v", err)
	}
	return nil
}

// SetUserBlocked блокирует или разблокирует пользователя
func (s *Storage) SetUserBlocked(ctx context.Context, telegramID int64, blocked bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_blocked = ? WHERE telegram_id = ?`, blocked, telegramID)
	if err != nil {
		return fmt.Errorf("ошибка блокировки пользователя: %v", err)
	}
	return nil
}

// BumpUserDownload обновляет личную статистику после успешной загрузки
func (s *Storage) BumpUserDownload(ctx context.Context, userID int64, bytes int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET total_downloads = total_downloads + 1,
			total_bytes = total_bytes + ?,
			last_download_at = CURRENT_TIMESTAMP
		WHERE id = ?`, bytes, userID)
	if err != nil {
		return fmt.Errorf("ошибка обновления статистики пользователя: %v", err)
	}
	return nil
}

// ListActiveUserIDs возвращает telegram_id всех незаблокированных пользователей
func (s *Storage) ListActiveUserIDs(ctx context.Context) ([]int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT telegram_id FROM users WHERE is_blocked = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %v", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountUsers возвращает общее число пользователей
func (s *Storage) CountUsers(ctx context.Context) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета пользователей: %v", err)
	}
	return n, nil
}

// ---------- downloads ----------

const downloadColumns = `id, user_id, video_id, quality, format_type, status,
	file_path, telegram_file_id, file_size, error_message, created_at, started_at, completed_at`

func scanDownload(row interface{ Scan(...any) error }) (*Download, error) {
	var d Download
	var filePath, fileID, errMsg sql.NullString
	var fileSize sql.NullInt64
	var started, completed sql.NullTime
	err := row.Scan(&d.ID, &d.UserID, &d.VideoID, &d.Quality, &d.FormatType, &d.Status,
		&filePath, &fileID, &fileSize, &errMsg, &d.CreatedAt, &started, &completed)
	if err != nil {
		return nil, err
	}
	if filePath.Valid {
		d.FilePath = &filePath.String
	}
	if fileID.Valid {
		d.TelegramFileID = &fileID.String
	}
	if fileSize.Valid {
		d.FileSize = &fileSize.Int64
	}
	if errMsg.Valid {
		d.ErrorMessage = &errMsg.String
	}
	if started.Valid {
		d.StartedAt = &started.Time
	}
	if completed.Valid {
		d.CompletedAt = &completed.Time
	}
	return &d, nil
}

// CreateDownload сохраняет новую запись аудита в состоянии pending
func (s *Storage) CreateDownload(ctx context.Context, d *Download) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if d.Status == "" {
		d.Status = StatusPending
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (user_id, video_id, quality, format_type, status)
		VALUES (?, ?, ?, ?, ?)`,
		d.UserID, d.VideoID, d.Quality, d.FormatType, d.Status)
	if err != nil {
		return fmt.Errorf("ошибка создания записи загрузки: %v", err)
	}
	d.ID, _ = res.LastInsertId()
	d.CreatedAt = time.Now()
	return nil
}

// GetDownload возвращает запись по ID
func (s *Storage) GetDownload(ctx context.Context, id int64) (*Download, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+downloadColumns+` FROM downloads WHERE id = ?`, id)
	d, err := scanDownload(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения загрузки: %v", err)
	}
	return d, nil
}

// FindCompletedDownload ищет завершенную загрузку того же видео с теми же
// параметрами, у которой сохранился хотя бы один указатель на контент
func (s *Storage) FindCompletedDownload(ctx context.Context, videoID int64, quality string, formatType FormatType) (*Download, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+downloadColumns+` FROM downloads
		WHERE video_id = ? AND quality = ? AND format_type = ? AND status = ?
		  AND (file_path IS NOT NULL OR telegram_file_id IS NOT NULL)
		ORDER BY completed_at DESC LIMIT 1`,
		videoID, quality, formatType, StatusCompleted)
	d, err := scanDownload(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска завершенной загрузки: %v", err)
	}
	return d, nil
}

// MarkDownloading переводит запись в состояние downloading
func (s *Storage) MarkDownloading(ctx context.Context, id int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET status = ?, started_at = CURRENT_TIMESTAMP
		WHERE id = ?`, StatusDownloading, id)
	if err != nil {
		return fmt.Errorf("ошибка перевода в downloading: %v", err)
	}
	return nil
}

// MarkCompleted переводит запись в состояние completed с путем и размером файла
func (s *Storage) MarkCompleted(ctx context.Context, id int64, filePath string, fileSize int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET status = ?, file_path = ?, file_size = ?,
			error_message = NULL, completed_at = CURRENT_TIMESTAMP
		WHERE id = ?`, StatusCompleted, filePath, fileSize, id)
	if err != nil {
		return fmt.Errorf("ошибка перевода в completed: %v", err)
	}
	return nil
}

// MarkCompletedFrom копирует результат существующей загрузки на новую запись
// аудита (попадание в дедупликацию — файл заново не скачивается).
// file_path не копируется: файлом на диске владеет ровно одна запись,
// иначе очистка считала бы один файл дважды
func (s *Storage) MarkCompletedFrom(ctx context.Context, id int64, src *Download) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET status = ?, telegram_file_id = ?,
			file_size = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		StatusCompleted, nullString(src.TelegramFileID),
		nullInt64(src.FileSize), id)
	if err != nil {
		return fmt.Errorf("ошибка копирования результата загрузки: %v", err)
	}
	return nil
}

// MarkFailed переводит запись в состояние failed с текстом ошибки
func (s *Storage) MarkFailed(ctx context.Context, id int64, message string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET status = ?, error_message = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ?`, StatusFailed, message, id)
	if err != nil {
		return fmt.Errorf("ошибка перевода в failed: %v", err)
	}
	return nil
}

// SetTelegramFileID сохраняет file_id после отправки файла в Telegram
func (s *Storage) SetTelegramFileID(ctx context.Context, id int64, fileID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE downloads SET telegram_file_id = ? WHERE id = ?`, fileID, id)
	if err != nil {
		return fmt.Errorf("ошибка сохранения file_id: %v", err)
	}
	return nil
}

// ClearFilePath обнуляет путь к файлу после удаления с диска
func (s *Storage) ClearFilePath(ctx context.Context, id int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE downloads SET file_path = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка обнуления пути: %v", err)
	}
	return nil
}

// ListDownloadsWithFiles возвращает завершенные загрузки с файлами на диске,
// старые первыми
func (s *Storage) ListDownloadsWithFiles(ctx context.Context) ([]Download, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+downloadColumns+` FROM downloads
		WHERE status = ? AND file_path IS NOT NULL
		ORDER BY completed_at ASC`, StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения загрузок с файлами: %v", err)
	}
	defer rows.Close()

	var result []Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			log.Printf("⚠️ Ошибка сканирования строки: %v", err)
			continue
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

// GetUserDownloads возвращает последние загрузки пользователя
func (s *Storage) GetUserDownloads(ctx context.Context, userID int64, limit int) ([]Download, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+downloadColumns+` FROM downloads
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории загрузок: %v", err)
	}
	defer rows.Close()

	var result []Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			log.Printf("⚠️ Ошибка сканирования строки: %v", err)
			continue
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

// CountDownloads возвращает общее число загрузок и разбивку по статусам
func (s *Storage) CountDownloads(ctx context.Context) (total, completed, failed int, err error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM downloads`, StatusCompleted, StatusFailed).
		Scan(&total, &completed, &failed)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("ошибка подсчета загрузок: %v", err)
	}
	return total, completed, failed, nil
}

// sqliteTime приводит момент к формату CURRENT_TIMESTAMP (UTC),
// чтобы сравнение строк в SQLite было корректным
func sqliteTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// CountDownloadsSince возвращает число загрузок, созданных после указанного момента
func (s *Storage) CountDownloadsSince(ctx context.Context, since time.Time) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM downloads WHERE created_at >= ?`, sqliteTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета загрузок за период: %v", err)
	}
	return n, nil
}

// CountUserDownloadsSince возвращает число загрузок пользователя за период
func (s *Storage) CountUserDownloadsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM downloads WHERE user_id = ? AND created_at >= ?`,
		userID, sqliteTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета загрузок пользователя: %v", err)
	}
	return n, nil
}

// UserReportRow — строка месячного отчета по пользователю
type UserReportRow struct {
	UserID    int64
	Total     int
	Completed int
	Failed    int
	Bytes     int64
}

// DownloadsReportSince группирует загрузки по пользователям за период,
// сортировка по убыванию общего числа
func (s *Storage) DownloadsReportSince(ctx context.Context, since time.Time) ([]UserReportRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN COALESCE(file_size, 0) ELSE 0 END), 0)
		FROM downloads WHERE created_at >= ?
		GROUP BY user_id ORDER BY COUNT(*) DESC`,
		StatusCompleted, StatusFailed, StatusCompleted, sqliteTime(since))
	if err != nil {
		return nil, fmt.Errorf("ошибка построения отчета: %v", err)
	}
	defer rows.Close()

	var result []UserReportRow
	for rows.Next() {
		var r UserReportRow
		if err := rows.Scan(&r.UserID, &r.Total, &r.Completed, &r.Failed, &r.Bytes); err != nil {
			log.Printf("⚠️ Ошибка сканирования строки: %v", err)
			continue
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// ---------- null helpers ----------

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt64(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
