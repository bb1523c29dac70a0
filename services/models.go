package services

import "time"

// DownloadStatus представляет состояние загрузки
type DownloadStatus string

const (
	StatusPending     DownloadStatus = "pending"
	StatusDownloading DownloadStatus = "downloading"
	StatusCompleted   DownloadStatus = "completed"
	StatusFailed      DownloadStatus = "failed"
	// Зарезервировано, переходов в это состояние пока нет
	StatusCancelled DownloadStatus = "cancelled"
)

// FormatType представляет тип запрошенного формата
type FormatType string

const (
	FormatVideo FormatType = "video"
	FormatMP3   FormatType = "mp3"
)

// Video — запись о видео в каталоге. Метаданные заполняются один раз
// при создании и дальше не меняются; изменяются только кэш-поля
// (file_size, quality, format_id) и счетчик скачиваний.
type Video struct {
	ID          int64
	VideoID     string // ID на платформе, уникален
	Platform    string
	URL         string
	Title       string
	Description string
	Duration    int // секунды
	ViewCount   int64
	LikeCount   int64
	ChannelName string
	ChannelID   string
	UploadDate  *time.Time // NULL если дата не распарсилась
	Thumbnail   string
	// JSON-список доступных форматов
	AvailableFormats string
	// Кэш последней успешной загрузки
	FileSize      int64
	Quality       string
	FormatID      string
	DownloadCount int
	CreatedAt     time.Time
}

// User — пользователь бота
type User struct {
	ID             int64
	TelegramID     int64
	FullName       string
	Username       string
	IsAdmin        bool
	IsBlocked      bool
	TotalDownloads int
	TotalBytes     int64
	CreatedAt      time.Time
	LastDownloadAt *time.Time
}

// Download — запись аудита одной попытки загрузки.
// Повторная попытка это всегда новая запись, статусы движутся только вперед.
type Download struct {
	ID             int64
	UserID         int64
	VideoID        int64 // FK на videos.id
	Quality        string
	FormatType     FormatType
	Status         DownloadStatus
	FilePath       *string
	TelegramFileID *string
	FileSize       *int64
	ErrorMessage   *string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// HasDurableCopy сообщает, есть ли у записи хоть один указатель на контент
func (d *Download) HasDurableCopy() bool {
	return (d.FilePath != nil && *d.FilePath != "") ||
		(d.TelegramFileID != nil && *d.TelegramFileID != "")
}

// VideoFormat — один формат из метаданных платформы
type VideoFormat struct {
	FormatID string  `json:"format_id"`
	Ext      string  `json:"ext"`
	Height   int     `json:"height"`
	VCodec   string  `json:"vcodec"`
	ACodec   string  `json:"acodec"`
	FileSize int64   `json:"filesize"`
	TBR      float64 `json:"tbr"` // средний битрейт, кбит/с
}

// VideoInfo — метаданные видео, полученные от платформы
type VideoInfo struct {
	VideoID     string
	Title       string
	Description string
	Duration    int
	ViewCount   int64
	LikeCount   int64
	ChannelName string
	ChannelID   string
	UploadDate  string // YYYYMMDD как отдает платформа
	Thumbnail   string
	Formats     []VideoFormat
}
