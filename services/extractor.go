package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"videoBot/config"
	"videoBot/utils"
)

// MetadataFetcher получает метаданные видео с платформы
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, url string) (*VideoInfo, error)
}

// MediaFetcher скачивает контент в указанную директорию
type MediaFetcher interface {
	Fetch(ctx context.Context, url, selector, outDir string, maxBytes int64) error
}

// getYtDlpPath возвращает путь к yt-dlp
func getYtDlpPath() string {
	if _, err := exec.LookPath("/usr/local/bin/yt-dlp"); err == nil {
		return "/usr/local/bin/yt-dlp"
	}

	if _, err := exec.LookPath("yt-dlp"); err == nil {
		return "yt-dlp"
	}

	return "/usr/local/bin/yt-dlp" // По умолчанию
}

// YtDlpExtractor — извлечение метаданных и скачивание через yt-dlp
type YtDlpExtractor struct {
	proxy   *config.ProxyConfig
	timeout time.Duration
}

// NewYtDlpExtractor создает экстрактор с настройками прокси
func NewYtDlpExtractor(proxy *config.ProxyConfig) *YtDlpExtractor {
	return &YtDlpExtractor{
		proxy:   proxy,
		timeout: 3 * time.Minute,
	}
}

// CheckYtDlp проверяет наличие yt-dlp в системе
func (e *YtDlpExtractor) CheckYtDlp() error {
	if _, err := exec.LookPath("/usr/local/bin/yt-dlp"); err == nil {
		log.Printf("✅ yt-dlp найден по пути /usr/local/bin/yt-dlp")
		return nil
	}

	if _, err := exec.LookPath("yt-dlp"); err == nil {
		log.Printf("✅ yt-dlp найден по пути yt-dlp")
		return nil
	}

	return fmt.Errorf("yt-dlp не найден в системе. Проверьте установку")
}

// ytdlpInfo — нужная нам часть вывода --dump-json
type ytdlpInfo struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Duration    float64       `json:"duration"`
	ViewCount   int64         `json:"view_count"`
	LikeCount   int64         `json:"like_count"`
	Uploader    string        `json:"uploader"`
	ChannelID   string        `json:"channel_id"`
	UploadDate  string        `json:"upload_date"`
	Thumbnail   string        `json:"thumbnail"`
	Formats     []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	FormatID string  `json:"format_id"`
	Ext      string  `json:"ext"`
	Height   int     `json:"height"`
	VCodec   string  `json:"vcodec"`
	ACodec   string  `json:"acodec"`
	FileSize int64   `json:"filesize"`
	TBR      float64 `json:"tbr"`
}

// FetchMetadata получает метаданные видео через yt-dlp --dump-json
func (e *YtDlpExtractor) FetchMetadata(ctx context.Context, url string) (*VideoInfo, error) {
	log.Printf("📊 Получение метаданных для: %s", url)

	args := []string{
		"--dump-json",
		"--no-playlist",
		"--no-check-certificates",
		"--no-warnings",
		"--quiet",
	}
	args = append(args, e.proxy.GetProxyArgs()...)
	args = append(args, url)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var output []byte
	err := utils.RetryWithBackoff(func() error {
		cmd := exec.CommandContext(ctx, getYtDlpPath(), args...)
		out, err := cmd.CombinedOutput()
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("таймаут получения метаданных")
			}
			log.Printf("❌ Ошибка получения метаданных: %s", string(out))
			return fmt.Errorf("ошибка yt-dlp: %v", err)
		}
		output = out
		return nil
	}, 2, 2*time.Second)
	if err != nil {
		return nil, err
	}

	// yt-dlp может напечатать служебные строки до JSON
	raw := string(output)
	if idx := strings.Index(raw, "{"); idx > 0 {
		raw = raw[idx:]
	}

	var data ytdlpInfo
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("ошибка парсинга JSON: %v", err)
	}

	info := &VideoInfo{
		VideoID:     data.ID,
		Title:       data.Title,
		Description: data.Description,
		Duration:    int(data.Duration),
		ViewCount:   data.ViewCount,
		LikeCount:   data.LikeCount,
		ChannelName: data.Uploader,
		ChannelID:   data.ChannelID,
		UploadDate:  data.UploadDate,
		Thumbnail:   data.Thumbnail,
	}
	for _, f := range data.Formats {
		info.Formats = append(info.Formats, VideoFormat{
			FormatID: f.FormatID,
			Ext:      f.Ext,
			Height:   f.Height,
			VCodec:   f.VCodec,
			ACodec:   f.ACodec,
			FileSize: f.FileSize,
			TBR:      f.TBR,
		})
	}

	log.Printf("✅ Метаданные получены: %s (%d сек, %d форматов)", info.Title, info.Duration, len(info.Formats))
	return info, nil
}

// Fetch скачивает контент по селектору формата в указанную директорию
func (e *YtDlpExtractor) Fetch(ctx context.Context, url, selector, outDir string, maxBytes int64) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("не удалось создать папку для загрузки: %v", err)
	}

	log.Printf("💾 Скачивание: %s (формат %s)", url, selector)

	args := []string{
		"--format", selector,
		"--output", filepath.Join(outDir, "%(title)s.%(ext)s"),
		"--no-playlist",
		"--no-check-certificates",
		"--no-warnings",
		"--max-filesize", fmt.Sprintf("%d", maxBytes),
		"--socket-timeout", "60",
		"--retries", "5",
		"--merge-output-format", "mp4",
	}

	// Аудио принудительно конвертируем в MP3
	if selector == "bestaudio/best" {
		args = append(args, "--extract-audio", "--audio-format", "mp3", "--audio-quality", "0")
		log.Printf("🎵 Аудиоформат, конвертирую в MP3")
	}

	args = append(args, e.proxy.GetProxyArgs()...)
	args = append(args, url)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	return utils.RetryWithBackoff(func() error {
		cmd := exec.CommandContext(ctx, getYtDlpPath(), args...)
		log.Printf("🚀 Выполняю команду: %s", strings.Join(cmd.Args, " "))

		output, err := cmd.CombinedOutput()
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("таймаут скачивания")
			}
			log.Printf("❌ Ошибка yt-dlp: %s", string(output))
			return fmt.Errorf("ошибка yt-dlp: %v", err)
		}

		log.Printf("✅ yt-dlp выполнен успешно")
		return nil
	}, 1, 5*time.Second)
}

// FormatSelector строит селектор формата yt-dlp для запрошенного качества
func FormatSelector(quality string, formatType FormatType) string {
	if formatType == FormatMP3 {
		return "bestaudio/best"
	}
	h := strings.TrimSuffix(quality, "p")
	if h == "" {
		h = "720"
	}
	return fmt.Sprintf("bestvideo[height<=%s][vcodec^=avc1]+bestaudio/best[height<=%s]/best", h, h)
}
