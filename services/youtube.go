package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// YouTubeMetadata — быстрый путь получения метаданных для YouTube через
// нативный клиент, без запуска yt-dlp. Для остальных платформ и при любой
// ошибке — fallback на универсальный экстрактор.
type YouTubeMetadata struct {
	client   *youtube.Client
	fallback MetadataFetcher
	detector *PlatformDetector
}

// NewYouTubeMetadata создает фетчер с нативным YouTube-клиентом
func NewYouTubeMetadata(httpClient *http.Client, fallback MetadataFetcher, detector *PlatformDetector) *YouTubeMetadata {
	return &YouTubeMetadata{
		client:   &youtube.Client{HTTPClient: httpClient},
		fallback: fallback,
		detector: detector,
	}
}

// FetchMetadata получает метаданные видео
func (y *YouTubeMetadata) FetchMetadata(ctx context.Context, url string) (*VideoInfo, error) {
	info := y.detector.DetectPlatform(url)
	if info.Type != PlatformYouTube {
		return y.fallback.FetchMetadata(ctx, url)
	}

	video, err := y.client.GetVideoContext(ctx, url)
	if err != nil {
		log.Printf("⚠️ Нативный YouTube клиент не справился (%v), переключаюсь на yt-dlp", err)
		return y.fallback.FetchMetadata(ctx, url)
	}

	result := &VideoInfo{
		VideoID:     video.ID,
		Title:       video.Title,
		Description: video.Description,
		Duration:    int(video.Duration.Seconds()),
		ViewCount:   int64(video.Views),
		ChannelName: video.Author,
		ChannelID:   video.ChannelID,
		UploadDate:  video.PublishDate.Format("20060102"),
	}

	// Лучшая по ширине миниатюра
	var maxWidth uint
	for _, t := range video.Thumbnails {
		if t.Width >= maxWidth {
			maxWidth = t.Width
			result.Thumbnail = t.URL
		}
	}

	for _, f := range video.Formats {
		result.Formats = append(result.Formats, VideoFormat{
			FormatID: strconv.Itoa(f.ItagNo),
			Ext:      extFromMimeType(f.MimeType),
			Height:   f.Height,
			VCodec:   vcodecFromMimeType(f.MimeType),
			ACodec:   acodecFromMimeType(f.MimeType),
			FileSize: f.ContentLength,
			TBR:      float64(f.Bitrate) / 1000,
		})
	}

	log.Printf("✅ Метаданные получены нативным клиентом: %s (%d форматов)", result.Title, len(result.Formats))
	return result, nil
}

// extFromMimeType извлекает расширение из MIME-типа вида video/mp4; codecs="..."
func extFromMimeType(mimeType string) string {
	main := mimeType
	if idx := strings.Index(main, ";"); idx > 0 {
		main = main[:idx]
	}
	parts := strings.SplitN(main, "/", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

// vcodecFromMimeType возвращает видеокодек или "none" для чисто аудио форматов
func vcodecFromMimeType(mimeType string) string {
	if strings.HasPrefix(mimeType, "audio/") {
		return "none"
	}
	codecs := codecsFromMimeType(mimeType)
	if len(codecs) > 0 {
		return codecs[0]
	}
	return ""
}

// acodecFromMimeType возвращает аудиокодек или "none" для чисто видео форматов
func acodecFromMimeType(mimeType string) string {
	codecs := codecsFromMimeType(mimeType)
	if strings.HasPrefix(mimeType, "audio/") {
		if len(codecs) > 0 {
			return codecs[0]
		}
		return ""
	}
	if len(codecs) > 1 {
		return codecs[1]
	}
	return "none"
}

func codecsFromMimeType(mimeType string) []string {
	idx := strings.Index(mimeType, `codecs="`)
	if idx < 0 {
		return nil
	}
	rest := mimeType[idx+len(`codecs="`):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return nil
	}
	var codecs []string
	for _, c := range strings.Split(rest[:end], ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			codecs = append(codecs, c)
		}
	}
	return codecs
}

// FormatHeights возвращает уникальные высоты видеоформатов по убыванию,
// для построения клавиатуры выбора качества
func FormatHeights(formats []VideoFormat) []int {
	seen := make(map[int]bool)
	var heights []int
	for _, f := range formats {
		if f.VCodec == "none" || f.Height == 0 {
			continue
		}
		if !seen[f.Height] {
			seen[f.Height] = true
			heights = append(heights, f.Height)
		}
	}
	// Сортировка вставками, список короткий
	for i := 1; i < len(heights); i++ {
		for j := i; j > 0 && heights[j] > heights[j-1]; j-- {
			heights[j], heights[j-1] = heights[j-1], heights[j]
		}
	}
	return heights
}

// QualityLabel форматирует высоту в подпись кнопки ("720p")
func QualityLabel(height int) string {
	return fmt.Sprintf("%dp", height)
}
