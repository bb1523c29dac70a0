package services

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// VideoCatalog отвечает за записи видео: одна запись на video_id,
// метаданные заполняются при первом обращении и больше не меняются.
type VideoCatalog struct {
	storage     *Storage
	detector    *PlatformDetector
	fetcher     MetadataFetcher
	maxDuration int // секунды
}

// NewVideoCatalog создает каталог видео
func NewVideoCatalog(storage *Storage, detector *PlatformDetector, fetcher MetadataFetcher, maxDuration int) *VideoCatalog {
	return &VideoCatalog{
		storage:     storage,
		detector:    detector,
		fetcher:     fetcher,
		maxDuration: maxDuration,
	}
}

// GetOrCreate возвращает запись видео для URL, создавая её при первом
// обращении. Любая проблема (нераспознанный URL, ошибка платформы, слишком
// длинное видео) дает nil без ошибки — наверх уходит только отказ хранилища.
func (c *VideoCatalog) GetOrCreate(ctx context.Context, url string) (*Video, error) {
	videoID, platform, ok := c.detector.Resolve(url)
	if !ok {
		log.Printf("❓ Не удалось распознать URL: %s", url)
		return nil, nil
	}

	video, err := c.storage.GetVideoByVideoID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video != nil {
		return video, nil
	}

	info, err := c.fetcher.FetchMetadata(ctx, url)
	if err != nil {
		log.Printf("❌ Ошибка получения метаданных %s: %v", url, err)
		return nil, nil
	}

	if c.maxDuration > 0 && info.Duration > c.maxDuration {
		log.Printf("⏱️ Видео %s слишком длинное: %d сек (лимит %d)", videoID, info.Duration, c.maxDuration)
		return nil, nil
	}

	video = &Video{
		VideoID:          videoID,
		Platform:         string(platform),
		URL:              url,
		Title:            info.Title,
		Description:      info.Description,
		Duration:         info.Duration,
		ViewCount:        info.ViewCount,
		LikeCount:        info.LikeCount,
		ChannelName:      info.ChannelName,
		ChannelID:        info.ChannelID,
		UploadDate:       parseUploadDate(info.UploadDate),
		Thumbnail:        info.Thumbnail,
		AvailableFormats: encodeFormats(usableFormats(info.Formats, info.Duration)),
	}

	if err := c.storage.CreateVideo(ctx, video); err != nil {
		// Гонка: параллельный запрос мог успеть создать запись
		existing, getErr := c.storage.GetVideoByVideoID(ctx, videoID)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}

	log.Printf("💾 Видео добавлено в каталог: %s [%s] %s", videoID, platform, video.Title)
	return video, nil
}

// AvailableFormats декодирует сохраненный JSON-список форматов
func (c *VideoCatalog) AvailableFormats(v *Video) []VideoFormat {
	var formats []VideoFormat
	if err := json.Unmarshal([]byte(v.AvailableFormats), &formats); err != nil {
		log.Printf("⚠️ Не удалось декодировать форматы видео %s: %v", v.VideoID, err)
		return nil
	}
	return formats
}

// usableFormats отбирает видеоформаты и добирает размер из битрейта,
// когда платформа его не отдала
func usableFormats(formats []VideoFormat, duration int) []VideoFormat {
	var result []VideoFormat
	for _, f := range formats {
		// Отсеиваем только явное аудио; пустой vcodec платформа могла не отдать
		if f.VCodec == "none" {
			continue
		}
		if f.FileSize == 0 && f.TBR > 0 && duration > 0 {
			// tbr в кбит/с: переводим в байты за всю длительность
			f.FileSize = int64(f.TBR * 1000 * float64(duration) / 8)
		}
		result = append(result, f)
	}
	return result
}

func encodeFormats(formats []VideoFormat) string {
	if len(formats) == 0 {
		return "[]"
	}
	data, err := json.Marshal(formats)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// parseUploadDate разбирает дату вида YYYYMMDD, мусор дает nil
func parseUploadDate(s string) *time.Time {
	if len(s) != 8 {
		return nil
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return nil
	}
	return &t
}
