package utils

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// FormatFileSize форматирует размер файла в человекочитаемый вид
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d Б", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"КБ", "МБ", "ГБ", "ТБ"}
	return fmt.Sprintf("%.1f %s", float64(size)/float64(div), units[exp])
}

// FormatDuration форматирует длительность видео в MM:SS или HH:MM:SS
func FormatDuration(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// SanitizeFilename очищает имя файла от недопустимых символов
func SanitizeFilename(filename string) string {
	// Заменяем недопустимые символы на подчеркивания
	invalidChars := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalidChars {
		result = strings.ReplaceAll(result, char, "_")
	}

	return result
}

// RetryWithBackoff выполняет функцию с повторными попытками и экспоненциальной задержкой
func RetryWithBackoff(operation func() error, maxRetries int, baseDelay time.Duration) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Экспоненциальная задержка: 1s, 2s, 4s, 8s, 16s
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			log.Printf("🔄 Попытка %d/%d через %v...", attempt+1, maxRetries+1, delay)
			time.Sleep(delay)
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				log.Printf("✅ Операция успешна после %d попыток", attempt+1)
			}
			return nil
		}

		lastErr = err
		log.Printf("❌ Попытка %d/%d неудачна: %v", attempt+1, maxRetries+1, err)
	}

	log.Printf("💥 Все %d попыток исчерпаны", maxRetries+1)
	return lastErr
}
