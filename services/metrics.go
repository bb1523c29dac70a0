package services

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricDownloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "videobot_downloads_total",
		Help: "Общее число запросов на загрузку.",
	})
	metricDownloadsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "videobot_downloads_completed_total",
		Help: "Число успешно завершенных загрузок.",
	})
	metricDownloadsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "videobot_downloads_failed_total",
		Help: "Число загрузок, завершившихся ошибкой.",
	})
	metricDedupHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "videobot_downloads_dedup_hits_total",
		Help: "Число загрузок, отданных из существующего результата без скачивания.",
	})
	metricCleanupRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "videobot_cleanup_runs_total",
		Help: "Число проходов фоновой очистки.",
	})
	metricCleanupFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "videobot_cleanup_files_total",
		Help: "Число файлов, удаленных очисткой.",
	})
	metricCleanupBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "videobot_cleanup_bytes_total",
		Help: "Объем освобожденного очисткой места в байтах.",
	})
)

// ServeMetrics поднимает HTTP-сервер метрик на указанном адресе.
// Пустой адрес — метрики выключены.
func ServeMetrics(addr string) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("📈 Сервер метрик запущен на %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("⚠️ Сервер метрик остановлен: %v", err)
		}
	}()
}
