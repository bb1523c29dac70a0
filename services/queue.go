package services

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// DownloadTask — задание очереди загрузок
type DownloadTask struct {
	Video         *Video
	User          *User
	Quality       string
	FormatType    FormatType
	RequestedSize int64
	ChatID        int64
	// Done вызывается воркером после завершения (в том числе с failed-записью)
	Done func(record *Download, err error)
}

// DownloadQueue — пул воркеров, выполняющих загрузки по очереди.
// Оркестратор сам сериализует одинаковые запросы, очередь только
// ограничивает параллелизм
type DownloadQueue struct {
	tasks     chan DownloadTask
	workers   int
	downloads *DownloadService
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewDownloadQueue создает очередь загрузок
func NewDownloadQueue(workers int, downloads *DownloadService) *DownloadQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &DownloadQueue{
		tasks:     make(chan DownloadTask, 1000),
		workers:   workers,
		downloads: downloads,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start запускает воркеры очереди
func (q *DownloadQueue) Start() {
	log.Printf("🚀 Запуск очереди загрузок с %d воркерами", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Stop останавливает очередь и дожидается воркеров
func (q *DownloadQueue) Stop() {
	log.Printf("🛑 Остановка очереди загрузок...")
	q.cancel()
	q.wg.Wait()
	log.Printf("✅ Очередь загрузок остановлена")
}

// Enqueue ставит задание в очередь
func (q *DownloadQueue) Enqueue(task DownloadTask) error {
	select {
	case <-q.ctx.Done():
		return fmt.Errorf("очередь остановлена")
	default:
	}

	select {
	case q.tasks <- task:
		log.Printf("📝 Задание в очереди: видео %d для пользователя %d (%s, %s)",
			task.Video.ID, task.User.TelegramID, task.Quality, task.FormatType)
		return nil
	default:
		return fmt.Errorf("очередь переполнена")
	}
}

// Pending возвращает число заданий, ожидающих воркера
func (q *DownloadQueue) Pending() int {
	return len(q.tasks)
}

func (q *DownloadQueue) worker(workerID int) {
	defer q.wg.Done()

	log.Printf("👷 Воркер %d запущен", workerID)

	for {
		select {
		case task := <-q.tasks:
			log.Printf("🔄 Воркер %d: видео %d (%s, %s)",
				workerID, task.Video.ID, task.Quality, task.FormatType)

			record, err := q.downloads.Download(q.ctx, task.Video, task.User,
				task.Quality, task.FormatType, task.RequestedSize)
			if task.Done != nil {
				task.Done(record, err)
			}

		case <-q.ctx.Done():
			log.Printf("👷 Воркер %d остановлен", workerID)
			return
		}
	}
}
