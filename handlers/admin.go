package handlers

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"videoBot/services"
	"videoBot/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// AdminHandler обрабатывает команды администраторов
type AdminHandler struct {
	api       *tgbotapi.BotAPI
	users     *services.UserService
	stats     *services.StatsService
	cleanup   *services.CleanupService
	broadcast *services.BroadcastService
	gate      *services.SubscriptionGate

	// Админы, от которых ждем сообщение для рассылки
	mu                sync.Mutex
	awaitingBroadcast map[int64]bool
}

// NewAdminHandler создает обработчик админских команд
func NewAdminHandler(
	api *tgbotapi.BotAPI,
	users *services.UserService,
	stats *services.StatsService,
	cleanup *services.CleanupService,
	broadcast *services.BroadcastService,
	gate *services.SubscriptionGate,
) *AdminHandler {
	return &AdminHandler{
		api:               api,
		users:             users,
		stats:             stats,
		cleanup:           cleanup,
		broadcast:         broadcast,
		gate:              gate,
		awaitingBroadcast: make(map[int64]bool),
	}
}

// HandleCommand обрабатывает админскую команду. false — команда не админская,
// пусть её разбирает общий обработчик.
func (a *AdminHandler) HandleCommand(ctx context.Context, user *services.User, message *tgbotapi.Message) bool {
	chatID := message.Chat.ID

	switch message.Command() {
	case "admin":
		a.sendPanel(ctx, chatID)
	case "broadcast":
		a.mu.Lock()
		a.awaitingBroadcast[user.TelegramID] = true
		a.mu.Unlock()
		a.send(chatID, "📢 Отправьте сообщение для рассылки (текст, фото, видео — что угодно). /cancel для отмены.")
	case "cancel":
		a.mu.Lock()
		waiting := a.awaitingBroadcast[user.TelegramID]
		delete(a.awaitingBroadcast, user.TelegramID)
		a.mu.Unlock()
		if !waiting {
			return false
		}
		a.send(chatID, "Рассылка отменена.")
	case "ban":
		a.handleBan(ctx, chatID, message.CommandArguments(), true)
	case "unban":
		a.handleBan(ctx, chatID, message.CommandArguments(), false)
	case "set_subscription":
		a.handleSetSubscription(chatID, message.CommandArguments())
	case "subscription_status":
		a.sendSubscriptionStatus(chatID)
	case "disable_subscription":
		a.gate.Disable()
		a.send(chatID, "✅ Требование подписки выключено.")
	default:
		return false
	}
	return true
}

// MaybeConsumeBroadcast перехватывает сообщение админа, ожидаемое для
// рассылки. true — сообщение потреблено.
func (a *AdminHandler) MaybeConsumeBroadcast(ctx context.Context, user *services.User, message *tgbotapi.Message) bool {
	if !user.IsAdmin || message.IsCommand() {
		return false
	}

	a.mu.Lock()
	waiting := a.awaitingBroadcast[user.TelegramID]
	if waiting {
		delete(a.awaitingBroadcast, user.TelegramID)
	}
	a.mu.Unlock()
	if !waiting {
		return false
	}

	a.send(message.Chat.ID, "📢 Рассылка запущена...")
	go func() {
		sent, failed := a.broadcast.SendToAll(ctx, message)
		a.send(message.Chat.ID, fmt.Sprintf("📢 Рассылка завершена: доставлено %d, ошибок %d", sent, failed))
	}()
	return true
}

// HandleCallback обрабатывает кнопки админ-панели (adm:*)
func (a *AdminHandler) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID
	a.api.Request(tgbotapi.NewCallback(callback.ID, ""))

	switch callback.Data {
	case "adm:report":
		a.sendReport(ctx, chatID)
	case "adm:users":
		a.sendUserExport(ctx, chatID)
	case "adm:cleanup":
		removed, err := a.cleanup.CleanupAll(ctx)
		if err != nil {
			log.Printf("❌ Ошибка полной очистки: %v", err)
			a.send(chatID, "❌ Ошибка очистки.")
			return
		}
		a.send(chatID, fmt.Sprintf("🧹 Удалено файлов: %d", removed))
	case "adm:popular":
		a.sendPopular(ctx, chatID)
	}
}

func (a *AdminHandler) sendPanel(ctx context.Context, chatID int64) {
	stats, err := a.stats.Global(ctx)
	if err != nil {
		log.Printf("❌ Ошибка сводной статистики: %v", err)
		a.send(chatID, "❌ Не удалось получить статистику.")
		return
	}

	text := fmt.Sprintf(`🛠 Админ-панель

👥 Пользователей: %d
📥 Загрузок: %d (сегодня %d)
✅ Успешных: %d
❌ Ошибок: %d
📈 Успешность: %.1f%%`,
		stats.Users, stats.Total, stats.Today,
		stats.Completed, stats.Failed, stats.SuccessRate)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Отчет за 30 дней", "adm:report"),
			tgbotapi.NewInlineKeyboardButtonData("🔥 Популярное", "adm:popular"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👥 Экспорт пользователей", "adm:users"),
			tgbotapi.NewInlineKeyboardButtonData("🧹 Очистить файлы", "adm:cleanup"),
		),
	)

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	a.api.Send(msg)
}

func (a *AdminHandler) sendReport(ctx context.Context, chatID int64) {
	report, err := a.stats.MonthlyReport(ctx)
	if err != nil {
		log.Printf("❌ Ошибка построения отчета: %v", err)
		a.send(chatID, "❌ Не удалось построить отчет.")
		return
	}

	name := fmt.Sprintf("report_%s.txt", time.Now().Format("2006-01-02"))
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: []byte(report)})
	doc.Caption = "📊 Отчет по загрузкам за 30 дней"
	a.api.Send(doc)
}

func (a *AdminHandler) sendUserExport(ctx context.Context, chatID int64) {
	ids, err := a.users.ActiveTelegramIDs(ctx)
	if err != nil {
		log.Printf("❌ Ошибка экспорта пользователей: %v", err)
		a.send(chatID, "❌ Не удалось выгрузить пользователей.")
		return
	}

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte('\n')
	}

	name := fmt.Sprintf("users_%s.txt", time.Now().Format("2006-01-02"))
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: []byte(b.String())})
	doc.Caption = fmt.Sprintf("👥 Активных пользователей: %d", len(ids))
	a.api.Send(doc)
}

func (a *AdminHandler) sendPopular(ctx context.Context, chatID int64) {
	videos, err := a.stats.PopularVideos(ctx, 10)
	if err != nil {
		log.Printf("❌ Ошибка топа видео: %v", err)
		a.send(chatID, "❌ Не удалось получить топ видео.")
		return
	}
	if len(videos) == 0 {
		a.send(chatID, "Пока ни одного скачивания.")
		return
	}

	var b strings.Builder
	b.WriteString("🔥 Популярные видео:\n\n")
	for i, v := range videos {
		b.WriteString(fmt.Sprintf("%d. %s — %d скачиваний (%s)\n",
			i+1, v.Title, v.DownloadCount, utils.FormatFileSize(v.FileSize)))
	}
	a.send(chatID, b.String())
}

func (a *AdminHandler) handleBan(ctx context.Context, chatID int64, args string, ban bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		a.send(chatID, "Укажите telegram ID: /ban 123456789")
		return
	}

	if ban {
		err = a.users.Ban(ctx, id)
	} else {
		err = a.users.Unban(ctx, id)
	}
	if err != nil {
		log.Printf("❌ Ошибка блокировки %d: %v", id, err)
		a.send(chatID, "❌ Не удалось изменить статус пользователя.")
		return
	}

	if ban {
		a.send(chatID, fmt.Sprintf("🚫 Пользователь %d заблокирован.", id))
	} else {
		a.send(chatID, fmt.Sprintf("✅ Пользователь %d разблокирован.", id))
	}
}

func (a *AdminHandler) handleSetSubscription(chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		a.send(chatID, "Формат: /set_subscription @channel [цель_подписчиков]")
		return
	}

	channel := fields[0]
	goal := 0
	if len(fields) > 1 {
		if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
			goal = n
		}
	}

	a.gate.Enable(channel, goal)
	if goal > 0 {
		a.send(chatID, fmt.Sprintf("✅ Требуется подписка на %s, цель %d подписчиков.", channel, goal))
	} else {
		a.send(chatID, fmt.Sprintf("✅ Требуется подписка на %s.", channel))
	}
}

func (a *AdminHandler) sendSubscriptionStatus(chatID int64) {
	active, channel, goal, counted := a.gate.Status()
	if !active {
		a.send(chatID, "Требование подписки выключено.")
		return
	}
	if goal > 0 {
		a.send(chatID, fmt.Sprintf("📣 Подписка на %s обязательна: %d из %d подтверждено.", channel, counted, goal))
	} else {
		a.send(chatID, fmt.Sprintf("📣 Подписка на %s обязательна, подтверждено: %d.", channel, counted))
	}
}

func (a *AdminHandler) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	a.api.Send(msg)
}
