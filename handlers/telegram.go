package handlers

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"videoBot/services"
	"videoBot/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramHandler обрабатывает сообщения и кнопки пользователей
type TelegramHandler struct {
	api       *tgbotapi.BotAPI
	storage   *services.Storage
	users     *services.UserService
	catalog   *services.VideoCatalog
	queue     *services.DownloadQueue
	downloads *services.DownloadService
	stats     *services.StatsService
	gate      *services.SubscriptionGate
	detector  *services.PlatformDetector
	admin     *AdminHandler
}

// NewTelegramHandler создает обработчик пользовательского потока
func NewTelegramHandler(
	api *tgbotapi.BotAPI,
	storage *services.Storage,
	users *services.UserService,
	catalog *services.VideoCatalog,
	queue *services.DownloadQueue,
	downloads *services.DownloadService,
	stats *services.StatsService,
	gate *services.SubscriptionGate,
	detector *services.PlatformDetector,
	admin *AdminHandler,
) *TelegramHandler {
	return &TelegramHandler{
		api:       api,
		storage:   storage,
		users:     users,
		catalog:   catalog,
		queue:     queue,
		downloads: downloads,
		stats:     stats,
		gate:      gate,
		detector:  detector,
		admin:     admin,
	}
}

// HandleUpdate — точка входа для всех обновлений
func (h *TelegramHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	}
}

func (h *TelegramHandler) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil {
		return
	}

	user, err := h.users.GetOrCreate(ctx, message.From.ID, message.From.FirstName+" "+message.From.LastName, message.From.UserName)
	if err != nil {
		log.Printf("❌ Ошибка регистрации пользователя %d: %v", message.From.ID, err)
		return
	}
	if user.IsBlocked {
		return
	}

	// Админ в режиме рассылки: следующее сообщение уходит всем
	if h.admin != nil && h.admin.MaybeConsumeBroadcast(ctx, user, message) {
		return
	}

	// Гейт подписки: админов не трогаем
	if !user.IsAdmin {
		if channel, need := h.gate.ShouldCheck(user.TelegramID); need {
			if h.isSubscribed(channel, user.TelegramID) {
				h.gate.MarkSubscribed(user.TelegramID)
			} else {
				h.promptSubscription(message.Chat.ID, channel)
				return
			}
		}
	}

	if message.IsCommand() {
		h.handleCommand(ctx, user, message)
		return
	}

	if url := firstURL(message.Text); url != "" {
		h.handleURL(ctx, user, message.Chat.ID, url)
		return
	}

	h.sendMessage(message.Chat.ID, "Пришлите ссылку на видео с YouTube, TikTok, RuTube или VK.")
}

func (h *TelegramHandler) handleCommand(ctx context.Context, user *services.User, message *tgbotapi.Message) {
	if user.IsAdmin && h.admin != nil && h.admin.HandleCommand(ctx, user, message) {
		return
	}

	switch message.Command() {
	case "start":
		h.sendWelcomeMessage(message.Chat.ID)
	case "help":
		h.sendHelpMessage(message.Chat.ID)
	case "stats":
		h.sendUserStats(ctx, user, message.Chat.ID)
	case "history":
		h.sendHistory(ctx, user, message.Chat.ID)
	default:
		h.sendMessage(message.Chat.ID, "Неизвестная команда. Используйте /help для получения справки.")
	}
}

func (h *TelegramHandler) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.From == nil {
		return
	}

	user, err := h.users.GetOrCreate(ctx, callback.From.ID, callback.From.FirstName+" "+callback.From.LastName, callback.From.UserName)
	if err != nil || user.IsBlocked {
		return
	}

	data := callback.Data
	switch {
	case data == "sub_check":
		h.handleSubscriptionCheck(callback, user)
	case strings.HasPrefix(data, "dl:"):
		h.handleDownloadCallback(ctx, callback, user)
	case strings.HasPrefix(data, "adm:"):
		if user.IsAdmin && h.admin != nil {
			h.admin.HandleCallback(ctx, callback)
		}
	case data == "cancel":
		h.api.Send(tgbotapi.NewDeleteMessage(callback.Message.Chat.ID, callback.Message.MessageID))
		h.answerCallback(callback.ID, "Отменено")
	}
}

// handleURL — главный сценарий: ссылка -> карточка видео -> выбор качества
func (h *TelegramHandler) handleURL(ctx context.Context, user *services.User, chatID int64, url string) {
	info := h.detector.DetectPlatform(url)
	if !info.Supported {
		h.sendMessage(chatID, "❓ Не удалось распознать ссылку. Поддерживаются YouTube, TikTok, RuTube и VK.")
		return
	}
	h.detector.LogPlatformInfo(info, url)

	h.sendMessage(chatID, "🔍 Получаю информацию о видео...")

	video, err := h.catalog.GetOrCreate(ctx, url)
	if err != nil {
		log.Printf("❌ Ошибка каталога для %s: %v", url, err)
		h.sendMessage(chatID, "❌ Внутренняя ошибка, попробуйте позже.")
		return
	}
	if video == nil {
		h.sendMessage(chatID, "❌ Не удалось получить видео: оно недоступно или слишком длинное.")
		return
	}

	h.showQualitySelection(chatID, video, info)
}

// showQualitySelection показывает карточку видео и клавиатуру качества
func (h *TelegramHandler) showQualitySelection(chatID int64, video *services.Video, info *services.PlatformInfo) {
	formats := h.catalog.AvailableFormats(video)
	heights := services.FormatHeights(formats)

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, height := range heights {
		label := fmt.Sprintf("📹 %s", services.QualityLabel(height))
		if size := estimateSize(formats, height); size > 0 {
			label += fmt.Sprintf(" (~%s)", utils.FormatFileSize(size))
		}
		cb := fmt.Sprintf("dl:%d:%s", video.ID, services.QualityLabel(height))
		buttons = append(buttons, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(label, cb),
		})
	}
	buttons = append(buttons, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("🎵 MP3", fmt.Sprintf("dl:%d:mp3", video.ID)),
	})
	buttons = append(buttons, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel"),
	})

	text := fmt.Sprintf("%s <b>%s</b>\n👤 %s\n⏱ %s\n👁 %d\n\nВыберите качество:",
		info.Icon, video.Title, video.ChannelName,
		utils.FormatDuration(video.Duration), video.ViewCount)

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	h.api.Send(msg)
}

func (h *TelegramHandler) handleDownloadCallback(ctx context.Context, callback *tgbotapi.CallbackQuery, user *services.User) {
	parts := strings.Split(callback.Data, ":")
	if len(parts) != 3 {
		return
	}
	videoDBID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return
	}

	quality := parts[2]
	formatType := services.FormatVideo
	if quality == "mp3" {
		formatType = services.FormatMP3
		quality = ""
	}

	video, err := h.storage.GetVideoByID(ctx, videoDBID)
	if err != nil || video == nil {
		h.answerCallback(callback.ID, "Видео не найдено")
		return
	}

	chatID := callback.Message.Chat.ID
	h.answerCallback(callback.ID, "Загрузка начата")
	h.api.Send(tgbotapi.NewEditMessageText(chatID, callback.Message.MessageID,
		fmt.Sprintf("⏳ Скачиваю «%s»...", video.Title)))

	var requestedSize int64
	if formatType == services.FormatVideo {
		if height, err := strconv.Atoi(strings.TrimSuffix(quality, "p")); err == nil {
			requestedSize = estimateSize(h.catalog.AvailableFormats(video), height)
		}
	}

	task := services.DownloadTask{
		Video:         video,
		User:          user,
		Quality:       quality,
		FormatType:    formatType,
		RequestedSize: requestedSize,
		ChatID:        chatID,
		Done: func(record *services.Download, err error) {
			h.deliverResult(ctx, chatID, video, record, err)
		},
	}
	if err := h.queue.Enqueue(task); err != nil {
		h.sendMessage(chatID, "❌ Очередь загрузок переполнена, попробуйте позже.")
	}
}

// deliverResult отправляет готовый файл или сообщение об ошибке
func (h *TelegramHandler) deliverResult(ctx context.Context, chatID int64, video *services.Video, record *services.Download, err error) {
	if err != nil {
		log.Printf("❌ Ошибка оркестратора: %v", err)
		h.sendMessage(chatID, "❌ Внутренняя ошибка, попробуйте позже.")
		return
	}
	if record == nil || record.Status != services.StatusCompleted {
		reason := "неизвестная ошибка"
		if record != nil && record.ErrorMessage != nil {
			reason = *record.ErrorMessage
		}
		h.sendMessage(chatID, fmt.Sprintf("❌ Не удалось скачать видео: %s", reason))
		return
	}

	// Запись completed, но файл вычищен и file_id не сохранился
	if !record.HasDurableCopy() {
		h.sendMessage(chatID, "❌ Файл загрузки потерян, попробуйте еще раз.")
		return
	}

	caption := fmt.Sprintf("✅ %s", video.Title)

	// Telegram уже знает этот файл — отправляем по file_id без загрузки
	if record.TelegramFileID != nil && *record.TelegramFileID != "" {
		h.sendByFileID(chatID, record.FormatType, *record.TelegramFileID, caption)
		return
	}

	log.Printf("📤 Отправка файла в Telegram: %s", *record.FilePath)

	var sent tgbotapi.Message
	var sendErr error
	if record.FormatType == services.FormatMP3 {
		audio := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(*record.FilePath))
		audio.Caption = caption
		sent, sendErr = h.api.Send(audio)
	} else {
		v := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(*record.FilePath))
		v.Caption = caption
		sent, sendErr = h.api.Send(v)
	}
	if sendErr != nil {
		log.Printf("❌ Ошибка отправки файла: %v", sendErr)
		h.sendMessage(chatID, "❌ Не удалось отправить файл.")
		return
	}

	if fileID := sentFileID(&sent); fileID != "" {
		h.downloads.SaveTelegramFileID(ctx, record.ID, fileID)
	}
}

func (h *TelegramHandler) sendByFileID(chatID int64, formatType services.FormatType, fileID, caption string) {
	if formatType == services.FormatMP3 {
		audio := tgbotapi.NewAudio(chatID, tgbotapi.FileID(fileID))
		audio.Caption = caption
		h.api.Send(audio)
		return
	}
	video := tgbotapi.NewVideo(chatID, tgbotapi.FileID(fileID))
	video.Caption = caption
	h.api.Send(video)
}

// sentFileID достает file_id из отправленного сообщения
func sentFileID(msg *tgbotapi.Message) string {
	switch {
	case msg.Video != nil:
		return msg.Video.FileID
	case msg.Audio != nil:
		return msg.Audio.FileID
	case msg.Document != nil:
		return msg.Document.FileID
	}
	return ""
}

// ---------- подписка ----------

func (h *TelegramHandler) promptSubscription(chatID int64, channel string) {
	url := "https://t.me/" + strings.TrimPrefix(channel, "@")
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("📣 Подписаться", url),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Я подписался", "sub_check"),
		),
	)
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Для использования бота подпишитесь на канал %s", channel))
	msg.ReplyMarkup = keyboard
	h.api.Send(msg)
}

func (h *TelegramHandler) handleSubscriptionCheck(callback *tgbotapi.CallbackQuery, user *services.User) {
	channel, need := h.gate.ShouldCheck(user.TelegramID)
	if !need {
		h.answerCallback(callback.ID, "Подписка уже подтверждена")
		return
	}

	if !h.isSubscribed(channel, user.TelegramID) {
		h.answerCallback(callback.ID, "Вы еще не подписаны")
		return
	}

	goalReached := h.gate.MarkSubscribed(user.TelegramID)
	h.answerCallback(callback.ID, "Спасибо за подписку!")
	h.sendMessage(callback.Message.Chat.ID, "✅ Подписка подтверждена, можно пользоваться ботом.")
	if goalReached {
		log.Printf("🎯 Цель по подписчикам достигнута, гейт подписки выключен")
	}
}

// isSubscribed проверяет членство пользователя в канале
func (h *TelegramHandler) isSubscribed(channel string, telegramID int64) bool {
	member, err := h.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: channel,
			UserID:             telegramID,
		},
	})
	if err != nil {
		log.Printf("⚠️ Не удалось проверить подписку %d на %s: %v", telegramID, channel, err)
		return false
	}
	switch member.Status {
	case "member", "administrator", "creator":
		return true
	}
	return false
}

// ---------- справочные команды ----------

func (h *TelegramHandler) sendWelcomeMessage(chatID int64) {
	text := `🎉 Добро пожаловать!

Этот бот скачивает видео с YouTube, TikTok, RuTube и VK.
Просто пришлите ссылку на видео и выберите качество.

📋 Команды:
/stats - Ваша статистика
/history - Последние загрузки
/help - Справка

⚠️ Используйте бота только для видео, на которые у вас есть права.`
	h.sendMessage(chatID, text)
}

func (h *TelegramHandler) sendHelpMessage(chatID int64) {
	text := `📚 Как пользоваться ботом:

1. Пришлите ссылку на видео
2. Выберите качество или MP3
3. Дождитесь файла

🔗 Поддерживаемые платформы:
• YouTube (включая Shorts)
• TikTok
• RuTube
• VK Видео

⚠️ Важно:
• Поддерживаются только публичные видео
• Соблюдайте авторские права`
	h.sendMessage(chatID, text)
}

func (h *TelegramHandler) sendUserStats(ctx context.Context, user *services.User, chatID int64) {
	stats, err := h.stats.ForUser(ctx, user)
	if err != nil {
		log.Printf("❌ Ошибка статистики пользователя %d: %v", user.TelegramID, err)
		h.sendMessage(chatID, "❌ Не удалось получить статистику.")
		return
	}

	last := "—"
	if stats.LastDownload != nil {
		last = stats.LastDownload.Format("02.01.2006 15:04")
	}
	text := fmt.Sprintf(`📊 Ваша статистика:

Всего загрузок: %d
Сегодня: %d
За неделю: %d
Объем: %s
Последняя загрузка: %s`,
		stats.Total, stats.Today, stats.Week,
		utils.FormatFileSize(stats.TotalBytes), last)
	h.sendMessage(chatID, text)
}

func (h *TelegramHandler) sendHistory(ctx context.Context, user *services.User, chatID int64) {
	downloads, err := h.storage.GetUserDownloads(ctx, user.ID, 10)
	if err != nil {
		log.Printf("❌ Ошибка истории пользователя %d: %v", user.TelegramID, err)
		h.sendMessage(chatID, "❌ Не удалось получить историю.")
		return
	}
	if len(downloads) == 0 {
		h.sendMessage(chatID, "История пуста — пришлите первую ссылку!")
		return
	}

	var b strings.Builder
	b.WriteString("🗂 Последние загрузки:\n\n")
	for _, d := range downloads {
		title := fmt.Sprintf("видео #%d", d.VideoID)
		if v, err := h.storage.GetVideoByID(ctx, d.VideoID); err == nil && v != nil {
			title = v.Title
		}
		b.WriteString(fmt.Sprintf("%s %s (%s)\n", statusEmoji(d.Status), title, d.CreatedAt.Format("02.01 15:04")))
	}
	h.sendMessage(chatID, b.String())
}

func statusEmoji(status services.DownloadStatus) string {
	switch status {
	case services.StatusCompleted:
		return "✅"
	case services.StatusFailed:
		return "❌"
	case services.StatusDownloading:
		return "⏳"
	default:
		return "🕐"
	}
}

// estimateSize подбирает ожидаемый размер файла для высоты
func estimateSize(formats []services.VideoFormat, height int) int64 {
	var best int64
	for _, f := range formats {
		if f.VCodec == "none" || f.Height != height {
			continue
		}
		if f.FileSize > best {
			best = f.FileSize
		}
	}
	return best
}

// firstURL выделяет первую http-ссылку из текста сообщения
func firstURL(text string) string {
	for _, field := range strings.Fields(text) {
		if strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://") ||
			strings.Contains(field, "youtu") || strings.Contains(field, "tiktok.com") ||
			strings.Contains(field, "rutube.ru") || strings.Contains(field, "vk.com") ||
			strings.Contains(field, "vkvideo.ru") {
			return field
		}
	}
	return ""
}

func (h *TelegramHandler) answerCallback(id, text string) {
	h.api.Request(tgbotapi.NewCallback(id, text))
}

// sendMessage отправляет текстовое сообщение
func (h *TelegramHandler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	h.api.Send(msg)
}
