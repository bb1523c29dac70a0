package services

import (
	"context"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// messageKind — закрытый набор видов сообщений, которые умеет
// копировать рассылка
type messageKind int

const (
	kindText messageKind = iota
	kindPhoto
	kindVideo
	kindDocument
	kindAudio
	kindVoice
	kindAnimation
	kindSticker
	kindVideoNote
	kindLocation
	kindContact
	kindPoll
	kindOther
)

// classifyMessage определяет вид исходного сообщения
func classifyMessage(msg *tgbotapi.Message) messageKind {
	switch {
	case msg.Photo != nil && len(msg.Photo) > 0:
		return kindPhoto
	case msg.Video != nil:
		return kindVideo
	case msg.Animation != nil:
		// Animation проверяем раньше Document: Telegram дублирует gif в оба поля
		return kindAnimation
	case msg.Document != nil:
		return kindDocument
	case msg.Audio != nil:
		return kindAudio
	case msg.Voice != nil:
		return kindVoice
	case msg.Sticker != nil:
		return kindSticker
	case msg.VideoNote != nil:
		return kindVideoNote
	case msg.Location != nil:
		return kindLocation
	case msg.Contact != nil:
		return kindContact
	case msg.Poll != nil:
		return kindPoll
	case msg.Text != "":
		return kindText
	default:
		return kindOther
	}
}

// buildCopy строит копию сообщения для отправки другому пользователю
func buildCopy(chatID int64, msg *tgbotapi.Message) tgbotapi.Chattable {
	switch classifyMessage(msg) {
	case kindPhoto:
		largest := msg.Photo[len(msg.Photo)-1]
		c := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(largest.FileID))
		c.Caption = msg.Caption
		return c
	case kindVideo:
		c := tgbotapi.NewVideo(chatID, tgbotapi.FileID(msg.Video.FileID))
		c.Caption = msg.Caption
		return c
	case kindAnimation:
		c := tgbotapi.NewAnimation(chatID, tgbotapi.FileID(msg.Animation.FileID))
		c.Caption = msg.Caption
		return c
	case kindDocument:
		c := tgbotapi.NewDocument(chatID, tgbotapi.FileID(msg.Document.FileID))
		c.Caption = msg.Caption
		return c
	case kindAudio:
		c := tgbotapi.NewAudio(chatID, tgbotapi.FileID(msg.Audio.FileID))
		c.Caption = msg.Caption
		return c
	case kindVoice:
		c := tgbotapi.NewVoice(chatID, tgbotapi.FileID(msg.Voice.FileID))
		c.Caption = msg.Caption
		return c
	case kindSticker:
		return tgbotapi.NewSticker(chatID, tgbotapi.FileID(msg.Sticker.FileID))
	case kindVideoNote:
		return tgbotapi.NewVideoNote(chatID, msg.VideoNote.Length, tgbotapi.FileID(msg.VideoNote.FileID))
	case kindLocation:
		return tgbotapi.NewLocation(chatID, msg.Location.Latitude, msg.Location.Longitude)
	case kindContact:
		return tgbotapi.NewContact(chatID, msg.Contact.PhoneNumber, msg.Contact.FirstName)
	case kindPoll:
		options := make([]string, 0, len(msg.Poll.Options))
		for _, o := range msg.Poll.Options {
			options = append(options, o.Text)
		}
		return tgbotapi.NewPoll(chatID, msg.Poll.Question, options...)
	case kindText:
		return tgbotapi.NewMessage(chatID, msg.Text)
	default:
		// Неизвестный вид — пересылаем как есть
		return tgbotapi.NewForward(chatID, msg.Chat.ID, msg.MessageID)
	}
}

// BroadcastSender — минимальный интерфейс отправки, в тестах подменяется
type BroadcastSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// BroadcastService рассылает копию сообщения всем активным пользователям
type BroadcastService struct {
	sender BroadcastSender
	users  *UserService
	// Пауза между отправками, чтобы не упереться в лимиты Telegram
	delay time.Duration
}

// NewBroadcastService создает сервис рассылки
func NewBroadcastService(sender BroadcastSender, users *UserService) *BroadcastService {
	return &BroadcastService{
		sender: sender,
		users:  users,
		delay:  50 * time.Millisecond,
	}
}

// SendToAll копирует сообщение каждому незаблокированному пользователю.
// Возвращает число доставленных и недоставленных.
func (bs *BroadcastService) SendToAll(ctx context.Context, src *tgbotapi.Message) (sent, failed int) {
	ids, err := bs.users.ActiveTelegramIDs(ctx)
	if err != nil {
		log.Printf("❌ Рассылка: не удалось получить список пользователей: %v", err)
		return 0, 0
	}

	log.Printf("📢 Рассылка для %d пользователей", len(ids))

	for _, id := range ids {
		if _, err := bs.sender.Send(buildCopy(id, src)); err != nil {
			log.Printf("⚠️ Рассылка: не доставлено пользователю %d: %v", id, err)
			failed++
		} else {
			sent++
		}

		if !waitCtx(ctx, bs.delay) {
			log.Printf("🛑 Рассылка прервана")
			break
		}
	}

	log.Printf("📢 Рассылка завершена: доставлено %d, ошибок %d", sent, failed)
	return sent, failed
}
