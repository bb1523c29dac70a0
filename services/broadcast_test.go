package services

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender собирает отправленные сообщения и по желанию роняет часть
type fakeSender struct {
	sent    []tgbotapi.Chattable
	failFor map[int64]bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		if f.failFor[m.ChatID] {
			return tgbotapi.Message{}, errors.New("bot was blocked by the user")
		}
	}
	return tgbotapi.Message{}, nil
}

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  *tgbotapi.Message
		want messageKind
	}{
		{"текст", &tgbotapi.Message{Text: "привет"}, kindText},
		{"фото", &tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{FileID: "p"}}}, kindPhoto},
		{"видео", &tgbotapi.Message{Video: &tgbotapi.Video{FileID: "v"}}, kindVideo},
		{"документ", &tgbotapi.Message{Document: &tgbotapi.Document{FileID: "d"}}, kindDocument},
		// gif приходит и как Animation, и как Document одновременно
		{"gif", &tgbotapi.Message{
			Animation: &tgbotapi.Animation{FileID: "a"},
			Document:  &tgbotapi.Document{FileID: "a"},
		}, kindAnimation},
		{"аудио", &tgbotapi.Message{Audio: &tgbotapi.Audio{FileID: "au"}}, kindAudio},
		{"голосовое", &tgbotapi.Message{Voice: &tgbotapi.Voice{FileID: "vc"}}, kindVoice},
		{"стикер", &tgbotapi.Message{Sticker: &tgbotapi.Sticker{FileID: "s"}}, kindSticker},
		{"кружок", &tgbotapi.Message{VideoNote: &tgbotapi.VideoNote{FileID: "vn"}}, kindVideoNote},
		{"геопозиция", &tgbotapi.Message{Location: &tgbotapi.Location{Latitude: 55.75}}, kindLocation},
		{"контакт", &tgbotapi.Message{Contact: &tgbotapi.Contact{PhoneNumber: "+7"}}, kindContact},
		{"опрос", &tgbotapi.Message{Poll: &tgbotapi.Poll{Question: "?"}}, kindPoll},
		{"пустое", &tgbotapi.Message{}, kindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyMessage(tt.msg))
		})
	}
}

func TestBuildCopyText(t *testing.T) {
	c := buildCopy(42, &tgbotapi.Message{Text: "анонс"})
	msg, ok := c.(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "анонс", msg.Text)
}

func TestBuildCopyPhotoKeepsCaption(t *testing.T) {
	src := &tgbotapi.Message{
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 90},
			{FileID: "large", Width: 1280},
		},
		Caption: "подпись",
	}
	c := buildCopy(42, src)
	photo, ok := c.(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, "подпись", photo.Caption)
	assert.Equal(t, tgbotapi.FileID("large"), photo.File, "берется самый крупный размер")
}

func TestBuildCopyPoll(t *testing.T) {
	src := &tgbotapi.Message{
		Poll: &tgbotapi.Poll{
			Question: "Какое качество?",
			Options:  []tgbotapi.PollOption{{Text: "720p"}, {Text: "1080p"}},
		},
	}
	c := buildCopy(42, src)
	poll, ok := c.(tgbotapi.SendPollConfig)
	require.True(t, ok)
	assert.Equal(t, "Какое качество?", poll.Question)
	assert.Equal(t, []string{"720p", "1080p"}, poll.Options)
}

func TestBuildCopyUnknownForwards(t *testing.T) {
	src := &tgbotapi.Message{
		MessageID: 7,
		Chat:      &tgbotapi.Chat{ID: 100},
	}
	c := buildCopy(42, src)
	fwd, ok := c.(tgbotapi.ForwardConfig)
	require.True(t, ok)
	assert.Equal(t, 7, fwd.MessageID)
	assert.Equal(t, int64(100), fwd.FromChatID)
}

func TestSendToAll(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	mustCreateUser(t, s, 601)
	mustCreateUser(t, s, 602)
	blocked := mustCreateUser(t, s, 603)
	require.NoError(t, s.SetUserBlocked(ctx, blocked.TelegramID, true))

	sender := &fakeSender{}
	bs := NewBroadcastService(sender, NewUserService(s, nil))
	bs.delay = 0

	sent, failed := bs.SendToAll(ctx, &tgbotapi.Message{Text: "всем привет"})

	assert.Equal(t, 2, sent)
	assert.Equal(t, 0, failed)
	assert.Len(t, sender.sent, 2, "заблокированный не получает рассылку")
}

func TestSendToAllCountsFailures(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	mustCreateUser(t, s, 611)
	mustCreateUser(t, s, 612)

	sender := &fakeSender{failFor: map[int64]bool{611: true}}
	bs := NewBroadcastService(sender, NewUserService(s, nil))
	bs.delay = 0

	sent, failed := bs.SendToAll(ctx, &tgbotapi.Message{Text: "всем привет"})

	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, failed)
}

func TestSendToAllStopsOnContext(t *testing.T) {
	s := newTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())

	for i := int64(621); i < 631; i++ {
		mustCreateUser(t, s, i)
	}

	sender := &fakeSender{}
	bs := NewBroadcastService(sender, NewUserService(s, nil))
	cancel()

	sent, _ := bs.SendToAll(ctx, &tgbotapi.Message{Text: "обрыв"})
	assert.Equal(t, 1, sent, "после отмены контекста рассылка прерывается")
}
