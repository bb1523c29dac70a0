package services

import (
	"context"
	"log"
)

// UserService отвечает за регистрацию и блокировку пользователей
type UserService struct {
	storage  *Storage
	adminIDs map[int64]bool
}

// NewUserService создает сервис пользователей
func NewUserService(storage *Storage, adminIDs []int64) *UserService {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &UserService{storage: storage, adminIDs: admins}
}

// GetOrCreate возвращает пользователя, регистрируя его при первом обращении.
// Имя и username обновляются при каждом вызове — в Telegram они меняются.
func (us *UserService) GetOrCreate(ctx context.Context, telegramID int64, fullName, username string) (*User, error) {
	user, err := us.storage.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if user.FullName != fullName || user.Username != username {
			if err := us.storage.UpdateUserProfile(ctx, telegramID, fullName, username); err != nil {
				log.Printf("⚠️ Не удалось обновить профиль %d: %v", telegramID, err)
			} else {
				user.FullName = fullName
				user.Username = username
			}
		}
		return user, nil
	}

	user = &User{
		TelegramID: telegramID,
		FullName:   fullName,
		Username:   username,
		IsAdmin:    us.adminIDs[telegramID],
	}
	if err := us.storage.CreateUser(ctx, user); err != nil {
		// Гонка при параллельных апдейтах от одного пользователя
		existing, getErr := us.storage.GetUserByTelegramID(ctx, telegramID)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}

	log.Printf("👤 Новый пользователь: %s (@%s, id %d)", fullName, username, telegramID)
	return user, nil
}

// IsAdmin проверяет права администратора
func (us *UserService) IsAdmin(telegramID int64) bool {
	return us.adminIDs[telegramID]
}

// Ban блокирует пользователя
func (us *UserService) Ban(ctx context.Context, telegramID int64) error {
	return us.storage.SetUserBlocked(ctx, telegramID, true)
}

// Unban разблокирует пользователя
func (us *UserService) Unban(ctx context.Context, telegramID int64) error {
	return us.storage.SetUserBlocked(ctx, telegramID, false)
}

// ActiveTelegramIDs возвращает telegram_id всех незаблокированных
func (us *UserService) ActiveTelegramIDs(ctx context.Context) ([]int64, error) {
	return us.storage.ListActiveUserIDs(ctx)
}
