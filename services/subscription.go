package services

import "sync"

// SubscriptionGate — требование подписки на канал перед использованием бота.
// Все состояние за одним мьютексом: настройку можно менять на лету из
// админских команд, проверки идут из цикла обновлений.
type SubscriptionGate struct {
	mu sync.Mutex
	// Канал, на который требуется подписка (@username или ID)
	channel string
	// Сколько подписчиков нужно набрать; 0 — без цели
	goal int
	// Сколько уже засчитано
	counted int
	active  bool
	// Пользователи, уже прошедшие проверку в этом запуске
	processed map[int64]bool
}

// NewSubscriptionGate создает выключенный гейт подписки
func NewSubscriptionGate() *SubscriptionGate {
	return &SubscriptionGate{processed: make(map[int64]bool)}
}

// Enable включает требование подписки на канал с целью по числу подписчиков
func (g *SubscriptionGate) Enable(channel string, goal int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channel = channel
	g.goal = goal
	g.counted = 0
	g.active = true
	g.processed = make(map[int64]bool)
}

// Disable выключает требование подписки
func (g *SubscriptionGate) Disable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
	g.processed = make(map[int64]bool)
}

// Status возвращает текущее состояние гейта
func (g *SubscriptionGate) Status() (active bool, channel string, goal, counted int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active, g.channel, g.goal, g.counted
}

// ShouldCheck сообщает, нужно ли проверять подписку этого пользователя.
// Уже прошедшие проверку пропускаются без повторного запроса к Telegram.
func (g *SubscriptionGate) ShouldCheck(telegramID int64) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active || g.processed[telegramID] {
		return "", false
	}
	return g.channel, true
}

// MarkSubscribed засчитывает подтвержденную подписку. Возвращает true, если
// цель достигнута и гейт автоматически выключился.
func (g *SubscriptionGate) MarkSubscribed(telegramID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active || g.processed[telegramID] {
		return false
	}
	g.processed[telegramID] = true
	g.counted++
	if g.goal > 0 && g.counted >= g.goal {
		g.active = false
		return true
	}
	return false
}
