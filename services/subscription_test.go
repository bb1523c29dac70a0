package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionGateDisabledByDefault(t *testing.T) {
	g := NewSubscriptionGate()

	_, need := g.ShouldCheck(1)
	assert.False(t, need)

	active, _, _, _ := g.Status()
	assert.False(t, active)
}

func TestSubscriptionGateFlow(t *testing.T) {
	g := NewSubscriptionGate()
	g.Enable("@channel", 0)

	channel, need := g.ShouldCheck(1)
	assert.True(t, need)
	assert.Equal(t, "@channel", channel)

	g.MarkSubscribed(1)

	// Подтвержденный пользователь больше не проверяется
	_, need = g.ShouldCheck(1)
	assert.False(t, need)

	// Другой пользователь — проверяется
	_, need = g.ShouldCheck(2)
	assert.True(t, need)
}

func TestSubscriptionGateGoalAutoDisables(t *testing.T) {
	g := NewSubscriptionGate()
	g.Enable("@channel", 2)

	assert.False(t, g.MarkSubscribed(1))
	reached := g.MarkSubscribed(2)
	assert.True(t, reached, "цель достигнута")

	active, _, _, counted := g.Status()
	assert.False(t, active, "гейт выключился сам")
	assert.Equal(t, 2, counted)

	_, need := g.ShouldCheck(3)
	assert.False(t, need)
}

func TestSubscriptionGateDoubleCount(t *testing.T) {
	g := NewSubscriptionGate()
	g.Enable("@channel", 5)

	g.MarkSubscribed(1)
	g.MarkSubscribed(1)
	g.MarkSubscribed(1)

	_, _, _, counted := g.Status()
	assert.Equal(t, 1, counted, "один пользователь засчитывается один раз")
}

func TestSubscriptionGateEnableResets(t *testing.T) {
	g := NewSubscriptionGate()
	g.Enable("@old", 10)
	g.MarkSubscribed(1)

	g.Enable("@new", 10)
	_, _, _, counted := g.Status()
	assert.Equal(t, 0, counted)

	_, need := g.ShouldCheck(1)
	assert.True(t, need, "после перенастройки проверка проходит заново")
}

func TestSubscriptionGateConcurrent(t *testing.T) {
	g := NewSubscriptionGate()
	g.Enable("@channel", 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			g.ShouldCheck(id)
			g.MarkSubscribed(id)
		}(int64(i % 10))
	}
	wg.Wait()

	_, _, _, counted := g.Status()
	assert.Equal(t, 10, counted)
}
