package handler

import (
	"testing"

	"maxxpharm/internal/domain"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderActionsKeyboard(t *testing.T) {
	for _, status := range domain.OrderStatuses {
		t.Run(string(status), func(t *testing.T) {
			markup := orderActionsKeyboard(&domain.Order{ID: 7, Version: 2, Status: status})
			if status.Final() {
				assert.Nil(t, markup)
				return
			}
			kb, ok := markup.(*models.InlineKeyboardMarkup)
			require.True(t, ok)
			require.Len(t, kb.InlineKeyboard, 1)
			assert.Equal(t, "order_cancel_7_2", kb.InlineKeyboard[0][1].CallbackData)
		})
	}
}
