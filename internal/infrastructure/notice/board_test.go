package notice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func visible(b *Board) bool {
	_, ok := b.Current()
	return ok
}

func TestBoardAutoDismisses(t *testing.T) {
	b := NewBoard(nil)
	var shown []Notice
	b.OnShow(func(n Notice) { shown = append(shown, n) })

	b.Show(context.Background(), "Pedido #1 pago com sucesso!", 40*time.Millisecond)

	n, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, "Pedido #1 pago com sucesso!", n.Message)
	require.Len(t, shown, 1)

	require.Eventually(t, func() bool { return !visible(b) }, time.Second, 5*time.Millisecond)
}

func TestBoardReplacementRestartsWindow(t *testing.T) {
	b := NewBoard(nil)
	b.Show(context.Background(), "first", 30*time.Millisecond)
	b.Show(context.Background(), "second", time.Hour)

	assert.Never(t, func() bool { return !visible(b) }, 80*time.Millisecond, 10*time.Millisecond)
	n, _ := b.Current()
	assert.Equal(t, "second", n.Message)

	b.Dismiss()
	assert.False(t, visible(b))
}
