package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManualNotifiesOnChangeOnly(t *testing.T) {
	m := NewManual(true)
	var got []bool
	unsubscribe := m.Subscribe(func(v bool) { got = append(got, v) })

	m.SetVisible(true)
	m.SetVisible(false)
	m.SetVisible(false)
	m.SetVisible(true)

	assert.Equal(t, []bool{false, true}, got)
	assert.True(t, m.Visible())

	unsubscribe()
	unsubscribe()
	m.SetVisible(false)
	assert.Equal(t, []bool{false, true}, got)
	assert.Zero(t, m.Subscribers())
}

func TestManualMultipleSubscribers(t *testing.T) {
	m := NewManual(false)
	var a, b int
	unsubA := m.Subscribe(func(bool) { a++ })
	m.Subscribe(func(bool) { b++ })
	assert.Equal(t, 2, m.Subscribers())

	m.SetVisible(true)
	unsubA()
	m.SetVisible(false)

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestListenerMaySubscribeReentrantly(t *testing.T) {
	m := NewManual(true)
	m.Subscribe(func(bool) {
		m.Subscribe(func(bool) {})
	})

	m.SetVisible(false)
	assert.Equal(t, 2, m.Subscribers())
}
