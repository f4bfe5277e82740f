package cart

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
		to   State
		ok   bool
	}{
		{StateNone, EventOpen, StateActive, true},
		{StateActive, EventOpen, StateActive, true},
		{StateDisabled, EventOpen, StateActive, true},
		{StateActive, EventDisable, StateDisabled, true},
		{StateNone, EventDisable, StateNone, false},
		{StateDisabled, EventDisable, StateDisabled, false},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.ev)
		if tc.ok {
			require.NoError(t, err)
		} else {
			require.Error(t, err)
		}
		assert.Equal(t, tc.to, got, "%s on %s", tc.from, tc.ev)
	}
}

func TestOpen(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	fresh, changed, err := open(nil, 4, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StateActive, StateOf(&fresh))
	assert.NotEqual(t, uuid.Nil, fresh.ID)
	assert.Equal(t, 0, fresh.Version)

	disabled := Cart{ID: uuid.New(), UserID: 4, Enabled: false, Version: 3,
		Items: []Item{{ProductID: 1, Amount: 2, Price: decimal.NewFromInt(5)}}, TotalPrice: decimal.NewFromInt(10)}
	reopened, changed, err := open(&disabled, 4, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, disabled.ID, reopened.ID)
	assert.Equal(t, 3, reopened.Version)
	assert.Empty(t, reopened.Items)
	assert.True(t, reopened.TotalPrice.IsZero())
	assert.Len(t, disabled.Items, 1, "source cart must not be mutated")

	active := reopened
	same, changed, err := open(&active, 4, now)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, active, same)
}

func TestDisable_RequiresEmptyActiveCart(t *testing.T) {
	c := Cart{ID: uuid.New(), Enabled: true, Items: []Item{{ProductID: 1, Amount: 1}}}
	require.Error(t, disable(&c, time.Now()))

	c.Items = nil
	require.NoError(t, disable(&c, time.Now()))
	assert.Equal(t, StateDisabled, StateOf(&c))
	require.Error(t, disable(&c, time.Now()))
}
