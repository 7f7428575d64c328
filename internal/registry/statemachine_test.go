package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/open-apime/fleet/internal/provider"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]State{
		{StateUninitialized, StatePairing},
		{StatePairing, StateOpen},
		{StatePairing, StateClosed},
		{StateOpen, StateClosed},
		{StateClosed, StateOpen},
		{StateClosed, StatePairing},
		{StateOpen, StateOpen},
	}
	for _, e := range allowed {
		assert.True(t, CanTransition(e[0], e[1]), "%s -> %s", e[0], e[1])
	}

	denied := [][2]State{
		{StateUninitialized, StateOpen},
		{StateUninitialized, StateClosed},
		{StateOpen, StatePairing},
		{StateOpen, StateUninitialized},
	}
	for _, e := range denied {
		assert.False(t, CanTransition(e[0], e[1]), "%s -> %s", e[0], e[1])
	}
}

func TestFromProvider(t *testing.T) {
	assert.Equal(t, StateOpen, FromProvider(provider.StateOpen))
	assert.Equal(t, StateClosed, FromProvider(provider.StateClose))
	assert.Equal(t, StatePairing, FromProvider(provider.StateConnecting))
	assert.Equal(t, StateUninitialized, FromProvider(provider.StateUnknown))
	assert.Equal(t, StateUninitialized, FromProvider("refused"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "5511999990000", NormalizePhone("5511999990000:12@s.whatsapp.net"))
	assert.Equal(t, "5511999990000", NormalizePhone("+55 (11) 99999-0000"))
	assert.Equal(t, "", NormalizePhone(""))
	assert.Equal(t, "", NormalizePhone("status@broadcast"))
}
