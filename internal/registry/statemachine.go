package registry

import (
	"errors"
	"fmt"

	"github.com/open-apime/fleet/internal/provider"
)

var ErrIllegalTransition = errors.New("registry: transição de estado inválida")

// Não existe uninitialized -> open: toda instância passa por pairing.
var transitions = map[State]map[State]bool{
	StateUninitialized: {StatePairing: true},
	StatePairing:       {StateOpen: true, StateClosed: true},
	StateOpen:          {StateClosed: true},
	StateClosed:        {StateOpen: true, StatePairing: true},
}

// CanTransition informa se from -> to é uma aresta válida. Auto-transições são aceitas.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	return transitions[from][to]
}

func checkTransition(id string, from, to State) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s %s -> %s", ErrIllegalTransition, id, from, to)
}

// FromProvider traduz o estado reportado pelo provider. Usado pelo sync, que
// é autoritativo e não passa pela máquina de estados.
func FromProvider(s provider.State) State {
	switch s {
	case provider.StateOpen:
		return StateOpen
	case provider.StateClose:
		return StateClosed
	case provider.StateConnecting:
		return StatePairing
	default:
		return StateUninitialized
	}
}
