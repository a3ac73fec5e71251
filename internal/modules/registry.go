package modules

import (
	"fmt"

	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

// Options tunes the solvers that take configuration.
type Options struct {
	Morse MorseConfig
	Keys  KeyRules
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{Morse: DefaultMorseConfig, Keys: StockKeyRules}
}

// NewRegistry registers every supported module type.
func NewRegistry(codec *solver.Codec, opts Options) (*solver.Registry, error) {
	reg := solver.NewRegistry(codec)
	all := []solver.Solver{
		NewWires(),
		NewButton(),
		NewMemory(),
		NewMorse(opts.Morse, StockMorseWords),
		NewPassword(StockPasswords),
		NewStockSwitches(),
		NewTurnTheKeys(opts.Keys),
		NewStockCryptography(),
		NewForgetMeNot(),
		NewChess(),
	}
	for _, s := range all {
		if err := reg.Register(s); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", s.Descriptor().Type, err)
		}
	}
	return reg, nil
}
