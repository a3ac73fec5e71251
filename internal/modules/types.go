// Package modules holds the solver for every supported module type and the
// static registry that wires them together.
package modules

import (
	"github.com/AaronLay10/DefusalEngine/internal/device"
)

// Module type tags. Types without a solver here still appear in device facts
// and matter to the ordering rules of Turn The Keys.
const (
	TypeWires            device.ModuleType = "wires"
	TypeButton           device.ModuleType = "button"
	TypeKeypad           device.ModuleType = "keypad"
	TypeSimonSays        device.ModuleType = "simon_says"
	TypeWhosOnFirst      device.ModuleType = "whos_on_first"
	TypeMemory           device.ModuleType = "memory"
	TypeMorseCode        device.ModuleType = "morse_code"
	TypeComplicatedWires device.ModuleType = "complicated_wires"
	TypeWireSequence     device.ModuleType = "wire_sequence"
	TypeMaze             device.ModuleType = "maze"
	TypePassword         device.ModuleType = "password"
	TypeSwitches         device.ModuleType = "switches"
	TypeTurnTheKeys      device.ModuleType = "turn_the_keys"
	TypeCryptography     device.ModuleType = "cryptography"
	TypeForgetMeNot      device.ModuleType = "forget_me_not"
	TypeChess            device.ModuleType = "chess"
	TypeTwoBits          device.ModuleType = "two_bits"
	TypeColourFlash      device.ModuleType = "colour_flash"
	TypeRoundKeypad      device.ModuleType = "round_keypad"
	TypeSemaphore        device.ModuleType = "semaphore"
	TypeCombinationLock  device.ModuleType = "combination_lock"
	TypeAstrology        device.ModuleType = "astrology"
	TypePlumbing         device.ModuleType = "plumbing"
	TypeCrazyTalk        device.ModuleType = "crazy_talk"
	TypeListening        device.ModuleType = "listening"
	TypeOrientationCube  device.ModuleType = "orientation_cube"
)

var typeNames = map[device.ModuleType]string{
	TypeWires:            "Wires",
	TypeButton:           "The Button",
	TypeKeypad:           "Keypad",
	TypeSimonSays:        "Simon Says",
	TypeWhosOnFirst:      "Who's on First",
	TypeMemory:           "Memory",
	TypeMorseCode:        "Morse Code",
	TypeComplicatedWires: "Complicated Wires",
	TypeWireSequence:     "Wire Sequence",
	TypeMaze:             "Maze",
	TypePassword:         "Password",
	TypeSwitches:         "Switches",
	TypeTurnTheKeys:      "Turn The Keys",
	TypeCryptography:     "Cryptography",
	TypeForgetMeNot:      "Forget Me Not",
	TypeChess:            "Chess",
	TypeTwoBits:          "Two Bits",
	TypeColourFlash:      "Colour Flash",
	TypeRoundKeypad:      "Round Keypad",
	TypeSemaphore:        "Semaphore",
	TypeCombinationLock:  "Combination Lock",
	TypeAstrology:        "Astrology",
	TypePlumbing:         "Plumbing",
	TypeCrazyTalk:        "Crazy Talk",
	TypeListening:        "Listening",
	TypeOrientationCube:  "Orientation Cube",
}

// DisplayName returns the human-readable name of a module type.
func DisplayName(t device.ModuleType) string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return string(t)
}
