// Package device describes the read-only facts of a puzzle device that every
// module solver consults: serial code, indicators, batteries, ports, strikes and
// a summary of the other modules mounted on the same device.
package device

import (
	"strings"
	"unicode"
)

// ModuleType is the tag identifying a module kind.
type ModuleType string

// Port is a physical port type found on a port plate.
type Port string

const (
	PortDVI       Port = "dvi"
	PortParallel  Port = "parallel"
	PortPS2       Port = "ps2"
	PortRJ45      Port = "rj45"
	PortSerial    Port = "serial"
	PortStereoRCA Port = "stereo_rca"
)

// PortPlate is the set of ports on one plate.
type PortPlate []Port

// Batteries counts the cells mounted on the device.
// D cells sit one per holder, AA cells two per holder.
type Batteries struct {
	D  int `json:"d" yaml:"d"`
	AA int `json:"aa" yaml:"aa"`
}

// Count returns the total number of batteries.
func (b Batteries) Count() int {
	return b.D + b.AA
}

// Holders returns the number of battery holders.
func (b Batteries) Holders() int {
	return b.D + (b.AA+1)/2
}

// Sibling summarizes one module mounted on the device.
type Sibling struct {
	ID     string     `json:"id" yaml:"id"`
	Type   ModuleType `json:"type" yaml:"type"`
	Solved bool       `json:"solved" yaml:"solved"`
	// Priority and Gates are only populated for module types that are ordered
	// against each other (Turn The Keys).
	Priority *int   `json:"priority,omitempty" yaml:"priority,omitempty"`
	Gates    []bool `json:"gates,omitempty" yaml:"gates,omitempty"`
}

// Facts is the snapshot handed to a solver. Solvers must treat it as read-only.
type Facts struct {
	Serial     string          `json:"serial" yaml:"serial"`
	Indicators map[string]bool `json:"indicators" yaml:"indicators"`
	Batteries  Batteries       `json:"batteries" yaml:"batteries"`
	PortPlates []PortPlate     `json:"port_plates" yaml:"port_plates"`
	Strikes    int             `json:"strikes" yaml:"strikes"`
	Modules    []Sibling       `json:"modules" yaml:"modules"`
}

// SerialDigits returns the digits of the serial code in order.
func (f Facts) SerialDigits() []int {
	var digits []int
	for _, r := range f.Serial {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	return digits
}

// SerialLastDigit returns the last digit of the serial code.
func (f Facts) SerialLastDigit() (int, bool) {
	digits := f.SerialDigits()
	if len(digits) == 0 {
		return 0, false
	}
	return digits[len(digits)-1], true
}

// SerialLastDigitOdd reports whether the serial ends in an odd digit.
func (f Facts) SerialLastDigitOdd() bool {
	d, ok := f.SerialLastDigit()
	return ok && d%2 == 1
}

// SerialHasVowel reports whether the serial contains A, E, I, O or U.
func (f Facts) SerialHasVowel() bool {
	return strings.ContainsAny(strings.ToUpper(f.Serial), "AEIOU")
}

// SerialLetters returns the letters of the serial code, upper-cased.
func (f Facts) SerialLetters() string {
	var b strings.Builder
	for _, r := range strings.ToUpper(f.Serial) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HasIndicator reports whether an indicator with the label and lit state exists.
func (f Facts) HasIndicator(label string, lit bool) bool {
	v, ok := f.Indicators[strings.ToUpper(label)]
	return ok && v == lit
}

// LitIndicators counts lit indicators.
func (f Facts) LitIndicators() int {
	n := 0
	for _, lit := range f.Indicators {
		if lit {
			n++
		}
	}
	return n
}

// UnlitIndicators counts unlit indicators.
func (f Facts) UnlitIndicators() int {
	return len(f.Indicators) - f.LitIndicators()
}

// HasPort reports whether any plate carries the port.
func (f Facts) HasPort(p Port) bool {
	for _, plate := range f.PortPlates {
		for _, q := range plate {
			if q == p {
				return true
			}
		}
	}
	return false
}

// PortCount counts ports across all plates.
func (f Facts) PortCount() int {
	n := 0
	for _, plate := range f.PortPlates {
		n += len(plate)
	}
	return n
}

// ModuleCounts returns how many modules of the type are present and how many
// of those are solved.
func (f Facts) ModuleCounts(t ModuleType) (present, solved int) {
	for _, m := range f.Modules {
		if m.Type != t {
			continue
		}
		present++
		if m.Solved {
			solved++
		}
	}
	return present, solved
}

// AllSolved reports whether every module of the type present on the device is
// solved. A type with no modules present is trivially solved.
func (f Facts) AllSolved(t ModuleType) bool {
	present, solved := f.ModuleCounts(t)
	return solved >= present
}

// AnySolved reports whether at least one module of the type is solved.
func (f Facts) AnySolved(t ModuleType) bool {
	_, solved := f.ModuleCounts(t)
	return solved > 0
}

// Sibling looks up a module summary by ID.
func (f Facts) Sibling(id string) (Sibling, bool) {
	for _, m := range f.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return Sibling{}, false
}
