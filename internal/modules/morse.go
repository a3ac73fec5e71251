package modules

import (
	"math"
	"sort"
	"strings"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

// MorseWord is a dictionary entry: the word, the frequency to transmit, and a
// static prior used to order otherwise tied candidates.
type MorseWord struct {
	Word      string  `json:"word"`
	Frequency string  `json:"frequency"`
	Prior     float64 `json:"prior"`
}

// MorseConfig holds the fixed scoring parameters.
type MorseConfig struct {
	PresenceWeight    float64 `yaml:"presence_weight"`
	SubsequenceWeight float64 `yaml:"subsequence_weight"`
	CoverageWeight    float64 `yaml:"coverage_weight"`
	Threshold         float64 `yaml:"threshold"`
	Margin            float64 `yaml:"margin"`
}

// DefaultMorseConfig is the stock scoring configuration.
var DefaultMorseConfig = MorseConfig{
	PresenceWeight:    0.45,
	SubsequenceWeight: 0.35,
	CoverageWeight:    0.20,
	Threshold:         0.8,
	Margin:            0.1,
}

// StockMorseWords is the manual's word table.
var StockMorseWords = []MorseWord{
	{"shell", "3.505 MHz", 1}, {"halls", "3.515 MHz", 1}, {"slick", "3.522 MHz", 1}, {"trick", "3.532 MHz", 1},
	{"boxes", "3.535 MHz", 1}, {"leaks", "3.542 MHz", 1}, {"strobe", "3.545 MHz", 1}, {"bistro", "3.552 MHz", 1},
	{"flick", "3.555 MHz", 1}, {"bombs", "3.565 MHz", 1}, {"break", "3.572 MHz", 1}, {"brick", "3.575 MHz", 1},
	{"steak", "3.582 MHz", 1}, {"sting", "3.592 MHz", 1}, {"vector", "3.595 MHz", 1}, {"beats", "3.600 MHz", 1},
}

var morseAlphabet = map[string]byte{
	".-": 'a', "-...": 'b', "-.-.": 'c', "-..": 'd', ".": 'e', "..-.": 'f', "--.": 'g', "....": 'h',
	"..": 'i', ".---": 'j', "-.-": 'k', ".-..": 'l', "--": 'm', "-.": 'n', "---": 'o', ".--.": 'p',
	"--.-": 'q', ".-.": 'r', "...": 's', "-": 't', "..-": 'u', "...-": 'v', ".--": 'w', "-..-": 'x',
	"-.--": 'y', "--..": 'z',
}

// MorseInput is the observation: either decoded letters or raw Morse groups.
type MorseInput struct {
	Letters string   `json:"letters,omitempty"`
	Signals []string `json:"signals,omitempty"`
}

// MorseCandidate is one ranked dictionary entry.
type MorseCandidate struct {
	Word       string  `json:"word"`
	Frequency  string  `json:"frequency"`
	Confidence float64 `json:"confidence"`
}

// MorseOutput carries the resolved word, when there is one, and the full
// ranking.
type MorseOutput struct {
	Observed  string           `json:"observed"`
	Word      string           `json:"word,omitempty"`
	Frequency string           `json:"frequency,omitempty"`
	Ranked    []MorseCandidate `json:"ranked"`
}

// Morse matches a partial, possibly noisy observation against the word table.
type Morse struct {
	cfg   MorseConfig
	words []MorseWord
	typed solver.Solver
}

// NewMorse builds a matcher over words scored with cfg.
func NewMorse(cfg MorseConfig, words []MorseWord) *Morse {
	m := &Morse{cfg: cfg, words: words}
	m.typed = solver.Typed(m.Descriptor(), m.solve)
	return m
}

// Descriptor implements solver.Solver.
func (m *Morse) Descriptor() solver.Descriptor {
	return solver.Descriptor{
		Type:  TypeMorseCode,
		Name:  DisplayName(TypeMorseCode),
		Input: `{"letters":"shel"} or {"signals":["...","...."]}`,
		Tags:  []string{"matching"},
	}
}

// Solve implements solver.Solver.
func (m *Morse) Solve(req solver.Request) solver.Result {
	return m.typed.Solve(req)
}

func (m *Morse) solve(_ device.Facts, st struct{}, in MorseInput) (solver.Result, struct{}) {
	observed, res := decodeObservation(in)
	if !res.OK() {
		return res, st
	}

	ranked := m.Rank(observed)
	out := MorseOutput{Observed: observed, Ranked: ranked}
	if len(ranked) == 0 {
		return solver.Inconsistent("word table is empty"), st
	}

	top := ranked[0]
	runnerUp := 0.0
	if len(ranked) > 1 {
		runnerUp = ranked[1].Confidence
	}
	if top.Confidence >= m.cfg.Threshold && round3(top.Confidence-runnerUp) >= m.cfg.Margin {
		out.Word = top.Word
		out.Frequency = top.Frequency
		return solver.Success(out, true), st
	}
	return solver.Success(out, false), st
}

func decodeObservation(in MorseInput) (string, solver.Result) {
	if in.Letters != "" && len(in.Signals) > 0 {
		return "", solver.Invalid("give either letters or signals, not both")
	}

	var b strings.Builder
	if len(in.Signals) > 0 {
		for _, sig := range in.Signals {
			c, ok := morseAlphabet[strings.TrimSpace(sig)]
			if !ok {
				return "", solver.Unknown(morseSymbols(), "unknown Morse group %q", sig)
			}
			b.WriteByte(c)
		}
	} else {
		for _, r := range strings.ToLower(in.Letters) {
			if r == ' ' {
				continue
			}
			if r < 'a' || r > 'z' {
				return "", solver.Invalid("letters must be a-z, got %q", r)
			}
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return "", solver.Invalid("observation is empty")
	}
	return b.String(), solver.Success(nil, false)
}

func morseSymbols() []string {
	keys := make([]string, 0, len(morseAlphabet))
	for k := range morseAlphabet {
		keys = append(keys, k)
	}
	return keys
}

// Rank scores every word against the observation, highest confidence first.
func (m *Morse) Rank(observed string) []MorseCandidate {
	type scored struct {
		MorseCandidate
		prior float64
	}
	all := make([]scored, 0, len(m.words))
	for _, w := range m.words {
		all = append(all, scored{
			MorseCandidate: MorseCandidate{Word: w.Word, Frequency: w.Frequency, Confidence: m.Confidence(observed, w.Word)},
			prior:          w.Prior,
		})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Confidence != all[j].Confidence {
			return all[i].Confidence > all[j].Confidence
		}
		if all[i].prior != all[j].prior {
			return all[i].prior > all[j].prior
		}
		return all[i].Word < all[j].Word
	})

	out := make([]MorseCandidate, len(all))
	for i, s := range all {
		out[i] = s.MorseCandidate
	}
	return out
}

// Confidence blends the three match signals and rounds to three decimals.
func (m *Morse) Confidence(observed, word string) float64 {
	p, s, c := MorseSignals(observed, word)
	return round3(m.cfg.PresenceWeight*p + m.cfg.SubsequenceWeight*s + m.cfg.CoverageWeight*c)
}

// MorseSignals returns, for an observation against a word:
// the fraction of observed letters that appear anywhere in the word, the
// greedy in-order subsequence length over the observation length, and the
// fraction of the word's distinct letters seen in the observation.
func MorseSignals(observed, word string) (presence, subsequence, coverage float64) {
	if observed == "" || word == "" {
		return 0, 0, 0
	}

	inWord := letterSet(word)
	hits := 0
	for i := 0; i < len(observed); i++ {
		if inWord[observed[i]] {
			hits++
		}
	}
	presence = float64(hits) / float64(len(observed))

	subsequence = float64(greedySubsequence(observed, word)) / float64(len(observed))

	seen := letterSet(observed)
	covered := 0
	for c := range inWord {
		if seen[c] {
			covered++
		}
	}
	coverage = float64(covered) / float64(len(inWord))
	return presence, subsequence, coverage
}

// greedySubsequence scans the observation left to right, consuming the first
// unconsumed matching letter of word after the previous match. There is no
// backtracking, so each word letter is used at most once.
func greedySubsequence(observed, word string) int {
	pos, n := 0, 0
	for i := 0; i < len(observed) && pos < len(word); i++ {
		idx := strings.IndexByte(word[pos:], observed[i])
		if idx < 0 {
			continue
		}
		n++
		pos += idx + 1
	}
	return n
}

func letterSet(s string) map[byte]bool {
	set := make(map[byte]bool, len(s))
	for i := 0; i < len(s); i++ {
		set[s[i]] = true
	}
	return set
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
