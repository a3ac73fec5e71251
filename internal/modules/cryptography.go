package modules

import (
	_ "embed"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

// CryptoKeyCount is the number of key letters on the module.
const CryptoKeyCount = 5

// cryptoFixed is the only letter that maps to itself.
const cryptoFixed = 'E'

//go:embed corpus.txt
var stockCorpus string

// CryptoInput is the displayed ciphertext and the letters printed on the keys.
type CryptoInput struct {
	Ciphertext string   `json:"ciphertext"`
	Keys       []string `json:"keys"`
}

// CryptoOutput is the recovered plaintext and the order to press the keys.
type CryptoOutput struct {
	Order     []string          `json:"order"`
	Plaintext string            `json:"plaintext"`
	Offset    int               `json:"offset"`
	Mapping   map[string]string `json:"mapping"`
}

// Cryptography recovers a substitution cipher by matching the ciphertext
// against a window of a known corpus.
type Cryptography struct {
	corpus []string
	typed  solver.Solver
}

// NewCryptography builds the solver over the given corpus text.
func NewCryptography(corpus string) *Cryptography {
	c := &Cryptography{corpus: NormalizeWords(corpus)}
	c.typed = solver.Typed(c.Descriptor(), c.solve)
	return c
}

// NewStockCryptography builds the solver over the embedded corpus.
func NewStockCryptography() *Cryptography {
	return NewCryptography(stockCorpus)
}

// NormalizeWords upper-cases text and splits it into words of A-Z letters.
// Accents are stripped and apostrophes dropped, so "O'Clock" becomes "OCLOCK".
func NormalizeWords(text string) []string {
	bare := strings.Map(func(r rune) rune {
		if r == '\'' || r == '’' || unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, norm.NFKD.String(text))
	upper := cases.Upper(language.Und).String(bare)
	return strings.FieldsFunc(upper, func(r rune) bool {
		return r < 'A' || r > 'Z'
	})
}

// Descriptor implements solver.Solver.
func (c *Cryptography) Descriptor() solver.Descriptor {
	return solver.Descriptor{
		Type:  TypeCryptography,
		Name:  DisplayName(TypeCryptography),
		Input: `{"ciphertext":"DSITSGT ...","keys":["A","B","C","D","E"]}`,
		Tags:  []string{"search"},
	}
}

// Solve implements solver.Solver.
func (c *Cryptography) Solve(req solver.Request) solver.Result {
	return c.typed.Solve(req)
}

func (c *Cryptography) solve(_ device.Facts, st struct{}, in CryptoInput) (solver.Result, struct{}) {
	cipher := NormalizeWords(in.Ciphertext)
	if len(cipher) == 0 {
		return solver.Invalid("ciphertext is empty"), st
	}
	keys, res := normalizeKeys(in.Keys)
	if !res.OK() {
		return res, st
	}

	out, ok := c.Search(cipher, keys)
	if !ok {
		return solver.Inconsistent("no corpus window fits ciphertext %q", strings.Join(cipher, " ")), st
	}
	return solver.Success(out, true), st
}

func normalizeKeys(raw []string) ([]byte, solver.Result) {
	if len(raw) != CryptoKeyCount {
		return nil, solver.Invalid("expected %d key letters, got %d", CryptoKeyCount, len(raw))
	}
	keys := make([]byte, 0, len(raw))
	seen := map[byte]bool{}
	for _, k := range raw {
		k = strings.ToUpper(strings.TrimSpace(k))
		if len(k) != 1 || k[0] < 'A' || k[0] > 'Z' {
			return nil, solver.Invalid("key %q must be a single letter", k)
		}
		if seen[k[0]] {
			return nil, solver.Invalid("key letter %s appears twice", k)
		}
		seen[k[0]] = true
		keys = append(keys, k[0])
	}
	return keys, solver.Success(nil, false)
}

// Search slides a window of len(cipher) words across the corpus and returns
// the first window that admits a consistent mapping and contains every key
// letter.
func (c *Cryptography) Search(cipher []string, keys []byte) (CryptoOutput, bool) {
	n := len(cipher)
	for off := 0; off+n <= len(c.corpus); off++ {
		window := c.corpus[off : off+n]
		mapping, ok := matchWindow(cipher, window)
		if !ok {
			continue
		}
		plain := strings.Join(window, " ")
		order, ok := keyOrder(plain, keys)
		if !ok {
			continue
		}
		return CryptoOutput{
			Order:     order,
			Plaintext: plain,
			Offset:    off,
			Mapping:   formatMapping(mapping),
		}, true
	}
	return CryptoOutput{}, false
}

// matchWindow builds the cipher-to-plain mapping for one window, failing on
// the first contradiction.
func matchWindow(cipher, window []string) (map[byte]byte, bool) {
	for i := range cipher {
		if len(cipher[i]) != len(window[i]) {
			return nil, false
		}
	}

	forward := map[byte]byte{}
	reverse := map[byte]byte{}
	for i := range cipher {
		for j := 0; j < len(cipher[i]); j++ {
			from, to := cipher[i][j], window[i][j]
			if (from == cryptoFixed) != (to == cryptoFixed) {
				return nil, false
			}
			if from == to && from != cryptoFixed {
				return nil, false
			}
			if prev, ok := forward[from]; ok && prev != to {
				return nil, false
			}
			if prev, ok := reverse[to]; ok && prev != from {
				return nil, false
			}
			forward[from] = to
			reverse[to] = from
		}
	}
	return forward, true
}

// keyOrder returns keys ordered by first occurrence in plain, or false if any
// key is missing.
func keyOrder(plain string, keys []byte) ([]string, bool) {
	type hit struct {
		key byte
		pos int
	}
	hits := make([]hit, 0, len(keys))
	for _, k := range keys {
		pos := strings.IndexByte(plain, k)
		if pos < 0 {
			return nil, false
		}
		hits = append(hits, hit{key: k, pos: pos})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	order := make([]string, len(hits))
	for i, h := range hits {
		order[i] = string(h.key)
	}
	return order, true
}

// Apply maps ciphertext words through mapping. Letters without an entry pass
// through unchanged.
func Apply(cipher []string, mapping map[string]string) []string {
	out := make([]string, len(cipher))
	for i, w := range cipher {
		var b strings.Builder
		for j := 0; j < len(w); j++ {
			if to, ok := mapping[string(w[j])]; ok {
				b.WriteString(to)
			} else {
				b.WriteByte(w[j])
			}
		}
		out[i] = b.String()
	}
	return out
}

func formatMapping(m map[byte]byte) map[string]string {
	out := make(map[string]string, len(m))
	for from, to := range m {
		out[string(from)] = string(to)
	}
	return out
}
