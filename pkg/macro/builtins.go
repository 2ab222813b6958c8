package macro

import (
	"math/rand"
	"strconv"
	"strings"
)

// builtin parameterized macros, supplementing the bare {{name}} /
// {{name::arg}} forms ("Macro Engine extras"). These are
// checked before a plain Env lookup so callers don't need to pre-register
// them, and they consume the RNG set on the Engine so that two Engines
// seeded identically produce identical output (determinism law).
var builtinNames = map[string]bool{
	"random": true,
	"pick":   true,
	"roll":   true,
}

// WithRand installs the RNG used by {{random}}/{{pick}}/{{roll}}. Passing a
// *rand.Rand constructed from a fixed seed makes Plan assembly deterministic.
func (eng *Engine) WithRand(r *rand.Rand) *Engine {
	eng.rng = r
	return eng
}

func (eng *Engine) rand() *rand.Rand {
	if eng.rng == nil {
		eng.rng = rand.New(rand.NewSource(1))
	}
	return eng.rng
}

// evalBuiltin returns (result, handled). handled is false when name isn't a
// recognized builtin, so the caller falls through to the normal Env lookup.
func (eng *Engine) evalBuiltin(name string, args []string) (string, bool) {
	if !builtinNames[strings.ToLower(name)] {
		return "", false
	}
	switch strings.ToLower(name) {
	case "random", "pick":
		if len(args) == 0 {
			return "", true
		}
		return args[eng.rand().Intn(len(args))], true
	case "roll":
		if len(args) != 1 {
			return "", true
		}
		n, sides, ok := parseDice(args[0])
		if !ok {
			return args[0], true
		}
		total := 0
		for i := 0; i < n; i++ {
			total += 1 + eng.rand().Intn(sides)
		}
		return strconv.Itoa(total), true
	}
	return "", false
}

// parseDice parses "NdM" dice notation, e.g. "1d6", "2d20".
func parseDice(s string) (n, sides int, ok bool) {
	parts := strings.SplitN(strings.ToLower(s), "d", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	n, err1 := strconv.Atoi(parts[0])
	sides, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || n <= 0 || sides <= 0 {
		return 0, 0, false
	}
	return n, sides, true
}
