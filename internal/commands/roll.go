package commands

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"github.com/keshon/switchboard/pkg/cmd"
	"github.com/keshon/switchboard/pkg/dispatch"
)

const (
	maxDice  = 100
	maxSides = 1000
)

var diceRegex = regexp.MustCompile(`(?i)^(\d*)d(\d+)$`)

var commonFormulas = []string{"d20", "d6", "2d6", "d100", "4d6", "d12", "d10", "d8", "d4"}

// rollState is created per invocation.
type rollState struct {
	rng   func(n int) int
	rolls []int
}

func newRollState() *rollState {
	return &rollState{rng: rand.IntN}
}

func registerRoll(e *dispatch.Engine) error {
	return e.RegisterCommand("roll", dispatch.Stateful(newRollState, roll),
		dispatch.WithDescription("Roll dice like `2d6`"),
		dispatch.WithOptions(cmd.Option{
			Name:         "formula",
			Description:  "Dice to roll, e.g. `3d8`",
			Type:         cmd.OptionString,
			Required:     true,
			Autocomplete: true,
		}),
		dispatch.WithAutocomplete(suggestFormulas),
	)
}

func roll(c *dispatch.Context, st *rollState) error {
	formula, _ := c.String("formula")
	count, sides, err := parseDice(formula)
	if err != nil {
		return &dispatch.UserError{Message: fmt.Sprintf("Can't parse `%s`: %v", formula, err), Err: err}
	}

	total := 0
	for range count {
		r := st.rng(sides) + 1
		st.rolls = append(st.rolls, r)
		total += r
	}
	parts := make([]string, len(st.rolls))
	for i, r := range st.rolls {
		parts[i] = strconv.Itoa(r)
	}
	return c.Replyf("🎲 `%s` → [%s] = **%d**", formula, strings.Join(parts, ", "), total)
}

// parseDice parses "NdM" where N defaults to 1.
func parseDice(s string) (int, int, error) {
	m := diceRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, fmt.Errorf("expected something like 2d6")
	}
	count := 1
	if m[1] != "" {
		count, _ = strconv.Atoi(m[1])
	}
	sides, _ := strconv.Atoi(m[2])
	switch {
	case count < 1 || count > maxDice:
		return 0, 0, fmt.Errorf("between 1 and %d dice please", maxDice)
	case sides < 2 || sides > maxSides:
		return 0, 0, fmt.Errorf("dice need between 2 and %d sides", maxSides)
	}
	return count, sides, nil
}

func suggestFormulas(c *dispatch.Context, focused string) ([]cmd.Choice, error) {
	typed, _ := c.String(focused)
	typed = strings.ToLower(strings.TrimSpace(typed))
	var out []cmd.Choice
	for _, f := range commonFormulas {
		if strings.HasPrefix(f, typed) {
			out = append(out, cmd.Choice{Name: f, Value: f})
		}
	}
	return out, nil
}
