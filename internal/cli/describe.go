package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/aretw0/espalier/internal/presentation/tui"
	"github.com/aretw0/espalier/pkg/schema"
)

// Describe prints a summary of the definition at path: states with their
// hierarchy and actions, transitions with guards, and declared trigger
// parameters. On a terminal the markdown is rendered with glamour; piped
// output gets the raw markdown.
func Describe(path string) error {
	def, err := LoadDefinition(context.Background(), path)
	if err != nil {
		return err
	}

	md := describeMarkdown(def)

	if term.IsTerminal(int(os.Stdout.Fd())) {
		render := tui.NewRenderer()
		out, rerr := render(md)
		if rerr == nil {
			fmt.Print(out)
			return nil
		}
	}
	fmt.Print(md)
	return nil
}

func describeMarkdown(def *schema.Definition) string {
	var b strings.Builder

	name := def.Name
	if name == "" {
		name = "machine"
	}
	fmt.Fprintf(&b, "# %s\n\n", name)
	fmt.Fprintf(&b, "Initial state: `%s`\n\n", def.Initial)

	fmt.Fprintf(&b, "## States\n\n")
	for _, state := range def.StateNames() {
		sd := def.States[state]
		if sd.Superstate != "" {
			fmt.Fprintf(&b, "### %s (substate of %s)\n\n", state, sd.Superstate)
		} else {
			fmt.Fprintf(&b, "### %s\n\n", state)
		}
		if len(sd.OnEntry) > 0 {
			fmt.Fprintf(&b, "- on entry: `%s`\n", strings.Join(sd.OnEntry, "`, `"))
		}
		if len(sd.OnExit) > 0 {
			fmt.Fprintf(&b, "- on exit: `%s`\n", strings.Join(sd.OnExit, "`, `"))
		}
		for _, t := range sd.Transitions {
			fmt.Fprintf(&b, "- %s\n", describeTransition(t))
		}
		b.WriteString("\n")
	}

	if len(def.Triggers) > 0 {
		fmt.Fprintf(&b, "## Trigger parameters\n\n")
		for _, name := range sortedTriggerNames(def) {
			params := def.Triggers[name].Params
			fmt.Fprintf(&b, "- `%s(%s)`\n", name, strings.Join(params, ", "))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func describeTransition(t schema.TransitionDef) string {
	var desc string
	switch {
	case t.Ignore:
		desc = fmt.Sprintf("`%s`: ignored", t.Trigger)
	case t.Internal != "":
		desc = fmt.Sprintf("`%s`: internal action `%s`", t.Trigger, t.Internal)
	case t.Dynamic != "":
		desc = fmt.Sprintf("`%s`: destination resolved by `%s`", t.Trigger, t.Dynamic)
	default:
		desc = fmt.Sprintf("`%s`: to **%s**", t.Trigger, t.To)
	}
	if t.Guard != "" {
		desc += fmt.Sprintf(" (guard: `%s`)", t.Guard)
	}
	return desc
}

func sortedTriggerNames(def *schema.Definition) []string {
	names := make([]string, 0, len(def.Triggers))
	for name := range def.Triggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
