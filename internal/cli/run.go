package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/presentation/tui"
)

// RunOptions contains the configuration for the run command.
type RunOptions struct {
	Path          string
	Backend       string
	StatePath     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MachineID     string
	Debug         bool
}

// Run drives a machine interactively: each prompt line is a trigger name
// followed by its arguments, fired synchronously so the outcome prints before
// the next prompt. Non-terminal stdin skips the banner and prompt, which
// keeps piped scripts clean.
func Run(opts RunOptions) error {
	logger := createLogger(opts.Debug)
	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	if interactive {
		tui.PrintBanner()
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	m, def, err := NewEngine(sigCtx, EngineConfig{
		Path:          opts.Path,
		Backend:       opts.Backend,
		StatePath:     opts.StatePath,
		RedisAddr:     opts.RedisAddr,
		RedisPassword: opts.RedisPassword,
		RedisDB:       opts.RedisDB,
		MachineID:     opts.MachineID,
		Logger:        logger,
		Echo:          os.Stdout,
	})
	if err != nil {
		return err
	}
	if opts.Debug {
		attachDebugObservers(m, logger)
	}

	m.Start(sigCtx)
	defer m.Stop()

	state, err := m.State(sigCtx)
	if err != nil {
		return fmt.Errorf("cannot read current state: %w", err)
	}
	name := def.Name
	if name == "" {
		name = opts.Path
	}
	printSystemMessage("Machine '%s' at state '%s'.", name, state)
	if interactive {
		printSystemMessage("Type a trigger name to fire it, 'help' for commands.")
	}

	err = promptLoop(sigCtx, m, interactive)

	if final, serr := m.State(context.Background()); serr == nil {
		printSystemMessage("Stopped at state '%s'.", final)
	}
	if sigCtx.Err() != nil && err == nil {
		err = sigCtx.Err()
	}
	return handleExecutionError(err)
}

func promptLoop(ctx *SignalContext, m *espalier.Machine[string, string], interactive bool) error {
	scanner := bufio.NewScanner(NewInterruptibleReader(os.Stdin, ctx.Done()))

	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			if serr := scanner.Err(); serr != nil {
				return serr
			}
			return nil // EOF
		}

		line, err := sanitizeInput(scanner.Text())
		if err != nil {
			printSystemMessage("Input rejected: %v", err)
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "q", "quit", "exit":
			return nil
		case "help", "?":
			printHelp()
			continue
		case "state":
			if err := printState(ctx, m); err != nil {
				return err
			}
			continue
		}

		if err := fireLine(ctx, m, fields[0], fields[1:]); err != nil {
			return err
		}
	}
}

// fireLine fires one trigger and prints its outcome. Argument tokens are
// checked against the trigger's declared parameters before firing; a shape
// mismatch at the prompt must never reach the dispatcher, where it would be
// fatal.
func fireLine(ctx context.Context, m *espalier.Machine[string, string], trigger string, tokens []string) error {
	args, err := coerceTokens(m, trigger, tokens)
	if err != nil {
		printSystemMessage("Cannot fire: %v", err)
		return nil
	}

	out, err := m.FireSync(ctx, trigger, args...)

	var rejected *espalier.InvalidTriggerError
	switch {
	case err == nil:
		printOutcome(out)
		return nil
	case errors.As(err, &rejected):
		printSystemMessage("Rejected: %v", rejected)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, espalier.ErrStopped):
		return err
	default:
		// Anything else terminated the dispatcher.
		printSystemMessage("Machine failed: %v", err)
		return fmt.Errorf("dispatch failed: %w", err)
	}
}

func printOutcome(out espalier.Outcome[string, string]) {
	switch {
	case out.Transitioned && out.Transition.IsReentry():
		fmt.Printf("%s (reentry) [#%d]\n", out.Transition.Destination, out.Seq)
	case out.Transitioned:
		fmt.Printf("%s -> %s [#%d]\n", out.Transition.Source, out.Transition.Destination, out.Seq)
	default:
		fmt.Printf("handled, no transition [#%d]\n", out.Seq)
	}
}

func printState(ctx context.Context, m *espalier.Machine[string, string]) error {
	state, err := m.State(ctx)
	if err != nil {
		return fmt.Errorf("cannot read current state: %w", err)
	}
	triggers, err := m.PermittedTriggers(ctx)
	if err != nil {
		return fmt.Errorf("cannot list permitted triggers: %w", err)
	}
	sort.Strings(triggers)
	printSystemMessage("State '%s'. Permitted: %s", state, strings.Join(triggers, ", "))
	return nil
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  <trigger> [args...]  fire a trigger")
	fmt.Println("  state                show the current state and permitted triggers")
	fmt.Println("  help                 show this help")
	fmt.Println("  quit                 leave (also: q, exit, Ctrl-D)")
}

// coerceTokens converts prompt tokens into the argument types the trigger
// declares. Triggers without declared parameters pass tokens through as
// strings, which suits dynamic transitions resolved by destination name.
func coerceTokens(m *espalier.Machine[string, string], trigger string, tokens []string) ([]any, error) {
	args := make([]any, len(tokens))

	spec, ok := m.TriggerParameters(trigger)
	if !ok {
		for i, tok := range tokens {
			args[i] = tok
		}
		return args, nil
	}

	types := spec.Types()
	if len(tokens) != len(types) {
		return nil, fmt.Errorf("trigger %q takes %d argument(s), got %d", trigger, len(types), len(tokens))
	}
	for i, tok := range tokens {
		v, err := parseToken(types[i], tok)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %q: %w", i, trigger, err)
		}
		args[i] = v
	}
	return args, nil
}

func parseToken(t reflect.Type, tok string) (any, error) {
	switch t.Kind() {
	case reflect.String:
		return tok, nil
	case reflect.Int:
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("%q is not an int", tok)
		}
		return v, nil
	case reflect.Float64:
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", tok)
		}
		return v, nil
	case reflect.Bool:
		v, err := strconv.ParseBool(tok)
		if err != nil {
			return nil, fmt.Errorf("%q is not a bool", tok)
		}
		return v, nil
	case reflect.Interface:
		return tok, nil
	default:
		return nil, fmt.Errorf("parameters of type %s cannot be entered at the prompt", t)
	}
}
