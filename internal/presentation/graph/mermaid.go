package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/espalier/pkg/schema"
)

// Overlay contains runtime data to highlight on the rendered diagram.
type Overlay struct {
	CurrentState string
}

// GenerateMermaid produces a Mermaid stateDiagram-v2 document from a machine
// definition. Superstates become composite blocks, guarded transitions carry
// the guard description in the edge label, and dynamic transitions point at a
// <<choice>> pseudo-state labelled with the resolver name. Ignored triggers do
// not appear. If an overlay is provided, the current state is styled.
func GenerateMermaid(def *schema.Definition, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("stateDiagram-v2\n")

	children := make(map[string][]string)
	var roots []string
	for _, name := range def.StateNames() {
		st := def.States[name]
		if st.Superstate == "" {
			roots = append(roots, name)
			continue
		}
		children[st.Superstate] = append(children[st.Superstate], name)
	}
	for _, kids := range children {
		sort.Strings(kids)
	}

	for _, name := range roots {
		writeState(&sb, children, name, 1)
	}

	sb.WriteString(fmt.Sprintf("    [*] --> %s\n", sanitizeMermaidID(def.Initial)))

	for _, name := range def.StateNames() {
		writeTransitions(&sb, name, def.States[name])
	}

	if overlay != nil && overlay.CurrentState != "" {
		sb.WriteString("\n    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000\n")
		sb.WriteString(fmt.Sprintf("    class %s current\n", sanitizeMermaidID(overlay.CurrentState)))
	}

	return sb.String()
}

func writeState(sb *strings.Builder, children map[string][]string, name string, depth int) {
	indent := strings.Repeat("    ", depth)
	safeID := sanitizeMermaidID(name)
	kids := children[name]

	if len(kids) == 0 {
		if safeID != name {
			fmt.Fprintf(sb, "%sstate \"%s\" as %s\n", indent, name, safeID)
		} else {
			fmt.Fprintf(sb, "%s%s\n", indent, safeID)
		}
		return
	}

	if safeID != name {
		fmt.Fprintf(sb, "%sstate \"%s\" as %s {\n", indent, name, safeID)
	} else {
		fmt.Fprintf(sb, "%sstate %s {\n", indent, safeID)
	}
	for _, kid := range kids {
		writeState(sb, children, kid, depth+1)
	}
	fmt.Fprintf(sb, "%s}\n", indent)
}

func writeTransitions(sb *strings.Builder, name string, st schema.StateDef) {
	safeID := sanitizeMermaidID(name)
	for _, t := range st.Transitions {
		if t.Ignore {
			continue
		}

		label := t.Trigger
		if t.Guard != "" {
			label = fmt.Sprintf("%s [%s]", t.Trigger, t.Guard)
		}

		switch {
		case t.Internal != "":
			fmt.Fprintf(sb, "    %s --> %s: %s / %s\n", safeID, safeID, label, t.Internal)
		case t.Dynamic != "":
			choice := sanitizeMermaidID(name + "_" + t.Trigger + "_choice")
			fmt.Fprintf(sb, "    state %s <<choice>>\n", choice)
			fmt.Fprintf(sb, "    %s --> %s: %s\n", safeID, choice, label)
		default:
			fmt.Fprintf(sb, "    %s --> %s: %s\n", safeID, sanitizeMermaidID(t.To), label)
		}
	}
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
