package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/calder-labs/pipeline"
	"github.com/calder-labs/pipeline/params"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
	currentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func newWalkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "walk <definition.yaml>",
		Short: "Step through a pipeline interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			def, err := pipeline.ParseDefinition(data)
			if err != nil {
				return err
			}
			p, err := def.Build()
			if err != nil {
				return err
			}
			return walk(cmd.Context(), p)
		},
	}
}

func walk(ctx context.Context, p *pipeline.Pipeline) error {
	// Host-driven auto-advance: the engine only reports readiness changes.
	p.OnReadyChange(func(stage string, ready bool) {
		opts, _ := p.Options(stage)
		if ready && opts.AutoAdvance {
			if err := p.Advance(ctx); err != nil {
				fmt.Println(errStyle.Render(err.Error()))
			}
		}
	})

	if err := p.Start(ctx); err != nil {
		return err
	}

	fmt.Println(headerStyle.Render(p.Name))
	show(p)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Print("> ")
			continue
		}

		switch fields[0] {
		case "n", "next":
			var err error
			if len(fields) > 1 {
				err = p.AdvanceTo(ctx, fields[1])
			} else {
				err = p.Advance(ctx)
			}
			if err != nil {
				fmt.Println(errStyle.Render(err.Error()))
			}
			show(p)
		case "p", "prev":
			if err := p.Retreat(ctx); err != nil {
				fmt.Println(errStyle.Render(err.Error()))
			}
			show(p)
		case "set":
			if len(fields) < 3 {
				fmt.Println(errStyle.Render("usage: set <param> <value>"))
				break
			}
			if err := setParam(p, fields[1], strings.Join(fields[2:], " ")); err != nil {
				fmt.Println(errStyle.Render(err.Error()))
			}
			show(p)
		case "show":
			show(p)
		case "q", "quit":
			return nil
		case "h", "help":
			fmt.Println(dimStyle.Render("commands: next [stage] | prev | set <param> <value> | show | quit"))
		default:
			fmt.Println(errStyle.Render("unknown command (try help)"))
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

// show prints the navigation header, the current stage's parameters, and its
// rendered body when the stage can draw itself.
func show(p *pipeline.Pipeline) {
	line := p.RenderText()
	name, stage, err := p.Current()
	if err != nil {
		fmt.Println(line)
		return
	}
	fmt.Println(strings.Replace(line, "["+name+"]", currentStyle.Render("["+name+"]"), 1))

	set := stage.Params()
	for _, pname := range set.Names() {
		value, _ := set.Value(pname)
		spec, _ := set.SpecOf(pname)
		doc := ""
		if spec.Doc != "" {
			doc = dimStyle.Render("  # " + spec.Doc)
		}
		fmt.Printf("  %s = %v%s\n", pname, value, doc)
	}

	if r, ok := stage.(pipeline.Renderer); ok {
		fmt.Println(r.Render())
	}
	if !p.CanAdvance() && p.CanRetreat() {
		fmt.Println(dimStyle.Render("  (not ready to advance)"))
	}
}

// setParam parses the raw value against the declared slot type of the current
// stage before assigning it.
func setParam(p *pipeline.Pipeline, name, raw string) error {
	_, stage, err := p.Current()
	if err != nil {
		return err
	}
	set := stage.Params()
	spec, ok := set.SpecOf(name)
	if !ok {
		return fmt.Errorf("unknown parameter %q", name)
	}

	value, err := parseValue(spec, raw)
	if err != nil {
		return err
	}
	return set.Set(name, value)
}

func parseValue(spec params.Spec, raw string) (any, error) {
	switch spec.Default.(type) {
	case bool:
		return strconv.ParseBool(raw)
	case int:
		return strconv.Atoi(raw)
	case float64:
		return strconv.ParseFloat(raw, 64)
	case string, nil:
		return raw, nil
	default:
		return raw, nil
	}
}
