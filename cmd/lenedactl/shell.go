package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	prompt "github.com/c-bata/go-prompt"
)

type shell struct {
	app     *app
	ctx     context.Context
	cleanup func()

	// seriesIDs is loaded once for completion.
	seriesIDs []prompt.Suggest
}

// runShell starts the interactive prompt. cleanup runs before the process
// exits.
func runShell(ctx context.Context, a *app, cleanup func()) {
	sh := &shell{app: a, ctx: ctx, cleanup: cleanup}
	sh.loadSeries()

	fmt.Fprintln(a.out, "lenedactl shell. Type 'help' for commands, 'exit' to quit.")
	p := prompt.New(
		sh.execute,
		sh.complete,
		prompt.OptionPrefix("lenedactl> "),
		prompt.OptionTitle("lenedactl"),
		prompt.OptionMaxSuggestion(10),
	)
	p.Run()
	cleanup()
}

func (sh *shell) loadSeries() {
	infos, err := sh.app.st.ListSeries(sh.ctx)
	if err != nil {
		return
	}
	sh.seriesIDs = sh.seriesIDs[:0]
	for _, info := range infos {
		sh.seriesIDs = append(sh.seriesIDs, prompt.Suggest{Text: info.ID, Description: info.Name})
	}
}

func (sh *shell) execute(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	args := strings.Fields(line)
	switch args[0] {
	case "exit", "quit":
		sh.cleanup()
		os.Exit(0)
	case "help":
		for _, c := range commands {
			fmt.Fprintf(sh.app.out, "  %s\n", c.usage)
		}
		fmt.Fprintln(sh.app.out, "  exit")
		return
	}

	if err := sh.app.dispatch(sh.ctx, args); err != nil {
		fmt.Fprintf(sh.app.out, "error: %v\n", err)
	}
	if args[0] == "sql" {
		sh.loadSeries()
	}
}

func (sh *shell) complete(d prompt.Document) []prompt.Suggest {
	word := d.GetWordBeforeCursor()
	fields := strings.Fields(d.TextBeforeCursor())

	if len(fields) == 0 || (len(fields) == 1 && word != "") {
		return prompt.FilterHasPrefix(commandSuggestions(), word, true)
	}

	switch fields[0] {
	case "last", "records", "plot", "export", "delete":
		if strings.HasPrefix(word, "-") {
			return nil
		}
		return prompt.FilterHasPrefix(sh.seriesIDs, word, true)
	}
	return nil
}

func commandSuggestions() []prompt.Suggest {
	out := make([]prompt.Suggest, 0, len(commands)+2)
	for _, c := range commands {
		out = append(out, prompt.Suggest{Text: c.name, Description: c.usage})
	}
	out = append(out,
		prompt.Suggest{Text: "help", Description: "list commands"},
		prompt.Suggest{Text: "exit", Description: "leave the shell"},
	)
	return out
}
