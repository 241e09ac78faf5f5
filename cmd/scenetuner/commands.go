package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"scenetuner/internal/adapter/runlog"
	"scenetuner/internal/adapter/tui/console"
	"scenetuner/internal/domain"
	"scenetuner/internal/usecase/extract"
	"scenetuner/internal/usecase/render"
)

func (a *app) runInspect(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: scenetuner inspect <script>")
	}
	ws, err := a.openWorkspace(args[0], false)
	if err != nil {
		return err
	}
	defer ws.Close()

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, cat := range ws.Categories() {
		fmt.Fprintf(tw, "[%s]\n", cat.Name)
		for _, name := range cat.Params {
			p, _ := ws.Param(name)
			bounds := ""
			if p.Min != nil || p.Max != nil {
				bounds = fmt.Sprintf("[%s..%s]", bound(p.Min), bound(p.Max))
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n",
				p.Name, p.Current.PythonLiteral(), p.Type, p.Unit, bounds, p.Description)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if scenes := ws.Scenes(); len(scenes) > 0 {
		fmt.Fprintf(a.out, "\nscenes: %s\n", strings.Join(scenes, ", "))
	}
	for _, p := range ws.Problems() {
		fmt.Fprintf(a.out, "warning: %s\n", p)
	}
	return nil
}

func bound(f *float64) string {
	if f == nil {
		return ""
	}
	return domain.Float(*f).String()
}

func (a *app) runValidate(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: scenetuner validate <script>")
	}
	script, err := extract.File(args[0])
	if err != nil {
		return err
	}
	ok, problems := extract.Validate(script.Specs)
	for _, p := range problems {
		fmt.Fprintln(a.out, p)
	}
	if !ok {
		return extract.SchemaError(script.Specs)
	}
	fmt.Fprintf(a.out, "%d parameters OK\n", len(script.Specs))
	return nil
}

// runSet applies every name=value pair as one batch.
func (a *app) runSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: scenetuner set <script> name=value...")
	}
	ws, err := a.openWorkspace(args[0], false)
	if err != nil {
		return err
	}
	defer ws.Close()

	var updates []domain.Update
	var rejected []string
	for _, pair := range args[1:] {
		name, text, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: expected name=value, got %q", domain.ErrInvalidInput, pair)
		}
		name = strings.TrimSpace(name)
		p, found := ws.Param(name)
		if !found {
			rejected = append(rejected, name+": unknown parameter")
			continue
		}
		v, err := domain.ParseValue(text, p.Type)
		if err != nil {
			rejected = append(rejected, name+": "+err.Error())
			continue
		}
		updates = append(updates, domain.Update{Name: name, Value: v})
	}

	result := ws.SetBatch(updates)
	for _, u := range updates {
		if result[u.Name] {
			p, _ := ws.Param(u.Name)
			fmt.Fprintf(a.out, "%s = %s\n", u.Name, p.Current.PythonLiteral())
		} else if !slices.ContainsFunc(rejected, func(r string) bool { return strings.HasPrefix(r, u.Name+":") }) {
			rejected = append(rejected, u.Name+": rejected (type or bounds)")
		}
	}
	for _, r := range rejected {
		fmt.Fprintf(a.errOut, "rejected %s\n", r)
	}
	if len(rejected) > 0 {
		return fmt.Errorf("%w: %d value(s) rejected", domain.ErrInvalidInput, len(rejected))
	}
	return nil
}

func (a *app) runPreset(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: scenetuner preset save|load|list|delete <script> [name]")
	}
	op, path := args[0], args[1]
	name := strings.Join(args[2:], " ")
	if op != "list" && name == "" {
		return fmt.Errorf("usage: scenetuner preset %s <script> <name>", op)
	}
	ws, err := a.openWorkspace(path, false)
	if err != nil {
		return err
	}
	defer ws.Close()

	switch op {
	case "save":
		if err := ws.SavePreset(name); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "saved preset %q\n", name)
	case "load":
		result, err := ws.LoadPreset(name)
		if err != nil {
			return err
		}
		a.reportBatch(result)
	case "list":
		names, err := ws.ListPresets()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(a.out, n)
		}
	case "delete":
		if err := ws.DeletePreset(name); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "deleted preset %q\n", name)
	default:
		return fmt.Errorf("unknown preset subcommand %q", op)
	}
	return nil
}

func (a *app) runExport(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: scenetuner export <script> <file>")
	}
	ws, err := a.openWorkspace(args[0], false)
	if err != nil {
		return err
	}
	defer ws.Close()
	if err := ws.Export(args[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "exported %d parameters to %s\n", len(ws.Params()), args[1])
	return nil
}

func (a *app) runImport(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: scenetuner import <script> <file>")
	}
	ws, err := a.openWorkspace(args[0], false)
	if err != nil {
		return err
	}
	defer ws.Close()
	result, err := ws.Import(args[1])
	if err != nil {
		return err
	}
	a.reportBatch(result)
	return nil
}

func (a *app) reportBatch(result map[string]bool) {
	names := make([]string, 0, len(result))
	for n := range result {
		names = append(names, n)
	}
	slices.Sort(names)
	applied := 0
	for _, n := range names {
		if result[n] {
			applied++
		} else {
			fmt.Fprintf(a.errOut, "skipped %s\n", n)
		}
	}
	fmt.Fprintf(a.out, "applied %d of %d values\n", applied, len(names))
}

func (a *app) runHistory(args []string) error {
	limit := 20
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--limit" && i+1 < len(args):
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("%w: --limit %q", domain.ErrInvalidInput, args[i+1])
			}
			limit = n
			i++
		case strings.HasPrefix(args[i], "--limit="):
			n, err := strconv.Atoi(strings.TrimPrefix(args[i], "--limit="))
			if err != nil {
				return fmt.Errorf("%w: %q", domain.ErrInvalidInput, args[i])
			}
			limit = n
		}
	}
	if !a.cfg.RunLog.Enabled {
		return fmt.Errorf("run log is disabled (runlog.enabled: false)")
	}
	if _, err := os.Stat(a.cfg.RunLog.Path); os.IsNotExist(err) {
		fmt.Fprintln(a.out, "no runs recorded yet")
		return nil
	}
	store, err := runlog.NewSQLiteStore(a.cfg.RunLog.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(context.Background(), limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tEXIT\tSCENE\tMODE\tSCRIPT")
	for _, r := range runs {
		exit := "-"
		if r.ExitCode != nil {
			exit = strconv.Itoa(*r.ExitCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Status, exit, r.Scene, r.Mode, r.Script)
	}
	return tw.Flush()
}

func (a *app) runConsole(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: scenetuner console <script>")
	}
	ws, err := a.openWorkspace(args[0], true)
	if err != nil {
		return err
	}
	defer ws.Close()
	return console.Run(ws, console.Options{
		PollInterval: a.cfg.Console.PollInterval,
		MaxLogLines:  a.cfg.Console.MaxLogLines,
	})
}

// parseRunOptions reads --scene, --quality and --mode.
func parseRunOptions(args []string) (render.RunOptions, error) {
	var opts render.RunOptions
	for i := 0; i < len(args); i++ {
		key, val, hasVal := strings.Cut(args[i], "=")
		if !hasVal {
			if i+1 >= len(args) {
				return opts, fmt.Errorf("%w: %s needs a value", domain.ErrInvalidInput, key)
			}
			val = args[i+1]
			i++
		}
		switch key {
		case "--scene":
			opts.Scene = val
		case "--quality":
			q, err := domain.ParseQuality(val)
			if err != nil {
				return opts, err
			}
			opts.Quality = q
		case "--mode":
			m, err := domain.ParseRenderMode(val)
			if err != nil {
				return opts, err
			}
			opts.Mode = m
		default:
			return opts, fmt.Errorf("%w: unknown flag %q", domain.ErrInvalidInput, key)
		}
	}
	return opts, nil
}
