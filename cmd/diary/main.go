package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/korjavin/caloriediary/internal/catalog"
	"github.com/korjavin/caloriediary/internal/config"
	"github.com/korjavin/caloriediary/internal/diary"
	"github.com/korjavin/caloriediary/internal/nutrient"
	"github.com/korjavin/caloriediary/internal/store"
)

const usage = `usage: diary [-data dir] [-catalog url] [-v] <command> [flags]

commands:
  list                             show saved entries and totals
  search -q <text>                 rank catalog products matching text
  add -q <text> -weight <g> [-pick n]
                                   save n-th match (default 1) for weight grams
  delete -id <id>                  remove a saved entry
  find -q <text> [-limit n]        search saved entry names
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "diary:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("diary", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	dataDir := fs.String("data", cfg.DataDir, "diary data directory")
	catalogURL := fs.String("catalog", cfg.CatalogURL, "product catalog URL")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	s, err := store.Open(*dataDir)
	if err != nil {
		return err
	}
	defer s.Close()

	d := diary.New(catalog.NewClient(*catalogURL, cfg.CatalogTimeout), s, diary.Options{Logger: logger})
	defer d.Close()
	if err := d.Reload(ctx); err != nil {
		return err
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "list":
		return cmdList(d, stdout)
	case "search":
		return cmdSearch(ctx, d, rest, stdout, stderr)
	case "add":
		return cmdAdd(ctx, d, rest, stdout, stderr)
	case "delete":
		return cmdDelete(ctx, d, rest, stdout, stderr)
	case "find":
		return cmdFind(s, rest, stdout, stderr)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func subFlags(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func cmdList(d *diary.Controller, w io.Writer) error {
	snap := d.Snapshot()
	writeEntries(w, snap.Entries)
	t := snap.Totals
	fmt.Fprintf(w, "\nTotal: %s kcal  P %s  F %s  C %s  (%s g)\n",
		round(t.Kcal), round(t.Protein), round(t.Fat), round(t.Carbohydrate), round(t.Weight))
	return nil
}

func cmdSearch(ctx context.Context, d *diary.Controller, args []string, w, stderr io.Writer) error {
	fs := subFlags("search", stderr)
	q := fs.String("q", "", "search text (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *q == "" {
		return errors.New("search: -q is required")
	}

	results := d.Search(ctx, *q)
	if len(results) == 0 {
		fmt.Fprintln(w, "no matches")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tKCAL/100G\tP,F,C/100G")
	for i, p := range results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, p.Name, p.Kcal, p.Macros)
	}
	return tw.Flush()
}

func cmdAdd(ctx context.Context, d *diary.Controller, args []string, w, stderr io.Writer) error {
	fs := subFlags("add", stderr)
	q := fs.String("q", "", "search text (required)")
	weight := fs.String("weight", "", "consumed weight in grams (required)")
	pick := fs.Int("pick", 1, "which match to save, 1-based")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *q == "" || *weight == "" {
		return errors.New("add: -q and -weight are required")
	}

	results := d.Search(ctx, *q)
	if *pick < 1 || *pick > len(results) {
		return fmt.Errorf("add: %d matches for %q, cannot pick %d", len(results), *q, *pick)
	}
	d.SelectProduct(results[*pick-1])
	d.UpdateWeight(*weight)

	e, err := d.SaveCurrent(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "saved #%d %s: %s g, %s kcal (P %s F %s C %s)\n",
		e.ID, e.Name, e.Weight, round(nutrient.ParseNumber(e.Kcal)),
		round(nutrient.ParseNumber(e.Protein)), round(nutrient.ParseNumber(e.Fat)), round(nutrient.ParseNumber(e.Carbohydrate)))
	return nil
}

func cmdDelete(ctx context.Context, d *diary.Controller, args []string, w, stderr io.Writer) error {
	fs := subFlags("delete", stderr)
	id := fs.Uint64("id", 0, "entry id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("delete: -id is required")
	}
	if err := d.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(w, "deleted #%d\n", *id)
	return nil
}

func cmdFind(s *store.Store, args []string, w, stderr io.Writer) error {
	fs := subFlags("find", stderr)
	q := fs.String("q", "", "search text (required)")
	limit := fs.Int("limit", 20, "maximum results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *q == "" {
		return errors.New("find: -q is required")
	}

	entries, err := s.Find(*q, *limit)
	if err != nil {
		return err
	}
	writeEntries(w, entries)
	return nil
}

func writeEntries(w io.Writer, entries []store.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tNAME\tWEIGHT\tKCAL\tP\tF\tC")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Name, e.Weight,
			round(nutrient.ParseNumber(e.Kcal)), round(nutrient.ParseNumber(e.Protein)),
			round(nutrient.ParseNumber(e.Fat)), round(nutrient.ParseNumber(e.Carbohydrate)))
	}
	tw.Flush()
}

// round formats v with at most one decimal.
func round(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
