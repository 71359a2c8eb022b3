// Command ephysplot imports experiment snapshots and renders figures from the
// configured experiment store into the artifact store.
//
//	ephysplot import -snapshot session.json
//	ephysplot render -figure avg_contra_ipsi_psth -insertions 1
//	ephysplot list [-figure name]
//	ephysplot figures
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"ephyscore/internal/blob"
	"ephyscore/internal/config"
	"ephyscore/internal/export"
	"ephyscore/internal/figures"
	"ephyscore/internal/observability"
	"ephyscore/internal/persistence"
	"ephyscore/internal/render"
	"ephyscore/pkg/ephys"
)

var exitFunc = os.Exit

const usage = `usage: ephysplot <command> [flags]

commands:
  import   -snapshot FILE            seed the experiment store from a JSON snapshot
  render   -figure NAME [flags]      build, render and publish one figure
  list     [-figure NAME]            list published artifacts
  figures                            list figure names
`

func main() {
	code := cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("EPHYSCORE_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	logger := newLogger(stderr)
	var err error
	switch args[0] {
	case "import":
		err = runImport(ctx, args[1:], stdout, stderr, logger)
	case "render":
		err = runRender(ctx, args[1:], stdout, stderr, logger)
	case "list":
		err = runList(ctx, args[1:], stdout, stderr)
	case "figures":
		for _, name := range figures.Names {
			if _, werr := fmt.Fprintln(stdout, name); werr != nil {
				return 1
			}
		}
		return 0
	case "-h", "-help", "--help", "help":
		_, _ = fmt.Fprint(stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}
	var usageErr usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usageErr):
		return 2
	default:
		logger.Error("command failed", "command", args[0], "error", err)
		return 1
	}
}

// usageError marks flag parsing failures; the flag set already reported them.
type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }

func parse(fs *flag.FlagSet, args []string, stderr io.Writer) error {
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}
	if fs.NArg() > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		return usageError{fmt.Errorf("unexpected arguments")}
	}
	return nil
}

func openBackend(ctx context.Context) (persistence.Backend, func(), error) {
	backend, err := persistence.Open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open experiment store: %w", err)
	}
	closeFn := func() {}
	if c, ok := backend.(io.Closer); ok {
		closeFn = func() { _ = c.Close() }
	}
	return backend, closeFn, nil
}

func runImport(ctx context.Context, args []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	path := fs.String("snapshot", "", "path to a JSON experiment snapshot")
	if err := parse(fs, args, stderr); err != nil {
		return err
	}
	if *path == "" {
		_, _ = fmt.Fprintln(stderr, "-snapshot is required")
		return usageError{fmt.Errorf("missing -snapshot")}
	}
	raw, err := os.ReadFile(*path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snapshot ephys.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", *path, err)
	}
	backend, closeFn, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	if err := backend.Import(ctx, snapshot); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	logger.Info("snapshot imported", "path", *path, "units", len(snapshot.Units), "insertions", len(snapshot.Insertions))
	_, err = fmt.Fprintf(stdout, "imported %d units from %s\n", len(snapshot.Units), *path)
	return err
}

// request carries the render flags.
type request struct {
	figure     string
	insertions []int
	keywords   []string
	groups     []string
	labels     []string
	window     []float64
	out        string
	metrics    string
}

func runRender(ctx context.Context, args []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	var req request
	var insertions, keywords, groups, labels, window string
	fs.StringVar(&req.figure, "figure", "", "figure name (see ephysplot figures)")
	fs.StringVar(&insertions, "insertions", "", "comma separated probe insertion ids")
	fs.StringVar(&keywords, "keywords", "", "comma separated condition keywords for psth_photostim_effect")
	fs.StringVar(&groups, "groups", "", "coding direction unit group (two, comma separated, for the paired figure)")
	fs.StringVar(&labels, "labels", "", "two comma separated labels for the paired figure")
	fs.StringVar(&window, "window", "", "endpoint window start,end in seconds for the paired figure")
	fs.StringVar(&req.out, "out", "", "write the PNG to this path instead of publishing")
	fs.StringVar(&req.metrics, "metrics-file", "", "write Prometheus metrics in text format to this path")
	if err := parse(fs, args, stderr); err != nil {
		return err
	}
	var err error
	if req.insertions, err = parseInts(insertions); err != nil {
		return fmt.Errorf("-insertions: %w", err)
	}
	if req.window, err = parseFloats(window); err != nil {
		return fmt.Errorf("-window: %w", err)
	}
	req.keywords, req.groups, req.labels = splitList(keywords), splitList(groups), splitList(labels)

	settings, err := config.FromEnv()
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	rec, err := observability.NewRecorder(reg)
	if err != nil {
		return err
	}
	backend, closeFn, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	svc := figures.NewService(backend,
		figures.WithLogger(logger),
		figures.WithMetricsRecorder(rec),
		figures.WithSettings(settings),
	)
	fig, buildErr := build(ctx, svc, req)
	if req.metrics != "" {
		if err := prometheus.WriteToTextfile(req.metrics, reg); err != nil {
			logger.Warn("metrics not written", "path", req.metrics, "error", err)
		}
	}
	if buildErr != nil {
		return buildErr
	}

	renderer := render.New(render.Config{MarkerScale: settings.MarkerScale})
	if req.out != "" {
		img, err := renderer.PNG(fig)
		if err != nil {
			return err
		}
		if err := os.WriteFile(req.out, img, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", req.out, err)
		}
		logger.Info("figure written", "figure", fig.Name, "path", req.out)
		return nil
	}

	artifacts, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	art, err := export.NewPublisher(artifacts, renderer).Publish(ctx, fig)
	if err != nil {
		return err
	}
	logger.Info("figure published", "figure", fig.Name, "artifact", art.ID, "driver", artifacts.Driver())
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(art)
}

func build(ctx context.Context, svc *figures.Service, req request) (figures.Figure, error) {
	single := func() (int, error) {
		if len(req.insertions) != 1 {
			return 0, fmt.Errorf("%s needs exactly one -insertions id", req.figure)
		}
		return req.insertions[0], nil
	}
	filter := ephys.Insertion(req.insertions...)
	switch req.figure {
	case figures.NameClusteringQuality, figures.NameUnitCharacteristic, figures.NameUnitSelectivity, figures.NameBilateralPhotostimEffect:
		id, err := single()
		if err != nil {
			return figures.Figure{}, err
		}
		switch req.figure {
		case figures.NameClusteringQuality:
			return svc.ClusteringQuality(ctx, id)
		case figures.NameUnitCharacteristic:
			return svc.UnitCharacteristic(ctx, id)
		case figures.NameUnitSelectivity:
			return svc.UnitSelectivity(ctx, id)
		default:
			return svc.BilateralPhotostimEffect(ctx, id)
		}
	case figures.NameStackedContraIpsiPSTH:
		return svc.StackedContraIpsiPSTH(ctx, filter)
	case figures.NameSelectivitySortedPSTH:
		return svc.SelectivitySortedStackedPSTH(ctx, filter)
	case figures.NameAvgContraIpsiPSTH:
		return svc.AvgContraIpsiPSTH(ctx, filter)
	case figures.NamePSTHPhotostimEffect:
		return svc.PSTHPhotostimEffect(ctx, filter, req.keywords...)
	case figures.NameCodingDirection:
		if len(req.groups) != 1 {
			return figures.Figure{}, fmt.Errorf("%s needs one -groups name", req.figure)
		}
		return svc.CodingDirection(ctx, req.groups[0])
	case figures.NamePairedCodingDirection:
		if len(req.groups) != 2 {
			return figures.Figure{}, fmt.Errorf("%s needs two -groups names", req.figure)
		}
		if len(req.window) != 2 {
			return figures.Figure{}, fmt.Errorf("%s needs -window start,end", req.figure)
		}
		return svc.PairedCodingDirection(ctx, figures.PairedRequest{
			Groups: [2]string{req.groups[0], req.groups[1]},
			Labels: req.labels,
			Window: figures.Range{Min: req.window[0], Max: req.window[1]},
		})
	case "":
		return figures.Figure{}, fmt.Errorf("-figure is required")
	default:
		return figures.Figure{}, fmt.Errorf("unknown figure %q", req.figure)
	}
}

func runList(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	figure := fs.String("figure", "", "restrict to one figure")
	if err := parse(fs, args, stderr); err != nil {
		return err
	}
	artifacts, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	infos, err := export.NewPublisher(artifacts, nil).List(ctx, *figure)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if _, err := fmt.Fprintf(stdout, "%s\t%d\t%s\n", info.Key, info.Size, info.ContentType); err != nil {
			return err
		}
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInts(raw string) ([]int, error) {
	parts := splitList(raw)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloats(raw string) ([]float64, error) {
	parts := splitList(raw)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}
