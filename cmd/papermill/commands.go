package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/skewballfox/papermill"
	"github.com/skewballfox/papermill/config"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/reembed"
	"github.com/urfave/cli/v2"
)

// snippetRunes bounds the chunk text printed per search hit.
const snippetRunes = 160

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "ingest",
			Usage:     "Parse, index and extract relations from files or directories",
			ArgsUsage: "PATH...",
			Action:    ingestCommand,
		},
		{
			Name:      "watch",
			Usage:     "Ingest files as they appear or change under the given directories",
			ArgsUsage: "DIR...",
			Action:    watchCommand,
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  "debounce",
					Usage: "Wait this long after the last change before ingesting",
					Value: 500 * time.Millisecond,
				},
			},
		},
		{
			Name:      "search",
			Usage:     "Run a hybrid query, e.g. 'attention author:vaswani date>2016'",
			ArgsUsage: "QUERY...",
			Action:    searchCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "k",
					Aliases: []string{"n"},
					Usage:   "Number of hits to return (defaults to search.default_k)",
				},
				&cli.BoolFlag{
					Name:  "explain",
					Usage: "Print the score components of each hit",
				},
			},
		},
		{
			Name:      "summarize",
			Usage:     "Summarize the hits of a query, or the chunks behind a concept",
			ArgsUsage: "QUERY...",
			Action:    summarizeCommand,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "level",
					Usage: "Summary level (chunk, document, collection)",
					Value: "document",
				},
				&cli.IntFlag{
					Name:    "k",
					Aliases: []string{"n"},
					Usage:   "Number of hits to summarize (defaults to search.default_k)",
				},
				&cli.StringFlag{
					Name:  "concept",
					Usage: "Summarize the subgraph around this concept instead of a query",
				},
				&cli.IntFlag{
					Name:  "depth",
					Usage: "Hops around --concept to include",
					Value: 1,
				},
			},
		},
		{
			Name:      "graph",
			Usage:     "Show the concept graph around a label, or graph statistics",
			ArgsUsage: "[LABEL]",
			Action:    graphCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "depth",
					Usage: "Hops around LABEL to include",
					Value: 1,
				},
			},
		},
		{
			Name:      "merge",
			Usage:     "Merge the concept ABSORB into the concept KEEP",
			ArgsUsage: "KEEP ABSORB",
			Action:    mergeCommand,
		},
		{
			Name:      "remove",
			Usage:     "Remove documents and everything derived from them",
			ArgsUsage: "DOCUMENT_ID...",
			Action:    removeCommand,
		},
		{
			Name:      "outliers",
			Usage:     "List files that failed to parse, or forget them so ingest retries them",
			ArgsUsage: "[PATH...]",
			Action:    outliersCommand,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "forget",
					Usage: "forget the named outliers, or all of them when no path is given",
				},
			},
		},
		{
			Name:   "stats",
			Usage:  "Print counts of stored documents, vectors and concepts",
			Action: statsCommand,
		},
		{
			Name:   "reembed",
			Usage:  "Reembed all chunks with the configured embedding model",
			Action: reembedCommand,
			Flags:  batchFlags("chunks"),
		},
		{
			Name:   "extract-relations",
			Usage:  "Re-extract relations from all documents and rebuild their graph contribution",
			Action: extractRelationsCommand,
			Flags:  batchFlags("documents"),
		},
	}
}

func batchFlags(unit string) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Number of chunks to process in each batch",
			Value: reembed.DefaultBatchSize,
		},
		&cli.IntFlag{
			Name:  "report-interval",
			Usage: "Report progress every N " + unit,
			Value: 100,
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Maximum attempts per collaborator call (overrides collaborators.max_attempts)",
			Value: 3,
		},
		&cli.DurationFlag{
			Name:  "retry-delay",
			Usage: "Initial backoff between attempts (overrides collaborators.initial_backoff)",
			Value: 1 * time.Second,
		},
	}
}

// batchConfig reads the batch flags. The retry flags tune the engine's
// resilient provider, the only layer that retries collaborator calls.
func batchConfig(c *cli.Context) (*reembed.Config, error) {
	cfg := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return nil, fmt.Errorf("report-interval must be greater than 0")
	}
	if c.Int("max-retries") <= 0 {
		return nil, fmt.Errorf("max-retries must be greater than 0")
	}

	collaborators := &loadedConfig(c).Collaborators
	if c.IsSet("max-retries") {
		collaborators.MaxAttempts = c.Int("max-retries")
	}
	if c.IsSet("retry-delay") {
		collaborators.InitialBackoff = config.Duration(c.Duration("retry-delay"))
		collaborators.MaxBackoff = max(collaborators.MaxBackoff, collaborators.InitialBackoff)
	}
	return cfg, nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one path is required")
	}
	paths, err := collectFiles(c.Args().Slice(), loadedConfig(c).Ingest.Extensions)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Fprintln(c.App.Writer, "No matching files found")
		return nil
	}

	return withEngine(c, func(e *papermill.Engine) error {
		report, err := e.IngestFiles(c.Context, paths...)
		if report != nil {
			fmt.Fprintf(c.App.Writer, "Ingested %d, skipped %d, failed %d documents (%d relations)\n",
				report.Ingested, report.Skipped, len(report.Failed), report.Relations)
			if report.Outliers > 0 {
				fmt.Fprintf(c.App.Writer, "Skipped %d files that failed to parse before; see outliers\n", report.Outliers)
			}
		}
		if err != nil {
			return fmt.Errorf("ingestion finished with errors: %w", err)
		}
		return nil
	})
}

// collectFiles expands directories into the files below them whose extension
// is in exts. Files named explicitly are kept whatever their extension.
// Hidden files and directories are skipped.
func collectFiles(args []string, exts []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != arg && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && hasExtension(path, exts) {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.ContainsFunc(exts, func(e string) bool { return strings.EqualFold(e, ext) })
}

func searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("a query is required")
	}
	query := strings.Join(c.Args().Slice(), " ")
	k := c.Int("k")
	if k <= 0 {
		k = loadedConfig(c).Search.DefaultK
	}

	return withEngine(c, func(e *papermill.Engine) error {
		result, err := e.Search(c.Context, query, k)
		if err != nil {
			return err
		}
		printHits(c.App.Writer, result, c.Bool("explain"))
		return nil
	})
}

func printHits(w io.Writer, result *core.RankedResult, explain bool) {
	fmt.Fprintf(w, "Found %d hits\n", len(result.Hits))
	for i, hit := range result.Hits {
		fmt.Fprintf(w, "%d. [%.3f] %s@%d: %s\n", i+1, hit.Score, hit.DocumentID, hit.Start, snippet(hit.Text))
		if explain {
			x := hit.Explanation
			fmt.Fprintf(w, "   vector=%.3f keyword=%.3f alpha=%.2f terms=%s\n",
				x.Vector, x.Keyword, x.Alpha, strings.Join(x.MatchedTerms, ","))
		}
	}
}

// snippet flattens text onto one line and truncates it to snippetRunes.
func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= snippetRunes {
		return text
	}
	return string([]rune(text)[:snippetRunes]) + "..."
}

func summarizeCommand(c *cli.Context) error {
	level, ok := core.ParseLevel(c.String("level"))
	if !ok {
		return fmt.Errorf("invalid level %q: must be one of chunk, document, collection", c.String("level"))
	}
	concept := c.String("concept")
	if concept == "" && c.NArg() == 0 {
		return fmt.Errorf("a query or --concept is required")
	}
	k := c.Int("k")
	if k <= 0 {
		k = loadedConfig(c).Search.DefaultK
	}

	return withEngine(c, func(e *papermill.Engine) error {
		var (
			tree *core.SummaryTree
			err  error
		)
		if concept != "" {
			tree, err = e.SummarizeConcept(c.Context, concept, c.Int("depth"), level)
		} else {
			tree, err = e.Summarize(c.Context, strings.Join(c.Args().Slice(), " "), k, level)
		}
		if err != nil {
			return err
		}
		printSummary(c.App.Writer, tree)
		return nil
	})
}

func printSummary(w io.Writer, tree *core.SummaryTree) {
	if len(tree.Roots) == 0 {
		fmt.Fprintln(w, "Nothing to summarize")
		return
	}
	var walk func(n *core.SummaryNode, depth int)
	walk = func(n *core.SummaryNode, depth int) {
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(w, "%s[%s %s] %s\n", indent, n.Level, n.Key, n.Text)
		for _, cit := range n.Citations {
			fmt.Fprintf(w, "%s  - %s (%s)\n", indent, cit.Key(), cit.DocumentID)
		}
		for _, child := range n.Children {
			walk(child, depth+1)
		}
	}
	for _, root := range tree.Roots {
		walk(root, 0)
	}
}

func graphCommand(c *cli.Context) error {
	return withEngine(c, func(e *papermill.Engine) error {
		if c.NArg() == 0 {
			stats, err := e.Stats(c.Context)
			if err != nil {
				return err
			}
			g := stats.Graph
			fmt.Fprintf(c.App.Writer, "Nodes: %d (%d pending, %d confirmed, %d merged)\nEdges: %d\nAliases: %d\nEvents: %d\n",
				g.Nodes, g.Pending, g.Confirmed, g.Merged, g.Edges, g.Aliases, g.Events)
			return nil
		}

		sg, err := e.Subgraph(c.Args().First(), c.Int("depth"))
		if err != nil {
			return err
		}
		printSubgraph(c.App.Writer, sg)
		return nil
	})
}

func printSubgraph(w io.Writer, sg *core.Subgraph) {
	labels := make(map[core.NodeID]string, len(sg.Nodes))
	nodes := slices.Clone(sg.Nodes)
	slices.SortFunc(nodes, func(a, b core.ConceptNode) int { return strings.Compare(a.Key, b.Key) })
	fmt.Fprintf(w, "Concepts (%d):\n", len(nodes))
	for _, n := range nodes {
		labels[n.ID] = n.Label
		fmt.Fprintf(w, "  %s [%s, %d events, aliases: %s]\n", n.Label, n.State, n.Events, strings.Join(n.Aliases, ", "))
	}

	edges := slices.Clone(sg.Edges)
	slices.SortFunc(edges, func(a, b core.ConceptEdge) int { return strings.Compare(a.Key.String(), b.Key.String()) })
	fmt.Fprintf(w, "Relations (%d):\n", len(edges))
	for _, e := range edges {
		fmt.Fprintf(w, "  %s -%s-> %s (weight %.2f, %d events)\n", labels[e.Key.Source], e.Key.Type, labels[e.Key.Target], e.Weight, e.Events)
	}
}

func mergeCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("merge takes exactly two labels: KEEP ABSORB")
	}
	return withEngine(c, func(e *papermill.Engine) error {
		affected, err := e.Merge(c.Context, c.Args().Get(0), c.Args().Get(1))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Merged %q into %q (%d nodes, %d edges updated)\n",
			c.Args().Get(1), c.Args().Get(0), len(affected.Nodes), len(affected.Edges))
		return nil
	})
}

func removeCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one document id is required")
	}
	return withEngine(c, func(e *papermill.Engine) error {
		for _, id := range c.Args().Slice() {
			if err := e.RemoveDocument(c.Context, core.DocumentID(id)); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Removed %s\n", id)
		}
		return nil
	})
}

func outliersCommand(c *cli.Context) error {
	return withEngine(c, func(e *papermill.Engine) error {
		if c.Bool("forget") {
			if err := e.ForgetOutliers(c.Context, c.Args().Slice()...); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "Forgot outliers")
			return nil
		}
		outliers, err := e.Outliers(c.Context)
		if err != nil {
			return err
		}
		if len(outliers) == 0 {
			fmt.Fprintln(c.App.Writer, "No outliers")
			return nil
		}
		for _, rec := range outliers {
			fmt.Fprintf(c.App.Writer, "%s [%s] %s: %s\n", rec.Path, strings.Join(rec.Formats, ","),
				rec.RecordedAt.Format(time.RFC3339), rec.Error)
		}
		return nil
	})
}

func statsCommand(c *cli.Context) error {
	return withEngine(c, func(e *papermill.Engine) error {
		stats, err := e.Stats(c.Context)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Documents: %d\nVectors: %d (dimension %d)\nConcepts: %d\nRelations: %d\n",
			stats.Documents, stats.Vectors, stats.Dimension, stats.Graph.Nodes, stats.Graph.Edges)
		return nil
	})
}

func reembedCommand(c *cli.Context) error {
	cfg, err := batchConfig(c)
	if err != nil {
		return err
	}
	fileCfg := loadedConfig(c)
	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", fileCfg.Storage.Path)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n\n", fileCfg.AIConfig().EmbeddingModel)

	return withEngine(c, func(e *papermill.Engine) error {
		if err := e.Reembed(c.Context, cfg, c.App.ErrWriter); err != nil {
			return fmt.Errorf("reembedding failed: %w", err)
		}
		return nil
	})
}

func extractRelationsCommand(c *cli.Context) error {
	cfg, err := batchConfig(c)
	if err != nil {
		return err
	}
	fileCfg := loadedConfig(c)
	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", fileCfg.Storage.Path)
	fmt.Fprintf(c.App.ErrWriter, "Generator model: %s\n\n", fileCfg.AIConfig().GeneratorModel)

	return withEngine(c, func(e *papermill.Engine) error {
		result, err := e.ExtractRelations(c.Context, cfg, c.App.ErrWriter)
		if err != nil {
			return fmt.Errorf("relation extraction failed: %w", err)
		}
		if len(result.Failed) > 0 {
			return fmt.Errorf("relation extraction failed for %d documents", len(result.Failed))
		}
		return nil
	})
}
