// Package main provides the pgstore CLI entry point.
package main

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pgstore/pgstore/internal/config"
	"github.com/pgstore/pgstore/pkg/pgstore"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var cfgPath string
	var dataDir string
	var syncWrites bool
	var strict bool
	var batchSize int

	rootCmd := &cobra.Command{
		Use:   "pgstore",
		Short: "pgstore - an embedded, on-disk property-graph storage engine",
		Long: `pgstore is a command-line front end for the pgstore embedded graph
store: ingest .pgdf files, look up nodes and edges, walk adjacency, and
inspect schema/metadata, all against a single on-disk database.`,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "database directory (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&syncWrites, "sync-writes", false, "fsync after every write batch")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "stop ingestion at the first bad record")
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", 0, "records grouped per write batch during ingest (overrides config)")

	resolve := func() (config.Config, error) {
		cfg := config.Default()
		if cfgPath != "" {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				return config.Config{}, err
			}
			cfg = loaded
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if rootCmd.PersistentFlags().Changed("sync-writes") {
			cfg.SyncWrites = syncWrites
		}
		if rootCmd.PersistentFlags().Changed("strict") {
			cfg.Strict = strict
		}
		if batchSize > 0 {
			cfg.BatchSize = batchSize
		}
		return cfg, nil
	}

	open := func() (*pgstore.DB, error) {
		cfg, err := resolve()
		if err != nil {
			return nil, err
		}
		return pgstore.Open(cfg.DataDir, pgstore.Options{
			SyncWrites: cfg.SyncWrites,
			Strict:     cfg.Strict,
			BatchSize:  cfg.BatchSize,
			Logger:     log.Default(),
		})
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pgstore v%s (%s)\n", version, commit)
		},
	})

	ingestCmd := &cobra.Command{
		Use:   "ingest <file.pgdf>",
		Short: "Ingest a .pgdf file into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %q: %w", args[0], err)
			}
			defer f.Close()

			result, err := db.IngestFile(f)
			if err != nil {
				return err
			}
			fmt.Printf("ingested %d nodes, %d edges, skipped %d records\n",
				result.NodesIngested, result.EdgesIngested, len(result.Skipped))
			for _, skip := range result.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "  skipped: %v\n", skip)
			}
			return nil
		},
	}
	rootCmd.AddCommand(ingestCmd)

	getNodeCmd := &cobra.Command{
		Use:   "get-node <id>",
		Short: "Print a node by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			node, ok, err := db.GetNode(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("node %q not found", args[0])
			}
			printNode(node)
			return nil
		},
	}
	rootCmd.AddCommand(getNodeCmd)

	getEdgeCmd := &cobra.Command{
		Use:   "get-edge <id>",
		Short: "Print an edge by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			edge, ok, err := db.GetEdge(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("edge %q not found", args[0])
			}
			printEdge(edge)
			return nil
		},
	}
	rootCmd.AddCommand(getEdgeCmd)

	nodesByPropCmd := &cobra.Command{
		Use:   "nodes-by-property <key> <value>",
		Short: "List nodes carrying a given property value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			cur, err := db.IterNodesByProperty(args[0], args[1])
			if err != nil {
				return err
			}
			entries, err := pgstore.CollectAll(cur)
			if err != nil {
				return err
			}
			for _, e := range entries {
				printNode(e.Node)
			}
			return nil
		},
	}
	rootCmd.AddCommand(nodesByPropCmd)

	edgesByPropCmd := &cobra.Command{
		Use:   "edges-by-property <key> <value>",
		Short: "List edges carrying a given property value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			cur, err := db.IterEdgesByProperty(args[0], args[1])
			if err != nil {
				return err
			}
			entries, err := pgstore.CollectAll(cur)
			if err != nil {
				return err
			}
			for _, e := range entries {
				printEdge(e.Edge)
			}
			return nil
		},
	}
	rootCmd.AddCommand(edgesByPropCmd)

	edgesByLabelCmd := &cobra.Command{
		Use:   "edges-by-label <label>",
		Short: "List edges with a given label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			cur, err := db.IterEdgesByLabel(args[0])
			if err != nil {
				return err
			}
			entries, err := pgstore.CollectAll(cur)
			if err != nil {
				return err
			}
			for _, e := range entries {
				printEdge(e.Edge)
			}
			return nil
		},
	}
	rootCmd.AddCommand(edgesByLabelCmd)

	var outgoingOnly, incomingOnly bool
	neighboursCmd := &cobra.Command{
		Use:   "neighbours <node-id>",
		Short: "List edges incident to a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			var entries []pgstore.EdgeEntry
			switch {
			case outgoingOnly:
				cur, err := db.IterOutgoing(args[0])
				if err != nil {
					return err
				}
				entries, err = pgstore.CollectAll(cur)
				if err != nil {
					return err
				}
			case incomingOnly:
				cur, err := db.IterIncoming(args[0])
				if err != nil {
					return err
				}
				entries, err = pgstore.CollectAll(cur)
				if err != nil {
					return err
				}
			default:
				cur, err := db.IterNeighbours(args[0])
				if err != nil {
					return err
				}
				entries, err = pgstore.CollectAll(cur)
				if err != nil {
					return err
				}
			}
			for _, e := range entries {
				printEdge(e.Edge)
			}
			return nil
		},
	}
	neighboursCmd.Flags().BoolVar(&outgoingOnly, "out", false, "only directed edges for which the node is the source, plus undirected edges")
	neighboursCmd.Flags().BoolVar(&incomingOnly, "in", false, "only directed edges for which the node is the destination")
	rootCmd.AddCommand(neighboursCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print node/edge counts and schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := db.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("nodes: %d\nedges: %d\n", stats.NodeCount, stats.EdgeCount)
			fmt.Println("edges by label:")
			for label, count := range stats.EdgeCountByLabel {
				fmt.Printf("  %s: %d\n", label, count)
			}
			fmt.Println("node schema:")
			for label, props := range stats.NodeSchema {
				fmt.Printf("  %s: %s\n", label, strings.Join(sortedKeys(props), ", "))
			}
			fmt.Println("edge schema:")
			for label, props := range stats.EdgeSchema {
				fmt.Printf("  %s: %s\n", label, strings.Join(sortedKeys(props), ", "))
			}
			return nil
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printNode(n pgstore.Node) {
	fmt.Printf("node %s [%s] %v\n", n.ID, n.Label, n.Props)
}

func printEdge(e pgstore.Edge) {
	arrow := "->"
	if !e.Directed {
		arrow = "--"
	}
	fmt.Printf("edge %s [%s] %s %s %s %v\n", e.ID, e.Label, e.Src, arrow, e.Dst, e.Props)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
