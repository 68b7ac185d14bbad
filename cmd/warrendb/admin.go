package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/warrendb/pkg/engine"
	"github.com/cuemby/warrendb/pkg/types"
)

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var executeCmd = &cobra.Command{
	Use:   "execute <AQL query>",
	Short: "Run a query against the engine and print its result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		explain, _ := cmd.Flags().GetBool("explain")
		allowFullScan, _ := cmd.Flags().GetBool("allow-full-scan")
		cursor, _ := cmd.Flags().GetString("cursor")
		limit, _ := cmd.Flags().GetInt("limit")

		opts := engine.ExecuteOptions{
			Explain:       explain,
			AllowFullScan: allowFullScan,
			UseCursor:     cursor != "",
			Cursor:        cursor,
			LimitOverride: limit,
		}
		res, err := eng.Execute(context.Background(), args[0], opts)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func init() {
	executeCmd.Flags().Bool("explain", false, "Return the query plan instead of executing it")
	executeCmd.Flags().Bool("allow-full-scan", false, "Permit a collection scan when no index covers the query")
	executeCmd.Flags().String("cursor", "", "Resume a prior paginated query from this cursor")
	executeCmd.Flags().Int("limit", 0, "Override the query's result page size (0 = use the query's own LIMIT)")
}

var upsertCmd = &cobra.Command{
	Use:   "upsert <collection> <pk> <json-fields>",
	Short: "Insert or update one entity's fields",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		var fields map[string]interface{}
		if err := json.Unmarshal([]byte(args[2]), &fields); err != nil {
			return fmt.Errorf("parsing fields JSON: %w", err)
		}

		entity, change, err := eng.Upsert(args[0], args[1], fields)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"entity": entity, "change": change})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <collection> <pk>",
	Short: "Delete one entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		change, err := eng.Delete(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(change)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Create, drop, or rebuild a secondary index",
}

var indexCreateCmd = &cobra.Command{
	Use:   "create <collection> <kind> <col1,col2,...>",
	Short: "Register a secondary index over a collection",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		kind, err := parseIndexKind(args[1])
		if err != nil {
			return err
		}
		cols := strings.Split(args[2], ",")
		if err := eng.CreateIndex(kind, args[0], cols); err != nil {
			return err
		}
		fmt.Println("index created")
		return nil
	},
}

var indexDropCmd = &cobra.Command{
	Use:   "drop <collection> <kind> <col1,col2,...>",
	Short: "Remove a secondary index",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		kind, err := parseIndexKind(args[1])
		if err != nil {
			return err
		}
		cols := strings.Split(args[2], ",")
		if err := eng.DropIndex(kind, args[0], cols); err != nil {
			return err
		}
		fmt.Println("index dropped")
		return nil
	},
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild <collection>",
	Short: "Rebuild every secondary and vector index registered on a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.RebuildIndex(args[0]); err != nil {
			return err
		}
		fmt.Println("index rebuilt")
		return nil
	},
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered secondary index descriptor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		return printJSON(eng.Descriptors())
	},
}

func init() {
	indexCmd.AddCommand(indexCreateCmd, indexDropCmd, indexRebuildCmd, indexListCmd)
}

func parseIndexKind(s string) (types.IndexKind, error) {
	switch types.IndexKind(s) {
	case types.IndexEquality, types.IndexRange, types.IndexComposite, types.IndexFullText:
		return types.IndexKind(s), nil
	default:
		return "", fmt.Errorf("unknown index kind %q (want equality, range, composite, or fulltext)", s)
	}
}

var vectorCmd = &cobra.Command{
	Use:   "vector",
	Short: "Initialize and query vector collections",
}

var vectorInitCmd = &cobra.Command{
	Use:   "init <collection> <field> <dim> <metric>",
	Short: "Initialize an HNSW vector index over a collection field",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		dim, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("parsing dim: %w", err)
		}
		m, _ := cmd.Flags().GetInt("m")
		efConstruction, _ := cmd.Flags().GetInt("ef-construction")
		efSearch, _ := cmd.Flags().GetInt("ef-search")

		cfg := types.VectorConfig{
			Collection:     args[0],
			Field:          args[1],
			Dim:            dim,
			Metric:         types.Metric(args[3]),
			M:              m,
			EfConstruction: efConstruction,
			EfSearch:       efSearch,
		}
		if err := eng.VectorInit(cfg); err != nil {
			return err
		}
		fmt.Println("vector collection initialized")
		return nil
	},
}

func init() {
	vectorInitCmd.Flags().Int("m", 16, "HNSW M parameter (max neighbors per node)")
	vectorInitCmd.Flags().Int("ef-construction", 200, "HNSW efConstruction parameter")
	vectorInitCmd.Flags().Int("ef-search", 64, "HNSW efSearch parameter")
}

var vectorSearchCmd = &cobra.Command{
	Use:   "search <collection> <k> <comma-separated-floats>",
	Short: "Find the k nearest neighbors to a query vector",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		k, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("parsing k: %w", err)
		}
		query, err := parseFloat32CSV(args[2])
		if err != nil {
			return err
		}

		hits, err := eng.VectorSearch(args[0], query, k, nil)
		if err != nil {
			return err
		}
		return printJSON(hits)
	},
}

func init() {
	vectorCmd.AddCommand(vectorInitCmd, vectorSearchCmd)
}

func parseFloat32CSV(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parsing vector component %q: %w", p, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

var tsCmd = &cobra.Command{
	Use:   "ts",
	Short: "Write and read time-series points",
}

var tsPutCmd = &cobra.Command{
	Use:   "put <metric> <entity> <timestamp-ms> <value>",
	Short: "Append one time-series point",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		ts, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing timestamp: %w", err)
		}
		value, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return fmt.Errorf("parsing value: %w", err)
		}

		if err := eng.TSPut(types.Point{
			Metric:    args[0],
			Entity:    args[1],
			Timestamp: ts,
			Value:     value,
		}); err != nil {
			return err
		}
		fmt.Println("point written")
		return nil
	},
}

var tsQueryCmd = &cobra.Command{
	Use:   "query <metric> <entity> <from-ms> <to-ms>",
	Short: "Read time-series points in a time range",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		opts, err := tsRangeOptions(args)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		opts.Limit = limit

		points, err := eng.TSQuery(opts)
		if err != nil {
			return err
		}
		return printJSON(points)
	},
}

func init() {
	tsQueryCmd.Flags().Int("limit", 0, "Maximum number of points to return (0 = unlimited)")
}

var tsAggregateCmd = &cobra.Command{
	Use:   "aggregate <metric> <entity> <from-ms> <to-ms>",
	Short: "Summarize time-series points in a time range",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		opts, err := tsRangeOptions(args)
		if err != nil {
			return err
		}

		agg, err := eng.TSAggregate(opts)
		if err != nil {
			return err
		}
		return printJSON(agg)
	},
}

func init() {
	tsCmd.AddCommand(tsPutCmd, tsQueryCmd, tsAggregateCmd)
}

func tsRangeOptions(args []string) (types.TSQueryOptions, error) {
	from, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return types.TSQueryOptions{}, fmt.Errorf("parsing from: %w", err)
	}
	to, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return types.TSQueryOptions{}, fmt.Errorf("parsing to: %w", err)
	}
	return types.TSQueryOptions{
		Metric: args[0],
		Entity: args[1],
		From:   from,
		To:     to,
	}, nil
}

var cdcCmd = &cobra.Command{
	Use:   "cdc",
	Short: "Read the change-data-capture log",
}

var cdcListCmd = &cobra.Command{
	Use:   "list <from-sequence>",
	Short: "List change events from a sequence number onward",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		from, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing from-sequence: %w", err)
		}
		limit, _ := cmd.Flags().GetInt("limit")
		prefix, _ := cmd.Flags().GetString("key-prefix")
		changeType, _ := cmd.Flags().GetString("type")

		events, err := eng.CDCList(from, limit, prefix, types.ChangeType(changeType), 0)
		if err != nil {
			return err
		}
		return printJSON(events)
	},
}

func init() {
	cdcListCmd.Flags().Int("limit", 100, "Maximum number of events to return")
	cdcListCmd.Flags().String("key-prefix", "", "Only return events whose key has this prefix")
	cdcListCmd.Flags().String("type", "", "Only return events of this type (PUT, DELETE, TXN_COMMIT, TXN_ROLLBACK)")
	cdcCmd.AddCommand(cdcListCmd)
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <dir>",
	Short: "Write a consistent snapshot of every store to dir",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.Checkpoint(args[0]); err != nil {
			return err
		}
		fmt.Printf("checkpoint written to %s\n", args[0])
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <dir>",
	Short: "Restore every store from a checkpoint directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.Restore(args[0]); err != nil {
			return err
		}
		fmt.Printf("restored from %s\n", args[0])
		return nil
	},
}
