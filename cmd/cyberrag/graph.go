package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/cyberrag/internal/graph"
	"github.com/scrypster/cyberrag/pkg/types"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect or export the cybersecurity knowledge graph",
	}
	cmd.AddCommand(
		newGraphStatsCmd(),
		newGraphExportCmd(),
		newGraphEntitiesCmd(),
		newGraphEntityCmd(),
		newGraphMitigationsCmd(),
	)
	return cmd
}

func newGraphStatsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show node, edge and per-type counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats := graph.New().Statistics()
			if asJSON {
				return printJSON(cmd, stats)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newGraphExportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the graph as JSON or YAML to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kg := graph.New()
			switch strings.ToLower(format) {
			case "json":
				return kg.ExportJSON(cmd.OutOrStdout())
			case "yaml", "yml":
				return kg.ExportYAML(cmd.OutOrStdout())
			default:
				return fmt.Errorf("unsupported export format %q (want json or yaml)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Export format: json, yaml")
	return cmd
}

func newGraphEntitiesCmd() *cobra.Command {
	var entityType string
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List entity names, optionally of one type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kg := graph.New()
			names := kg.Names()
			if entityType != "" {
				t := types.EntityType(strings.ToLower(entityType))
				if !types.IsValidEntityType(t) {
					return fmt.Errorf("unknown entity type %q", entityType)
				}
				names = kg.EntitiesOfType(t)
			}
			printList(cmd.OutOrStdout(), names)
			return nil
		},
	}
	cmd.Flags().StringVarP(&entityType, "type", "t", "", "Entity type: threat, vulnerability, mitigation, attack_pattern")
	return cmd
}

func newGraphEntityCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "entity NAME",
		Short: "Show an entity's attributes and neighbourhood",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ec, ok := graph.New().EntityContext(args[0])
			if !ok {
				return fmt.Errorf("entity %q not found", args[0])
			}
			if asJSON {
				return printJSON(cmd, ec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entity: %s\n", ec.Entity)
			printEntity(cmd.OutOrStdout(), ec)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newGraphMitigationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mitigations THREAT",
		Short: "List mitigations with a direct edge into a threat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kg := graph.New()
			if _, ok := kg.Entity(args[0]); !ok {
				return fmt.Errorf("entity %q not found", args[0])
			}
			printMitigations(cmd.OutOrStdout(), kg.MitigationPath(args[0]))
			return nil
		},
	}
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
