package main

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nomis52/nodegraph/config"
	"github.com/nomis52/nodegraph/demo"
	"github.com/nomis52/nodegraph/graph"
	"github.com/nomis52/nodegraph/node"
	"github.com/nomis52/nodegraph/registry"
)

// newDefinitions registers the demo nodes against collab and returns the
// order graphs with the configured policy overrides.
func newDefinitions(cfg *config.Config, logger *slog.Logger, collab demo.Collaborators) (*registry.Registry, map[string]*graph.Definition, error) {
	container, err := collab.Container()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create collaborators: %w", err)
	}
	reg := registry.New(
		registry.WithLogger(logger),
		registry.WithResolver(container),
		registry.WithDefaultPolicy(cfg.DefaultPolicy()),
	)
	if err := demo.Register(reg); err != nil {
		return nil, nil, fmt.Errorf("failed to register nodes: %w", err)
	}
	return reg, demo.Definitions(reg, cfg.NodePolicy), nil
}

func lookupGraph(defs map[string]*graph.Definition, name string) (*graph.Definition, error) {
	def, ok := defs[name]
	if !ok {
		return nil, fmt.Errorf("unknown graph %q, expected one of: %s",
			name, strings.Join(slices.Sorted(maps.Keys(defs)), ", "))
	}
	return def, nil
}

func newValidateCmd(load func() (config.Config, error), configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and build every graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			reg, defs, err := newDefinitions(&cfg, slog.New(slog.DiscardHandler), demo.Simulated(nil, 0, 0))
			if err != nil {
				return err
			}
			for _, id := range slices.Sorted(maps.Keys(cfg.Policies)) {
				if !reg.Has(node.ID(id)) {
					return fmt.Errorf("policy for unknown node %s", id)
				}
			}

			out := cmd.OutOrStdout()
			for _, name := range slices.Sorted(maps.Keys(defs)) {
				g, err := defs[name].Graph()
				if err != nil {
					return fmt.Errorf("graph %s: %w", name, err)
				}
				fmt.Fprintf(out, "graph %s: %d nodes in %d waves\n", name, g.Len(), len(g.Waves()))
			}

			source := *configPath
			if source == "" {
				source = "defaults"
			}
			fmt.Fprintf(out, "Configuration validation successful: %s\n", source)
			return nil
		},
	}
}

func newDotCmd(load func() (config.Config, error)) *cobra.Command {
	var graphName string

	cmd := &cobra.Command{
		Use:   "dot",
		Short: "Print a graph in Graphviz DOT format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			_, defs, err := newDefinitions(&cfg, slog.New(slog.DiscardHandler), demo.Simulated(nil, 0, 0))
			if err != nil {
				return err
			}
			def, err := lookupGraph(defs, graphName)
			if err != nil {
				return err
			}
			g, err := def.Graph()
			if err != nil {
				return err
			}
			dot, err := g.DOT()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), dot)
			return err
		},
	}
	cmd.Flags().StringVarP(&graphName, "graph", "g", demo.OrdersGraph, "Graph to render")
	return cmd
}
