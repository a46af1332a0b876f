// Command synthesis loads a declarative entity-simulation configuration
// and drives it: validate a document, spawn one entity, run it forward
// a number of ticks, or inspect a loaded configuration's shape.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/engine"
	"github.com/talgya/synthesis/internal/node"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "synthesis",
		Short: "Declarative entity-simulation engine",
	}
	root.AddCommand(validateCmd(), spawnCmd(), runCmd(), inspectCmd())
	return root
}

func loadConfig(path string) (*config.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return config.Load(f)
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Load and validate a configuration document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args[0])
			if err != nil {
				return err
			}
			slog.Info("config valid", "tickRate", cfg.TickRate, "nodes", countNodes(cfg))
			return nil
		},
	}
}

func spawnCmd() *cobra.Command {
	var presetID, id string
	cmd := &cobra.Command{
		Use:   "spawn <config.yaml>",
		Short: "Spawn one entity and print its initial state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args[0])
			if err != nil {
				return err
			}
			e := engine.New(cfg, engine.Options{})
			if id == "" {
				id = "entity-1"
			}
			var ent any
			var genErr error
			if presetID != "" {
				ent, genErr = e.GenerateFromPreset(presetID, id, 0, nil)
			} else {
				ent, genErr = e.Generate(id, 0, nil)
			}
			if genErr != nil {
				return genErr
			}
			fmt.Printf("%+v\n", ent)
			return nil
		},
	}
	cmd.Flags().StringVar(&presetID, "preset", "", "preset id to spawn from")
	cmd.Flags().StringVar(&id, "id", "", "entity id (default entity-1)")
	return cmd
}

func runCmd() *cobra.Command {
	var presetID, id string
	var ticks int
	var delta float64
	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Spawn one entity and advance it a number of ticks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args[0])
			if err != nil {
				return err
			}
			e := engine.New(cfg, engine.Options{})
			if id == "" {
				id = "entity-1"
			}
			var genErr error
			if presetID != "" {
				_, genErr = e.GenerateFromPreset(presetID, id, 0, nil)
			} else {
				_, genErr = e.Generate(id, 0, nil)
			}
			if genErr != nil {
				return genErr
			}

			var now int64
			for i := 0; i < ticks; i++ {
				now += int64(delta * 1000)
				if err := e.Tick(id, delta, now); err != nil {
					return err
				}
			}
			ent, _ := e.GetState(id)
			values := make(map[string]float64, len(ent.Variables))
			for varID, v := range ent.Variables {
				values[varID] = v.Value
			}
			slog.Info("run complete", "ticks", ticks, "finalAttributes", ent.Attributes, "finalVariables", values)
			return nil
		},
	}
	cmd.Flags().StringVar(&presetID, "preset", "", "preset id to spawn from")
	cmd.Flags().StringVar(&id, "id", "", "entity id (default entity-1)")
	cmd.Flags().IntVar(&ticks, "ticks", 10, "number of ticks to run")
	cmd.Flags().Float64Var(&delta, "delta", 1.0, "seconds per tick")
	return cmd
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <config.yaml>",
		Short: "Summarize a configuration's node counts by kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args[0])
			if err != nil {
				return err
			}
			total := 0
			kinds := []node.Kind{
				node.KindAttribute, node.KindVariable, node.KindContext,
				node.KindLayer, node.KindTrait, node.KindModifier,
				node.KindCompound, node.KindDerived, node.KindAction,
			}
			for _, k := range kinds {
				n := len(cfg.NodesByKind(string(k)))
				total += n
				fmt.Printf("%-10s %s\n", k, humanize.Comma(int64(n)))
			}
			fmt.Printf("%-10s %s\n", "total", humanize.Comma(int64(total)))
			return nil
		},
	}
}

func countNodes(cfg *config.Store) int {
	total := 0
	for _, k := range []node.Kind{
		node.KindAttribute, node.KindVariable, node.KindContext,
		node.KindLayer, node.KindTrait, node.KindModifier,
		node.KindCompound, node.KindDerived, node.KindAction,
	} {
		total += len(cfg.NodesByKind(string(k)))
	}
	return total
}
