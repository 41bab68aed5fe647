package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rendis/statetree/internal/engine"
	"github.com/rendis/statetree/internal/loader"
	"github.com/rendis/statetree/internal/streaming"
)

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Run one agent from a definition file in the foreground",
	Long: `Registers the definition, spawns a single agent and ticks it at
--tick-interval, printing every runtime event. Nothing is persisted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		frames, _ := cmd.Flags().GetUint64("frames")
		sets, _ := cmd.Flags().GetStringArray("set")
		jsonMode, _ := cmd.Flags().GetBool("json")

		overrides, err := parseSets(sets)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runAgent(ctx, cmd.OutOrStdout(), args[0], overrides, frames, jsonMode)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Uint64P("frames", "n", 0, "stop after this many frames (0: until interrupted)")
	runCmd.Flags().StringArray("set", nil, "blackboard override key=value (value parsed as YAML), repeatable")
	runCmd.Flags().Bool("json", false, "print events as NDJSON")
}

func runAgent(ctx context.Context, out io.Writer, path string, overrides map[string]any, frames uint64, jsonMode bool) error {
	def, err := loader.LoadFile(path)
	if err != nil {
		return err
	}

	h, err := newHost(ctx, cfg, logger, hostOptions{})
	if err != nil {
		return err
	}
	defer h.close()

	result, err := h.fleet.RegisterTree(ctx, def, "")
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning %s: %s\n", w.Path, w.Message)
	}

	events, unsubscribe, err := h.hub.Subscribe(ctx, streaming.EventFilter{TreeName: def.Name})
	if err != nil {
		return err
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			printEvent(out, ev, jsonMode)
		}
	}()

	a, err := h.fleet.Spawn(ctx, engine.SpawnRequest{TreeName: def.Name, Blackboard: overrides})
	if err == nil {
		loop := engine.NewLoop(h.fleet, cfg.interval(), logger, engine.WithMaxFrames(frames))
		err = loop.Run(ctx)
	}
	if err == nil {
		_, err = h.fleet.Retire(context.WithoutCancel(ctx), a.ID())
	}

	unsubscribe()
	wg.Wait()
	return err
}

func printEvent(out io.Writer, ev streaming.StreamEvent, jsonMode bool) {
	if jsonMode {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintln(out, string(data))
		return
	}
	line := fmt.Sprintf("[%d] %s", ev.Frame, ev.EventType)
	if ev.State != "" {
		line += " " + ev.State
	}
	if ev.Payload != nil {
		if data, err := json.Marshal(ev.Payload); err == nil {
			line += " " + string(data)
		}
	}
	fmt.Fprintln(out, line)
}

// parseSets turns key=value pairs into blackboard overrides. Values are YAML
// scalars, so true, 3 and "x" keep their types.
func parseSets(sets []string) (map[string]any, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(sets))
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", s)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", s, err)
		}
		out[key] = v
	}
	return out, nil
}
