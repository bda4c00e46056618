// Command flowctl is an interactive demo console for the dataflow engine:
// it wires one small graph (a provider, a transient modifier, and a listener)
// and lets an operator drive it by hand, in the same liner-shell style as
// a plain readline shell.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"reactiveflow"
	"reactiveflow/internal/logging"
	"reactiveflow/internal/rfconfig"
	"reactiveflow/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := rfconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	lgr, err := logging.NewZap(logging.ZapConfig{
		Level:     cfg.Logging.Level,
		JSON:      cfg.Logging.JSON,
		AddCaller: cfg.Logging.AddCaller,
		FilePath:  cfg.Logging.FilePath,
	})
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	cfg.Log(lgr)

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		OTLPTarget:  cfg.Telemetry.OTLPTarget,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		log.Fatalf("initializing telemetry: %v", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	mgr := reactiveflow.NewManager(cfg.Manager.WorkerPoolSize, cfg.Manager.TaskQueueLen, 64,
		reactiveflow.WithLogger(lgr.Named("manager")))
	defer mgr.Close()

	src, prov := reactiveflow.AddProvider[int](mgr, "source", reactiveflow.Eager, false)

	doubled := reactiveflow.AddModifier[int](mgr, "doubled", reactiveflow.Eager, reactiveflow.Transient, false,
		[]reactiveflow.ModifierInput{reactiveflow.ModifierIn[int]("n", false)},
		func(ctx context.Context, inputs []any) (any, error) {
			return inputs[0].(int) * 2, nil
		})

	if _, err := reactiveflow.Connect(src, doubled); err != nil {
		log.Fatalf("connecting source to doubled: %v", err)
	}

	printer := reactiveflow.AddListener[int](mgr, "printer", reactiveflow.Eager, "n",
		func(ctx context.Context, v int, err error) {
			if err != nil {
				fmt.Printf("printer: upstream failed: %v\n", err)
				return
			}
			fmt.Printf("printer: %d\n", v)
		})
	if _, err := reactiveflow.Connect(doubled, printer); err != nil {
		log.Fatalf("connecting doubled to printer: %v", err)
	}

	fmt.Println("reactiveflow demo console. Commands: set <int> / tick / request / dump / exit")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("flowctl> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("aborted")
				continue
			}
			break
		}
		line.AppendHistory(input)

		args := strings.Fields(strings.TrimSpace(input))
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "set":
			if len(args) < 2 {
				fmt.Println("usage: set <int>")
				continue
			}
			n, err := strconv.Atoi(args[1])
			if err != nil {
				fmt.Printf("not an int: %v\n", err)
				continue
			}
			tctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			prov.Update(tctx, n)
			cancel()

		case "tick":
			mgr.Update(ctx)

		case "request":
			v, err := doubled.Request(ctx)
			if err != nil {
				fmt.Printf("request failed: %v\n", err)
				continue
			}
			fmt.Printf("doubled = %d\n", v)

		case "dump":
			for _, s := range mgr.DebugDump() {
				fmt.Printf("  %-10s kind=%-8s mode=%-6s state=%s\n", s.Name, s.Kind, s.Mode, s.State)
			}

		case "exit", "quit":
			fmt.Println("bye")
			return

		default:
			fmt.Printf("unknown command: %s\n", args[0])
		}
	}
}
