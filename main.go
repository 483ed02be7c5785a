package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/integrii/flaggy"
	"github.com/joho/godotenv"

	"github.com/sheikhrachel/go-firesim/utils"
)

const version = "0.3.0"

func main() {
	// A missing .env is fine; FIRESIM_* may already be in the environment.
	_ = godotenv.Load()

	var (
		configPath string
		modelPath  string
		constProb  = -1.0

		rows     int
		cols     int
		steps    = -1
		settle   bool
		workers  int
		features string
		envData  string
	)

	flaggy.SetName("firesim")
	flaggy.SetDescription("Wildfire spread cellular automaton driven by an ignition oracle")
	flaggy.SetVersion(version)
	flaggy.DefaultParser.ShowHelpOnUnexpected = true
	flaggy.String(&configPath, "c", "config", "Path to a YAML config file")

	serveCmd := flaggy.NewSubcommand("serve")
	serveCmd.Description = "Serve the prediction and simulation HTTP API"
	serveCmd.String(&modelPath, "m", "model", "Override the oracle model path")
	flaggy.AttachSubcommand(serveCmd, 1)

	simulateCmd := flaggy.NewSubcommand("simulate")
	simulateCmd.Description = "Run one simulation and print the final grid"
	simulateCmd.String(&modelPath, "m", "model", "Override the oracle model path")
	simulateCmd.Float64(&constProb, "p", "probability", "Use a constant ignition probability instead of a model")
	simulateCmd.Int(&rows, "r", "rows", "Grid rows")
	simulateCmd.Int(&cols, "k", "cols", "Grid columns")
	simulateCmd.Int(&steps, "s", "steps", "Number of steps")
	simulateCmd.Bool(&settle, "e", "settle", "Stop early once no cell is burning")
	simulateCmd.Int(&workers, "w", "workers", "Row-band workers per step (0 = NumCPU)")
	simulateCmd.String(&envData, "d", "env", "Environment overrides as key=value,key=value")
	flaggy.AttachSubcommand(simulateCmd, 1)

	predictCmd := flaggy.NewSubcommand("predict")
	predictCmd.Description = "Score one feature vector"
	predictCmd.String(&modelPath, "m", "model", "Override the oracle model path")
	predictCmd.String(&features, "f", "features", "All twelve features as key=value,key=value")
	flaggy.AttachSubcommand(predictCmd, 1)

	flaggy.Parse()

	config, err := utils.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if modelPath != "" {
		config.Oracle.ModelPath = modelPath
	}

	logger, err := utils.NewLogger(os.Stderr, config.Log, "firesim")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Handle Ctrl+C gracefully
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case serveCmd.Used:
		err = runServe(ctx, config, logger)
	case simulateCmd.Used:
		err = runSimulate(ctx, config, logger, simulateOptions{
			rows:      rows,
			cols:      cols,
			steps:     steps,
			settle:    settle,
			workers:   workers,
			constProb: constProb,
			envData:   envData,
		}, os.Stdout)
	case predictCmd.Used:
		err = runPredict(ctx, config, logger, features, os.Stdout)
	default:
		flaggy.ShowHelpAndExit("a subcommand is required")
	}

	if err != nil {
		logger.Error("exiting", "err", err)
		os.Exit(1)
	}
}
