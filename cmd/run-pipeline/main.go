package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	pipeline "github.com/jpalmer37/remote-pipeline-runner"
)

func main() {
	name := flag.String("name", "", "name of the pipeline to run (required)")
	input := flag.String("input", "", "local input directory (required)")
	output := flag.String("output", "", "local output directory (required)")
	configPath := flag.String("config", "config.json", "path to the pipeline config file")
	flag.Parse()

	if *name == "" || *input == "" || *output == "" {
		fmt.Fprintln(os.Stderr, "error: --name, --input and --output are required")
		flag.Usage()
		os.Exit(1)
	}

	// Connection credentials may come from the environment; .env files are
	// optional and missing files are fine.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	file, err := pipeline.LoadPipelineFile(*configPath)
	if err != nil {
		fail(err)
	}

	if err := os.MkdirAll(*output, 0755); err != nil {
		fail(fmt.Errorf("failed to create output directory %s: %w", *output, err))
	}

	sshConfig := pipeline.Config{
		KeyPath:        os.Getenv("PIPELINE_SSH_KEY_PATH"),
		Password:       os.Getenv("PIPELINE_SSH_PASSWORD"),
		KnownHostsFile: os.Getenv("PIPELINE_KNOWN_HOSTS"),
	}
	if v := os.Getenv("PIPELINE_INSECURE_HOST_KEY"); v != "" {
		insecure, err := strconv.ParseBool(v)
		if err != nil {
			fail(fmt.Errorf("invalid PIPELINE_INSECURE_HOST_KEY value %q: %w", v, err))
		}
		sshConfig.InsecureIgnoreHostKey = insecure
	}

	runner := pipeline.NewRunner(file, pipeline.WithSSHConfig(sshConfig))
	if err := runner.Run(context.Background(), *name, *input, *output); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
