// Package pipeline runs configured pipelines on a remote host over SSH/SFTP.
//
// A pipeline is a named remote job described in a JSON configuration file:
// a command template plus the remote directories it reads from and writes to.
// Running a pipeline is a strictly sequential, four-step script:
//
//  1. connect to the remote host (one SSH session, one SFTP sub-channel)
//  2. upload the local input tree to the remote input directory
//  3. execute the formatted pipeline command and wait for it to exit
//  4. download the remote output tree to the local output directory
//
// Any step failure aborts the run immediately. Already-transferred files are
// left in place, and the connection is released on every exit path.
//
// # Basic Usage
//
// Load the configuration and run a pipeline:
//
//	file, err := pipeline.LoadPipelineFile("config.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	runner := pipeline.NewRunner(file)
//	if err := runner.Run(ctx, "variant-calling", "./input", "./output"); err != nil {
//		log.Fatal(err)
//	}
//
// # Configuration File
//
// The file carries one remote_config section and one entry per pipeline:
//
//	{
//	  "remote_config": {"host": "compute.example.com", "user": "pipeline"},
//	  "variant-calling": {
//	    "remote_paths": {
//	      "input_dir": "/data/in",
//	      "output_dir": "/data/out",
//	      "database": "/ref/grch38"
//	    },
//	    "pipeline_command": "call-variants --in {input_dir} --out {output_dir} --db {database}"
//	  }
//	}
//
// # Lower-Level API
//
// The Client type exposes the individual operations for callers that need
// them directly:
//
//	client, err := pipeline.NewClient(pipeline.Config{
//		Host: "compute.example.com",
//		User: "pipeline",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	_, err = client.UploadTree(ctx, "./input", "/data/in")
package pipeline
