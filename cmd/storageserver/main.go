// Command storageserver runs a storage server: it serves file
// operations out of a local root directory and registers itself with
// a naming server at startup.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	log "github.com/sirupsen/logrus"

	"github.com/lowmarsh/dfs/internal/config"
	"github.com/lowmarsh/dfs/internal/storageserver"
)

func main() {
	if err := agent.Listen(agent.Options{}); err != nil {
		log.Printf("Could not start gops agent: %v", err)
	}
	defer agent.Close()

	base := flag.String("base", config.DefaultBaseDirectoryPath, "Base directory for configuration")
	verbosity := flag.String("verbosity", "info", "log level")
	flag.Parse()

	if level, err := log.ParseLevel(*verbosity); err != nil {
		log.Warningf("Invalid -verbosity %q, keeping default: %v", *verbosity, err)
	} else {
		log.SetLevel(level)
	}

	cfg, err := config.Load(*base)
	if err != nil {
		log.Fatalf("Could not load config from %q: %v", *base, err)
	}

	server := storageserver.NewServer(cfg.RootDir)

	if cfg.Storage == "s3" {
		mirror, err := storageserver.NewS3Mirror(storageserver.S3Config{
			Region:  cfg.S3Region,
			Profile: cfg.S3Profile,
			Bucket:  cfg.S3Bucket,
		})
		if err != nil {
			log.Fatalf("Could not set up S3 mirror: %v", err)
		}
		server.SetMirror(mirror)
		log.Infof("Writing through to S3 bucket %q", cfg.S3Bucket)
	}

	if err := server.Start(cfg.Hostname, cfg.StorageAddr, cfg.CommandAddr, cfg.NamingRegistrationAddr); err != nil {
		log.Fatalf("Could not start storage server: %v", err)
	}
	defer server.Stop()

	storageAddr, commandAddr, err := server.Addresses()
	if err != nil {
		log.Fatalf("Could not determine bound addresses: %v", err)
	}
	log.Infof("Storage interface listening on %s, command interface on %s", storageAddr, commandAddr)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	log.Infof("Got signal %q, shutting down.", sig)
}
