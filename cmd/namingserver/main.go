// Command namingserver runs the naming server: it answers client
// lookups and locking over the Service interface, and registration
// handshakes from storage servers over the Registration interface.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	log "github.com/sirupsen/logrus"

	"github.com/lowmarsh/dfs/internal/config"
	"github.com/lowmarsh/dfs/internal/dfsapi"
	"github.com/lowmarsh/dfs/internal/naming"
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

	server := naming.NewServer(cfg.ReplicationThreshold)

	serviceSk, err := dfsapi.NewServiceSkeleton(server, "tcp", cfg.ServiceAddr)
	if err != nil {
		log.Fatalf("Could not bind service interface to %q: %v", cfg.ServiceAddr, err)
	}
	if err := serviceSk.Start(); err != nil {
		log.Fatalf("Could not start service listener: %v", err)
	}
	defer serviceSk.Stop()
	if _, addr, err := serviceSk.Address(); err == nil {
		log.Infof("Service interface listening on %s", addr)
	}

	registrationSk, err := dfsapi.NewRegistrationSkeleton(server, "tcp", cfg.RegistrationAddr)
	if err != nil {
		log.Fatalf("Could not bind registration interface to %q: %v", cfg.RegistrationAddr, err)
	}
	if err := registrationSk.Start(); err != nil {
		log.Fatalf("Could not start registration listener: %v", err)
	}
	defer registrationSk.Stop()
	if _, addr, err := registrationSk.Address(); err == nil {
		log.Infof("Registration interface listening on %s", addr)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	log.Infof("Got signal %q, shutting down.", sig)
}
