package main

import (
	"flag"
	"log"

	"github.com/itohio/cellbms/pkg/config"
	"github.com/itohio/cellbms/pkg/logging"
)

func main() {
	var (
		portFlag    = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0)")
		configFlag  = flag.String("config", "cellctl.yaml", "Configuration file path")
		connectFlag = flag.Bool("c", false, "Connect on start")
		evalOnly    = flag.Bool("e", false, "Evaluation only, no interactive shell")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	s := NewShell(cfg, logger, !*evalOnly)
	if *connectFlag || *portFlag != "" {
		if err := s.Connect(cfg.Serial.Port); err != nil {
			log.Fatalf("connect %q failed: %v", cfg.Serial.Port, err)
		}
	}
	s.Run(flag.Args()...)
}
