package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/ppecam/ppecam/pkg/alarm"
	"github.com/ppecam/ppecam/pkg/nnort"
	"github.com/ppecam/ppecam/server"
	"github.com/ppecam/ppecam/server/configdb"
	"github.com/ppecam/ppecam/server/monitor"
)

func main() {
	// This is purely for documentation of the cmd-line args
	nominalDefaultDB := "$HOME/ppecam/config.sqlite"

	parser := argparse.NewParser("ppecam", "PPE compliance monitor")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration database file", Default: nominalDefaultDB})
	modelDir := parser.String("", "models", &argparse.Options{Help: "Directory containing the ONNX models", Default: "models"})
	nnModelName := parser.String("", "nn", &argparse.Options{Help: "Specify the neural network for PPE detection", Default: "yolov8m-ppe"})
	sinksFile := parser.String("", "sinks", &argparse.Options{Help: "Alarm sink configuration file (YAML)", Default: ""})
	triggerFrames := parser.Int("", "trigger", &argparse.Options{Help: "Consecutive violation frames before the alarm raises (0 = keep stored setting)", Default: 0})
	clearFrames := parser.Int("", "clear", &argparse.Options{Help: "Consecutive clear frames before the alarm clears (0 = keep stored setting)", Default: 0})
	port := parser.Int("p", "port", &argparse.Options{Help: "HTTP listen port", Default: 8080})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	home, _ := os.UserHomeDir()
	if home == "" {
		// It's usual for this to be overridden with the --config option, so this
		// default is not very important.
		home = "/var/lib"
	}
	if *configFile == nominalDefaultDB {
		*configFile = filepath.Join(home, "ppecam", "config.sqlite")
	}

	configDB, err := configdb.NewConfigDB(logger, *configFile)
	if err != nil {
		logger.Errorf("Failed to open config database: %v", err)
		os.Exit(1)
	}

	if *triggerFrames > 0 || *clearFrames > 0 {
		policy, err := configDB.GetPolicy()
		if err == nil {
			if *triggerFrames > 0 {
				policy.TriggerFrames = *triggerFrames
			}
			if *clearFrames > 0 {
				policy.ClearFrames = *clearFrames
			}
			err = configDB.SetPolicy(policy)
		}
		if err != nil {
			logger.Errorf("Failed to apply alarm thresholds: %v", err)
			os.Exit(1)
		}
	}

	detector, err := nnort.LoadModel(logger, *modelDir, *nnModelName)
	if err != nil {
		logger.Errorf("Failed to load model %v: %v", *nnModelName, err)
		os.Exit(1)
	}
	sinks, err := alarm.LoadSinks(logger, *sinksFile)
	if err != nil {
		logger.Errorf("Failed to load alarm sinks: %v", err)
		os.Exit(1)
	}

	mon, err := monitor.NewMonitor(logger, detector, configDB, sinks)
	if err != nil {
		logger.Errorf("Failed to start monitor: %v", err)
		os.Exit(1)
	}
	defer mon.Close()

	srv := server.NewServer(logger, configDB, mon)

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := srv.ListenAndServe(fmt.Sprintf(":%v", *port)); err != nil {
		logger.Errorf("ListenAndServe returned: %v", err)
		os.Exit(1)
	}
}
