package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/space-status/db"
	"github.com/thatsimonsguy/space-status/internal/fetcher"
	"github.com/thatsimonsguy/space-status/internal/logging"
	"github.com/thatsimonsguy/space-status/internal/parser"
	"github.com/thatsimonsguy/space-status/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, channel, file, url, tz, binary, configFile, unitPath string
	var verbose bool
	flag.StringVar(&dbPath, "db", "data/status.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: parse, fetch, cache, mute, unmute, muted, install-service")
	flag.StringVar(&channel, "channel", "", "Channel for mute/unmute")
	flag.StringVar(&file, "file", "", "Status upload to parse")
	flag.StringVar(&url, "url", "", "Sensor URL to fetch")
	flag.StringVar(&tz, "tz", "America/New_York", "Sensor timezone")
	flag.StringVar(&binary, "binary", "/usr/local/bin/status-bot", "status-bot binary for install-service")
	flag.StringVar(&configFile, "config", "/etc/status-bot/config.yaml", "Config file for install-service")
	flag.StringVar(&unitPath, "unit", startup.DefaultUnitPath, "Unit file path for install-service")
	flag.BoolVar(&verbose, "v", false, "Debug logging")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of status-debug:")
		fmt.Println("  -cmd string\tCommand to run: parse, fetch, cache, mute, unmute, muted, install-service")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/status.db')")
		fmt.Println("  -channel string\tChannel for mute/unmute")
		fmt.Println("  -file string\tStatus upload to parse")
		fmt.Println("  -url string\tSensor URL to fetch")
		fmt.Println("  -tz string\tSensor timezone (default 'America/New_York')")
		fmt.Println("  -binary, -config, -unit\tPaths for install-service")
		fmt.Println("  -v\tDebug logging")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logging.Init(level, "")

	loc, err := time.LoadLocation(tz)
	if err != nil {
		fmt.Printf("Invalid timezone %s: %v\n", tz, err)
		os.Exit(1)
	}

	switch command {
	case "parse":
		if file == "" {
			fmt.Println("Error: -file is required")
			os.Exit(1)
		}
		var raw []byte
		raw, err = os.ReadFile(file)
		if err == nil {
			printJSON(parser.New(parser.Options{Location: loc}).Parse(string(raw)))
		}
	case "fetch":
		if url == "" {
			fmt.Println("Error: -url is required")
			os.Exit(1)
		}
		var raw []byte
		raw, err = fetcher.New(fetcher.Options{}).Fetch(context.Background(), url)
		if err == nil {
			printJSON(parser.New(parser.Options{Location: loc}).Parse(string(raw)))
		}
	case "cache":
		var values map[string]string
		values, err = db.DumpCacheCLI(dbPath)
		if err == nil {
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s\t%s\n", k, values[k])
			}
		}
	case "mute", "unmute":
		if channel == "" {
			fmt.Println("Error: channel is required")
			os.Exit(1)
		}
		if command == "mute" {
			err = db.MuteChannelCLI(dbPath, channel)
		} else {
			err = db.UnmuteChannelCLI(dbPath, channel)
		}
	case "muted":
		var muted []db.MutedChannel
		muted, err = db.MutedChannelsCLI(dbPath)
		for _, m := range muted {
			fmt.Printf("%s\tsince %s\n", m.Channel, m.MutedAt.Format(time.RFC3339))
		}
	case "install-service":
		var path string
		path, err = startup.InstallStatusService(startup.ServiceOptions{
			UnitPath:   unitPath,
			Binary:     binary,
			ConfigFile: configFile,
		})
		if err == nil {
			fmt.Printf("Wrote %s; run 'systemctl daemon-reload && systemctl enable --now status-bot'\n", path)
		}
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

func printJSON(v interface{}) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
