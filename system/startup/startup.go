package startup

import (
	"fmt"
	"os"
	"path/filepath"
)

const DefaultUnitPath = "/etc/systemd/system/status-bot.service"

type ServiceOptions struct {
	UnitPath   string
	User       string
	WorkDir    string
	Binary     string
	ConfigFile string
	LogFile    string
}

// UnitFile renders the systemd unit for the status bot.
func UnitFile(opts ServiceOptions) (string, error) {
	if opts.Binary == "" {
		return "", fmt.Errorf("binary path is required")
	}
	if opts.ConfigFile == "" {
		return "", fmt.Errorf("config file is required")
	}
	if opts.User == "" {
		opts.User = "status-bot"
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Dir(opts.Binary)
	}

	execStart := fmt.Sprintf("%s -config-file %s", opts.Binary, opts.ConfigFile)
	if opts.LogFile != "" {
		execStart += " -log-file " + opts.LogFile
	}

	return fmt.Sprintf(`[Unit]
Description=Space status bot
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User=%s
WorkingDirectory=%s
ExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, opts.User, opts.WorkDir, execStart), nil
}

func InstallStatusService(opts ServiceOptions) (string, error) {
	if opts.UnitPath == "" {
		opts.UnitPath = DefaultUnitPath
	}
	unit, err := UnitFile(opts)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(opts.UnitPath, []byte(unit), 0644); err != nil {
		return "", fmt.Errorf("write unit file: %w", err)
	}
	return opts.UnitPath, nil
}
