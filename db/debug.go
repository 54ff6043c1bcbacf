package db

import (
	"time"
)

func MuteChannelCLI(dbPath, channel string) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	return MuteChannel(conn, channel, time.Now())
}

func UnmuteChannelCLI(dbPath, channel string) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	return UnmuteChannel(conn, channel)
}

func MutedChannelsCLI(dbPath string) ([]MutedChannel, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return GetMutedChannels(conn)
}

func DumpCacheCLI(dbPath string) (map[string]string, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return ReadAllValues(conn)
}
