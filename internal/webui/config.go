package webui

import "time"

// Config defines the runtime configuration for the web UI server.
type Config struct {
	Addr          string
	ClientBuffer  int           // frames buffered per stream client
	KeepAlive     time.Duration // blank-frame interval for idle streams
	RecentReports int           // rows served by /api/reports
}

// DefaultConfig returns the default web UI configuration.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		ClientBuffer:  2,
		KeepAlive:     5 * time.Second,
		RecentReports: 50,
	}
}
