package main

import "time"

// RemoteFlags select a daemon to talk to.
type RemoteFlags struct {
	APIUrl     string
	APITimeout time.Duration
	CACert     string
	Insecure   bool
}

type RunFlags struct {
	OperationID string
	WorkDir     string
	// Binary overrides [tool].binary for local runs.
	Binary string
	JSON   bool
	Remote RemoteFlags
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}
