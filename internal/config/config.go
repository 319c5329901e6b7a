// Package config holds the typed configuration structs for each of
// PICCOLO's four binaries: one struct per binary rather than a single
// global config. The binaries read their settings directly from the
// cli.Context built by pkg/cli; nothing in this repository fills these
// structs.
package config

import "time"

// Common fields shared by every binary.
type Common struct {
	LogFile   string
	LogLevel  string
	EtcdEndpoints []string
	MetricsAddr   string
}

// StateManager configures the statemanager binary (C4-C8, C12).
type StateManager struct {
	Common
	QueueSize    int
	ActionBudget time.Duration
	GRPCAddr     string
}

// ActionController configures the actioncontroller binary (C9).
type ActionController struct {
	Common
	StateManagerAddr string
	NodeAgentTimeout time.Duration
	TimpaniAddr      string
	StaticNodeRoles  map[string]string
}

// NodeAgent configures the nodeagent binary (C10, C11).
type NodeAgent struct {
	Common
	PodmanSocket string
	YAMLDir      string
	GRPCAddr     string
	Hostname     string
}

// APIServer configures the apiserver binary (C2 front door).
type APIServer struct {
	Common
	HTTPAddr string
}
