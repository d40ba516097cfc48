package main

import "time"

// Flag structs to decouple cobra from logic for testing.

type ServeFlags struct {
	ConfigPath string
}

type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// ControlFlags covers the backfill and reseed commands.
type ControlFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

type SyncLogFlags struct {
	Limit      int
	APIUrl     string
	APITimeout time.Duration
}

type ValidateFlags struct {
	ConfigPath string
}
