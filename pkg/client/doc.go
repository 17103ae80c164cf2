// Package client is a thin JSON client for the Hive HTTP API, used by
// the hive CLI and available to any Go program that wants to drive a
// server programmatically.
package client
