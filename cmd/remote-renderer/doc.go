// Package main is a renderer process for the remote object bridge.
//
// It connects to a remote-host, installs the "remote" global in a sandbox
// runtime and runs a script against it. The script's completion value is
// printed to stdout; console output goes through the logger.
//
// Usage:
//
//	./remote-renderer -e 'remote.require("electron").app.getName()'
//	./remote-renderer -url ws://host:8000/ipc script.js
//
// Callbacks handed to the host keep arriving after the script finishes
// for as long as -linger allows.
package main
