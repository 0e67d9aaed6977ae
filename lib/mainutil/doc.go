// Package mainutil provides the plumbing shared by verserve's main(): flag
// registration, logging setup, listener configuration, and the MultiServer
// that runs every listener until the process is told to stop.
//
package mainutil
