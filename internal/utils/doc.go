// Package utils provides small helpers shared by the commands: stdin
// handling, terminal detection, path formatting and user lookup.
package utils
