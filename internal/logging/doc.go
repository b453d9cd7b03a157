// Package logger provides leveled logging for mrcrypt commands.
//
// Output goes to stderr so that plaintext or ciphertext written to stdout
// is never interleaved with log lines.
//
// # Verbosity Levels
//
// The counted -v flag selects the level:
//
//   - no flag: warnings and errors only
//   - -v:      info, warnings and errors
//   - -vv:     everything including debug details
//
// # Log Methods
//
//	Logger.Infof()           // Shown with -v or more
//	Logger.Debugf()          // Shown only with -vv
//	Logger.Warnf()           // Always shown
//	Logger.Errorf()          // Always shown
//	Logger.ErrorfAndReturn() // Errorf, then returns the message as an error
//
// # File Sink
//
// When a log file is configured every message, regardless of level, is also
// appended without colour to a size-rotated file (see NewFileSink).
//
// # Usage
//
//	log := logger.FromVerbosity(verboseCount)
//	log.Infof("Processing %d files", count)
package logger
