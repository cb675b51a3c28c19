// Package logx is the structured logger shared by every loopsched package.
//
// A Logger is a small value wrapping zerolog. Loggers derived from a Service
// follow its config across reloads; standalone loggers (NewWriter,
// NewConsole, Nop) write to a fixed sink. Console output is human readable,
// file output is JSON lines. Throttle keeps hot-loop warnings quiet.
package logx
