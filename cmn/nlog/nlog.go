// Package nlog is msserve's own leveled logger: no third-party logging
// dependency, matching how the teacher (aistore) hand-rolls its `nlog`
// package rather than reaching for a logging framework.
package nlog

import (
	"log"
	"os"
	"sync/atomic"
)

var (
	std = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)

	// verbosity is a global fast-path gate checked by FastV before any
	// formatting happens, so hot paths pay only an atomic load when quiet.
	verbosity int64
)

// SetVerbosity controls the level threshold consulted by FastV.
func SetVerbosity(v int) { atomic.StoreInt64(&verbosity, int64(v)) }

// FastV reports whether logging at the given level is enabled for module.
// The module argument exists for call-site readability and future
// per-module gating; today all modules share one global threshold.
func FastV(level int, _ string) bool {
	return atomic.LoadInt64(&verbosity) >= int64(level)
}

func Infoln(args ...any)              { std.Println(append([]any{"I:"}, args...)...) }
func Infof(format string, a ...any)   { std.Printf("I: "+format+"\n", a...) }
func Warningln(args ...any)           { std.Println(append([]any{"W:"}, args...)...) }
func Warningf(format string, a ...any) { std.Printf("W: "+format+"\n", a...) }
func Errorln(args ...any)             { std.Println(append([]any{"E:"}, args...)...) }
func Errorf(format string, a ...any)  { std.Printf("E: "+format+"\n", a...) }
