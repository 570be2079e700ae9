//
// Package ulog provides a richer wrapper for the std log library.
//
// Severity levels:
//  * TODO  - to mark a todo item
//  * normal - informational
//  * Warn  - a problem is about to occur, or a problem that is not an error
//  * Error - an important feature has failed and cannot make progress
//  * Fatal - log message and exit program
//
// route-chain has no persisted config and no log file rotation: all output
// goes to the process's stdout/stderr, matching its "kernel reclaims
// everything on exit" resource model.
//
package ulog

import (
	"fmt"
	"log"

	"github.com/tredeske/route-chain/uexit"
)

func TODO(format string, args ...interface{}) {
	if 0 == len(args) {
		log.Printf("TODO: " + format)
	} else {
		log.Printf("TODO: "+format, args...)
	}
}

func Println(args ...interface{}) {
	log.Println(args...)
}

func Printf(format string, args ...interface{}) {
	log.Printf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	if 0 == len(args) {
		log.Printf("WARN: " + format)
	} else {
		log.Printf("WARN: "+format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if 0 == len(args) {
		log.Printf("ERROR: " + format)
	} else {
		log.Printf("ERROR: "+format, args...)
	}
}

// log message and exit program with status 1
//
func Fatalf(format string, args ...interface{}) {
	if 0 == len(args) {
		log.Printf("FATAL: " + format)
	} else {
		log.Printf("FATAL: "+format, args...)
	}
	uexit.Exit(1)
}

// cause a panic of the program with the provided message
//
func Panicf(format string, args ...interface{}) {
	if 0 == len(args) {
		panic(format)
	} else {
		panic(fmt.Sprintf(format, args...))
	}
}

// If cond is false, then panic with the provided message
//
func Assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		if 0 == len(args) {
			panic(format)
		} else {
			panic(fmt.Sprintf(format, args...))
		}
	}
}
