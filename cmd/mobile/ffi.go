//go:build cgo

package main

/*
#cgo CFLAGS: -Wall -Wextra
#include <stdlib.h>
#include <string.h>
*/
import "C"
import (
	"unsafe"
)

// Functions returning *C.char hand ownership to the caller, who must
// release the string with FreeString. A nil return means failure; the
// reason is available from GetLastError.

func cString(s string, err error) *C.char {
	setLastError(err)
	if err != nil {
		return nil
	}
	return C.CString(s)
}

func status(err error) int32 {
	setLastError(err)
	if err != nil {
		return 1
	}
	return 0
}

//export SyncInit
// SyncInit opens local storage and builds the engine.
// options is a JSON InitOptions document. Returns 0 on success.
func SyncInit(options *C.char) int32 {
	return status(initCore(C.GoString(options)))
}

//export SyncCleanup
// SyncCleanup stops the engine and closes storage.
func SyncCleanup() int32 {
	return status(shutdown())
}

//export SyncStart
// SyncStart enables periodic and connectivity-triggered sync.
func SyncStart() int32 {
	return status(start())
}

//export SyncStop
// SyncStop releases one SyncStart.
func SyncStop() int32 {
	return status(stop())
}

//export SyncSetOnline
// SyncSetOnline reports the platform network state. Non-zero means online.
func SyncSetOnline(online int32) int32 {
	return status(setOnline(online != 0))
}

//export SyncEnqueue
// SyncEnqueue records an operation and returns its id.
func SyncEnqueue(operation *C.char) *C.char {
	return cString(enqueue(C.GoString(operation)))
}

//export SyncNow
// SyncNow runs one cycle and returns the result as JSON.
func SyncNow() *C.char {
	return cString(syncNow())
}

//export SyncState
// SyncState returns the engine state as JSON.
func SyncState() *C.char {
	return cString(stateJSON())
}

//export SyncQueueStats
// SyncQueueStats returns queue counts and retry totals as JSON.
func SyncQueueStats() *C.char {
	return cString(queueStatsJSON())
}

//export GetLastError
// GetLastError returns the last error message.
// Returns a C string that must be freed by the caller.
func GetLastError() *C.char {
	return C.CString(getLastError())
}

//export FreeString
// FreeString frees a string allocated by Go.
func FreeString(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}
