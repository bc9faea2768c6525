package debug

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

var (
	mu       sync.Mutex
	fh       *os.File
	filename = "debug.log"
)

// SetFile changes the file debug output is appended to. An already open
// file is closed.
func SetFile(name string) {
	mu.Lock()
	defer mu.Unlock()
	if fh != nil {
		fh.Close()
		fh = nil
	}
	filename = name
}

func open() bool {
	if fh != nil {
		return true
	}
	var err error
	fh, err = os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("error opening debug file: %v", err)
		return false
	}
	return true
}

func Log(msg string) {
	timeStr := time.Now().Format("2006-01-02 15:04:05.000")
	_, fullPath, line, ok := runtime.Caller(2)
	if ok {
		LogRaw(fmt.Sprintf("%s %s:%d %s", timeStr, filepath.Base(fullPath), line, msg))
	} else {
		LogRaw(timeStr + " " + msg)
	}
}

// Frame logs one CAN frame as "<dir> <id> <hex bytes>".
func Frame(dir string, id uint32, data []byte) {
	Log(fmt.Sprintf("%s %03X % X", dir, id, data))
}

func LogRaw(msg string) {
	mu.Lock()
	defer mu.Unlock()
	if !open() {
		return
	}
	fh.WriteString(msg + "\n")
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	if fh == nil {
		return
	}
	fh.Sync()
	fh.Close()
	fh = nil
}
