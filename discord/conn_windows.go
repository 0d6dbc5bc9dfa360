//go:build windows

package discord

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/natefinch/npipe"
)

const dialTimeout = 2 * time.Second

func socketCandidates() []string {
	paths := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		paths = append(paths, fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, i))
	}
	return paths
}

func dialIPC() (io.ReadWriteCloser, error) {
	for _, path := range socketCandidates() {
		conn, err := npipe.DialTimeout(path, dialTimeout)
		if err == nil {
			return conn, nil
		}
	}
	return nil, errors.New("could not connect to any discord-ipc pipe, is Discord running?")
}
