//go:build !windows

package discord

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"
)

const dialTimeout = 2 * time.Second

// socketDirs lists where Discord might have put its socket, in lookup order.
// Snap and Flatpak builds nest it one directory deeper.
func socketDirs() []string {
	var dirs []string
	for _, key := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if v := os.Getenv(key); v != "" {
			dirs = append(dirs, v)
		}
	}
	dirs = append(dirs, "/tmp")

	var out []string
	for _, dir := range dirs {
		out = append(out,
			dir,
			filepath.Join(dir, "snap.discord"),
			filepath.Join(dir, "app", "com.discordapp.Discord"),
		)
	}
	return out
}

func socketCandidates() []string {
	var paths []string
	for _, dir := range socketDirs() {
		for i := 0; i < 10; i++ {
			paths = append(paths, filepath.Join(dir, fmt.Sprintf("discord-ipc-%d", i)))
		}
	}
	return paths
}

func dialIPC() (io.ReadWriteCloser, error) {
	var errs []error
	for _, path := range socketCandidates() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		conn, err := net.DialTimeout("unix", path, dialTimeout)
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("could not find a discord-ipc socket, is Discord running?")
	}
	return nil, fmt.Errorf("could not connect to any discord-ipc socket: %w", errors.Join(errs...))
}
