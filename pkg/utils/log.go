package utils

import (
	"bufio"
	"io"

	log "github.com/sirupsen/logrus"
)

// LogPipe logs every line read from pipe at level until the pipe is drained, then closes it.
func LogPipe(pipe io.ReadCloser, level log.Level, fields log.Fields) {
	defer pipe.Close()
	entry := log.WithFields(fields)
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		entry.Log(level, scanner.Text())
	}
}
