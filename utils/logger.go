package utils

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// NewLogger builds the root logger from the log section of the config
func NewLogger(w io.Writer, c LogConfig, prefix string) (*log.Logger, error) {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "[NewLogger] bad log level %q", c.Level)
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          prefix,
		ReportTimestamp: c.Timestamp,
	}), nil
}
