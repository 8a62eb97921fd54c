package config

import (
	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/logging"
)

func setLogger(env string, filePath ...string) (*zap.Logger, error) {
	path := ""
	if len(filePath) > 0 {
		path = filePath[0]
	}
	return logging.New(env, path)
}
