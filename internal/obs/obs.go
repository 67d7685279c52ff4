// Package obs centralizes construction of the structured logger the
// buffer pool and pager hand down into zap.SugaredLogger fields, the
// same role it plays in dan-strohschein-SyndrDB's BufferPool (victim
// eviction, writeback, shutdown events logged through a
// *zap.SugaredLogger).
package obs

import "go.uber.org/zap"

// New builds the logger the benchmark CLIs pass to pager.NewManager.
// debug selects zap's human-readable development encoder over the
// default production JSON encoder.
func New(debug bool) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
