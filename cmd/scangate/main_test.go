package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestInitLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, logrus.DebugLevel, initLogger().GetLevel())

	t.Setenv("LOG_LEVEL", "not-a-level")
	assert.Equal(t, logrus.InfoLevel, initLogger().GetLevel())

	t.Setenv("LOG_LEVEL", "")
	logger := initLogger()
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}
