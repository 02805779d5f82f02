package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/RyanBlaney/sonido-canto/extraction"
	"github.com/RyanBlaney/sonido-canto/extraction/config"
)

// commandContext lazily loads the analysis bundle named by --config.
type commandContext struct {
	configFlag *string

	once   sync.Once
	config *config.AnalysisConfig
	err    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.AnalysisConfig, error) {
	c.once.Do(func() {
		path := ""
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			c.config = config.Default()
			return
		}
		c.config, c.err = config.Load(path)
		if c.err != nil {
			c.err = fmt.Errorf("load analysis bundle: %w", c.err)
		}
	})
	return c.config, c.err
}

func (c *commandContext) analyzer() (*extraction.Analyzer, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return extraction.NewAnalyzer(cfg, nil)
}
