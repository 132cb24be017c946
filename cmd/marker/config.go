package marker

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MarkPeriod time.Duration `envconfig:"MARK_PERIOD" default:"60s"`
	Quote      string        `envconfig:"MARK_QUOTE" default:"USDT"`
	BatchLimit int           `envconfig:"MARK_BATCH_LIMIT" default:"500"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
