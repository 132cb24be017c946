package sweeper

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SweepPeriod time.Duration `envconfig:"SWEEP_PERIOD" default:"30s"`
	BatchLimit  int           `envconfig:"SWEEP_BATCH_LIMIT" default:"200"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
