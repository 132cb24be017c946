package notifier

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const (
	TransportWebhook   = "webhook"
	TransportWebsocket = "websocket"
	TransportNoop      = "noop"
)

type Config struct {
	Transport     string `envconfig:"NOTIFIER_TRANSPORT" default:"noop"`
	WebhookURL    string `envconfig:"NOTIFIER_WEBHOOK_URL"`
	WebhookSecret string `envconfig:"NOTIFIER_WEBHOOK_SECRET"`
	WebsocketURL  string `envconfig:"NOTIFIER_WS_URL"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
