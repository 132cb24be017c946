package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"signalledger/src/database"
	"signalledger/src/ledger"
	"signalledger/src/notifier"
	"signalledger/src/risk"
	"signalledger/src/server"
)

var APP_NAME = os.Getenv("APP_NAME")

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel // safe fallback
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	riskConfig := risk.GetConfig()
	engine := risk.NewEngine(
		risk.NewProportionalPolicy(riskConfig.ReferencePortfolio()),
		riskConfig,
	)

	svc := ledger.NewService(
		database.MainDB,
		engine,
		notifier.FromConfig(notifier.GetConfig()),
		ledger.GetConfig(),
	)

	server.StartServer(server.GetConfig().Port, svc)
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
