package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"signalledger/cmd/marker"
	"signalledger/src/database"
	"signalledger/src/ledger"
	"signalledger/src/notifier"
	"signalledger/src/risk"
	"signalledger/src/server"
	"signalledger/src/sweeper"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Signal Ledger CMD"
	app.Usage = "The signal ledger command line interface"

	app.Commands = []cli.Command{
		serverCMD,
		sweeperCMD,
		markerCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run the ledger HTTP API",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the ledger HTTP API`,
	}
	sweeperCMD = cli.Command{
		Name:        "sweeper",
		Usage:       "run the signal expiry sweeper",
		Action:      sweeperAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the signal expiry sweeper loop`,
	}
	markerCMD = cli.Command{
		Name:        "marker",
		Usage:       "run the mark-to-market refresher",
		Action:      markerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the mark-to-market refresher loop`,
	}
)

func newLedgerService() *ledger.Service {
	riskConfig := risk.GetConfig()
	engine := risk.NewEngine(
		risk.NewProportionalPolicy(riskConfig.ReferencePortfolio()),
		riskConfig,
	)

	return ledger.NewService(
		database.MainDB,
		engine,
		notifier.FromConfig(notifier.GetConfig()),
		ledger.GetConfig(),
	)
}

// signalContext is cancelled on SIGINT or SIGTERM so loops can drain.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		cancel()
	}()

	return ctx
}

func serverAction(_ *cli.Context) error {

	logrus.Info("Starting server CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	server.StartServer(server.GetConfig().Port, newLedgerService())

	return nil
}

func sweeperAction(_ *cli.Context) error {

	logrus.Info("Starting sweeper CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	s := sweeper.New(database.MainDB, newLedgerService(), sweeper.GetConfig())

	if err := s.StartLoop(signalContext()); err != nil {
		logrus.WithError(err).Error("Starting sweeper cmd")
		return err
	}

	return nil
}

func markerAction(_ *cli.Context) error {

	logrus.Info("Starting marker CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	m := marker.New(database.MainDB, marker.GetConfig())
	m.StartLoop(signalContext())

	return nil
}
