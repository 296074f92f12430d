package main

import (
	"os"

	"github.com/oceanweave/portod/pkg/cgroup"
	"github.com/oceanweave/portod/pkg/config"
	"github.com/oceanweave/portod/pkg/container"
	"github.com/oceanweave/portod/pkg/holder"
	"github.com/oceanweave/portod/pkg/kvstore"
	"github.com/oceanweave/portod/pkg/launcher"
	"github.com/oceanweave/portod/pkg/property"
	"github.com/oceanweave/portod/pkg/rpc"
	"github.com/oceanweave/portod/pkg/tc"
	"github.com/oceanweave/portod/pkg/volume"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const usage = `portod is a container supervisor daemon: a hierarchical
container registry, a property/data value system, a cgroup+tc-backed
lifecycle state machine, and the RPC dispatcher that serialises client
mutations against it.`

const (
	defaultConfigPath = "/etc/portod/portod.toml"
	defaultDBPath     = "/var/lib/portod/containers.db"
)

func main() {
	if launcher.IsReExec(os.Args) {
		if err := launcher.RunInit(); err != nil {
			log.WithError(err).Fatal("launcher init failed")
		}
		return
	}

	app := cli.NewApp()
	app.Name = "portod"
	app.Usage = usage

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Value: defaultConfigPath, Usage: "path to portod.toml"},
		cli.StringFlag{Name: "db", Value: defaultDBPath, Usage: "path to the container persistence database"},
		cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
	}

	app.Before = func(ctx *cli.Context) error {
		log.SetFormatter(&log.JSONFormatter{})
		log.SetOutput(os.Stdout)
		if ctx.GlobalBool("debug") {
			log.SetLevel(log.DebugLevel)
		} else {
			log.SetLevel(log.InfoLevel)
		}
		return nil
	}

	app.Commands = []cli.Command{daemonCommand, versionCommand}
	app.Action = daemonCommand.Action

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var versionCommand = cli.Command{
	Name:  "version",
	Usage: "print the daemon version",
	Action: func(ctx *cli.Context) error {
		log.Infof("portod %s (%s)", rpc.VersionTag, rpc.VersionRevision)
		return nil
	},
}

var daemonCommand = cli.Command{
	Name:  "daemon",
	Usage: "run the portod supervisor daemon",
	Action: func(ctx *cli.Context) error {
		cfg, err := config.Load(ctx.GlobalString("config"))
		if err != nil {
			return err
		}
		tc.Enabled = cfg.NetworkEnabled()
		container.StopGracePeriod = cfg.StopGracePeriod()
		cgroup.WaitInterval = cfg.FreezerPollInterval()
		cgroup.WaitTimeout = cfg.FreezerTimeout()

		store, err := kvstore.Open(ctx.GlobalString("db"))
		if err != nil {
			return err
		}
		defer store.Close()

		h := holder.New(store, property.NewPropertySet(), property.NewDataSet())
		h.OrphanPolicy = cfg.OrphanPolicy
		if cfg.NetworkEnabled() {
			h.RootQdisc = &tc.Qdisc{Links: []string{"eth0"}, Handle: 0x10000, DefClass: 0x1ffff}
			if err := h.RootQdisc.Create(); err != nil {
				log.WithError(err).Warn("failed to materialise root qdisc, continuing without traffic control")
				h.RootQdisc = nil
			}
		}

		log.Info("replaying persisted container state")
		if err := h.RestoreAll(); err != nil {
			return err
		}

		server := &rpc.Server{
			SocketPath: cfg.SocketPath(),
			Dispatcher: &rpc.Dispatcher{
				Holder:      h,
				Volumes:     volume.New(),
				PropertySet: property.NewPropertySet(),
				DataSet:     property.NewDataSet(),
			},
		}
		if err := server.Listen(); err != nil {
			return err
		}
		log.Infof("listening on %s", cfg.SocketPath())
		return server.Serve()
	},
}
