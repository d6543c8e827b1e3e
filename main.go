package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"muzzammil.xyz/jsonc"

	"github.com/kaspa-pool/stratum-core/api"
	"github.com/kaspa-pool/stratum-core/banning"
	"github.com/kaspa-pool/stratum-core/config"
	"github.com/kaspa-pool/stratum-core/coordinator"
	"github.com/kaspa-pool/stratum-core/sharesmanager"
	"github.com/kaspa-pool/stratum-core/sharewindow"
	"github.com/kaspa-pool/stratum-core/stratum"
	"github.com/kaspa-pool/stratum-core/templatepool"
	"github.com/kaspa-pool/stratum-core/upstream"
	"github.com/kaspa-pool/stratum-core/vardiff"
)

var log = logging.Logger("main")

func main() {
	var conf config.Options

	_, rawJSON, err := jsonc.ReadFromFile("config.jsonc")
	if err != nil {
		log.Fatal("failed to read config.jsonc: ", err)
	}
	if err := json.Unmarshal(rawJSON, &conf); err != nil {
		log.Fatal("failed to parse config.jsonc: ", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan struct{})

	submitter := upstream.NewHTTPBlockSubmitter(conf.Upstream.Node)
	registry := templatepool.NewRegistry(conf.Stratum.TemplateCacheSize, submitter)

	window := sharewindow.New()
	if conf.Storage != nil {
		window.SetBacklog(sharewindow.NewRedisBacklog(conf.Storage, "stratum-core:share-backlog"))
	}
	shares := sharesmanager.New(registry, window)

	vc := &vardiff.Controller{
		MinDiff:               conf.Stratum.MinDiff,
		MaxDiff:               conf.Stratum.MaxDiff,
		ClampPow2:             conf.Stratum.ClampPow2,
		TargetSharesPerMinute: conf.Stratum.TargetSharesPerMinute,
	}

	banner := banning.NewManager(conf.Banning)
	banner.Start()

	coord := coordinator.New(&conf, registry, shares, vc, banner)
	server := stratum.NewServer(&conf, coord, banner)
	coord.AttachServer(server)

	source := upstream.NewRedisTemplateSource(conf.Storage, conf.Upstream.TemplateChannel)
	go func() {
		if err := source.Listen(ctx, registry.OnTemplate); err != nil {
			log.Error("template source stopped: ", err)
		}
	}()

	portsStarted := server.Start()
	log.Info("stratum server listening on ports ", portsStarted)

	go runVardiffLoop(vc, coord, stop)
	go shares.Start(10*time.Minute, coord.StatsReportEntries, stop)
	go coord.StartRebroadcastTicker(stop)

	apiServer := api.NewAPIServer(&conf, window, coord)
	go func() {
		if err := apiServer.Serve(); err != nil {
			log.Error("api server stopped: ", err)
		}
	}()

	waitForShutdown()

	log.Warn("shutting down")
	close(stop)
	cancel()
	_ = source.Close()
	server.Shutdown()
}

// runVardiffLoop drives the Vardiff Controller on its 10-second cadence
// named in spec §4.E, snapshotting live workers under the Coordinator's
// mutex each cycle per §5.
func runVardiffLoop(vc *vardiff.Controller, coord *coordinator.Coordinator, stop <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			vc.RunCycle(now, coord.WorkerEntries())
		}
	}
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
