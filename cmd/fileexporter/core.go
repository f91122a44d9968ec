package main

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/michaelswisa/FileExporter/internal/config"
	"github.com/michaelswisa/FileExporter/internal/event"
	"github.com/michaelswisa/FileExporter/internal/fsprobe"
	"github.com/michaelswisa/FileExporter/internal/metrics"
	"github.com/michaelswisa/FileExporter/internal/scanner"
)

// core is the scan pipeline shared by the serve and scan commands.
type core struct {
	registry *prometheus.Registry
	bus      *event.Bus
	scanner  *scanner.Manager
}

func newCore(cfg *config.Config, logger *slog.Logger) *core {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	bus := event.NewBus(logger, 256)
	mgr := scanner.New(scanner.Deps{
		Config:      cfg.Scan,
		FS:          fsprobe.NewOS(logger),
		Publisher:   metrics.NewPublisher(metrics.NewPrometheusSink(reg), metrics.NewSeriesStore(), logger),
		Instruments: metrics.NewInstruments(reg),
		Bus:         bus,
		Logger:      logger,
	})
	return &core{registry: reg, bus: bus, scanner: mgr}
}
