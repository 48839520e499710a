package heatmap

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type instruments struct {
	events      metric.Int64Counter
	resets      metric.Int64Counter
	manualAttrs metric.AddOption
	autoAttrs   metric.AddOption
}

func newInstruments(meter metric.Meter, trackedLines func() int) (*instruments, error) {
	events, err := meter.Int64Counter("heatmap.ingest.events",
		metric.WithDescription("Line execution events accepted by an ingestion source"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	resets, err := meter.Int64Counter("heatmap.resets",
		metric.WithDescription("Number of heatmap resets"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge("heatmap.tracked.lines",
		metric.WithDescription("Distinct source lines currently tracked"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(trackedLines()))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return &instruments{
		events:      events,
		resets:      resets,
		manualAttrs: metric.WithAttributeSet(attribute.NewSet(attribute.String("source", SourceManual))),
		autoAttrs:   metric.WithAttributeSet(attribute.NewSet(attribute.String("source", SourceAuto))),
	}, nil
}
