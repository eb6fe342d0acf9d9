package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"speech-affect/pkg/audio"
	"speech-affect/pkg/config"
	"speech-affect/pkg/emotion"
	"speech-affect/pkg/pipeline"
	"speech-affect/pkg/scorer"
)

// components are built once at startup and shared by every request.
type components struct {
	scorer   *scorer.HTTPScorer
	analyzer *pipeline.Analyzer
	metrics  *pipeline.Metrics
}

func buildComponents(cfg *config.Config, log *zap.Logger, reg prometheus.Registerer) *components {
	decoder := audio.NewDecoder(log,
		audio.ContainerStrategy{},
		audio.LenientStrategy{},
		&audio.TranscodeStrategy{
			Binary:     cfg.Transcode.Binary,
			SampleRate: cfg.Audio.TargetSampleRate,
			Timeout:    cfg.Transcode.Timeout,
			TempDir:    cfg.Transcode.TempDir,
			Log:        log,
		},
	)

	loader := &audio.Loader{
		Decoder:         decoder,
		TargetRate:      cfg.Audio.TargetSampleRate,
		TopDB:           cfg.Audio.TopDB,
		ResampleQuality: cfg.Audio.ResampleQuality,
		Log:             log,
	}

	sc := scorer.NewHTTPScorer(cfg.Scorer.URL, cfg.Scorer.Model, cfg.Scorer.Timeout)
	metrics := pipeline.NewMetrics(reg)
	analyzer := pipeline.NewAnalyzer(
		loader,
		sc,
		emotion.NewMapper(cfg.Scorer.Threshold),
		cfg.Audio.MinDuration,
		metrics,
		log,
	)

	return &components{scorer: sc, analyzer: analyzer, metrics: metrics}
}
