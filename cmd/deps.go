package main

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/forest-guardian/ecosystem-dashboard/internal/analysis"
	"github.com/forest-guardian/ecosystem-dashboard/internal/biodiversity"
	"github.com/forest-guardian/ecosystem-dashboard/internal/cache"
	"github.com/forest-guardian/ecosystem-dashboard/internal/chat"
	"github.com/forest-guardian/ecosystem-dashboard/internal/notification"
	"github.com/forest-guardian/ecosystem-dashboard/internal/opendata"
	"github.com/forest-guardian/ecosystem-dashboard/internal/polygon"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/forest-guardian/ecosystem-dashboard/internal/raster"
	"github.com/forest-guardian/ecosystem-dashboard/internal/satellite"
	"github.com/forest-guardian/ecosystem-dashboard/internal/ui"
	"github.com/forest-guardian/ecosystem-dashboard/internal/vector"
)

const gbifCacheTTL = 24 * time.Hour

type dependencies struct {
	layers       []properties.Layer
	vectorSource vector.Source
	vectorMode   vector.Mode
	runner       *analysis.Runner
	completer    chat.Completer
	openData     *opendata.Client
	notifier     *notification.Discord
	earthEngine  *satellite.Session
}

// buildDependencies wires every source from the environment. prompter is
// used for the interactive Earth Engine login and may be nil.
func buildDependencies(prompter satellite.Prompter) (*dependencies, error) {
	layers, err := properties.LoadLayers()
	if err != nil {
		return nil, err
	}

	mode := vector.ModeOverlay
	if properties.VectorMode() == vector.ModeIntersectsJoin.String() {
		mode = vector.ModeIntersectsJoin
		log.Warn("vector layers use the intersects join; areas are not clipped")
	}

	deps := &dependencies{
		layers:       layers,
		vectorSource: vector.NewGeoPackageSource(properties.GpkgPath()),
		vectorMode:   mode,
		completer:    chat.NewGroqClient(properties.GroqBaseUrl(), properties.GroqApiKey()),
		openData:     opendata.NewClient(properties.OpenDataBaseUrl(), 2*time.Minute),
		notifier:     notification.FromEnv(),
	}

	richness := biodiversity.NewFetcher(
		biodiversity.NewClient(properties.GbifBaseUrl(), properties.GbifTimeout()),
		properties.GbifTimeout(),
		cache.NewFileCache[int]("gbif", gbifCacheTTL),
	)

	config := analysis.Config{
		VectorSource: deps.vectorSource,
		Layers:       layers,
		VectorMode:   mode,
		Raster:       raster.NewAggregator(raster.NewGeoTIFFReader(properties.RasterPath())),
		Biodiversity: richness,
		Timeout:      properties.SourceTimeout(),
	}
	if deps.notifier.Enabled() {
		config.Notifier = deps.notifier
	}

	if project := properties.GoogleCloudProject(); project != "" {
		var fallback satellite.CredentialsFunc
		if prompter != nil {
			fallback = satellite.InteractiveCredentials(properties.GoogleOAuthClientID(), properties.GoogleOAuthClientSecret(), prompter)
		}
		deps.earthEngine = satellite.NewSession(satellite.DefaultCredentials, fallback)
		config.Satellite = satellite.NewFetcher(satellite.NewRESTEngine(properties.EarthEngineBaseUrl(), project, deps.earthEngine))
	} else {
		log.Warn("GOOGLE_CLOUD_PROJECT is not set; satellite statistics are disabled")
	}

	deps.runner = analysis.NewRunner(config)
	return deps, nil
}

// connectEarthEngine authenticates before the menu starts, outside any
// diagnostic deadline.
func (d *dependencies) connectEarthEngine(ctx context.Context) {
	if d.earthEngine == nil {
		return
	}
	if err := d.earthEngine.Init(ctx); err != nil {
		log.WithError(err).Warn("satellite statistics are disabled for this session")
	}
}

func analyze(ctx context.Context, deps *dependencies, polygonPath string, featureIndex int, outPath, csvDir string) error {
	var pick func([]polygon.FeaturePreview) (int, error)
	if featureIndex >= 0 {
		pick = func([]polygon.FeaturePreview) (int, error) { return featureIndex, nil }
	}
	g, err := ui.LoadPolygonFile(polygonPath, pick)
	if err != nil {
		return fmt.Errorf("failed to load polygon: %w", err)
	}

	session := analysis.NewSession()
	if err := session.SetPolygon(g); err != nil {
		return err
	}
	log.WithFields(log.Fields{"polygon": polygonPath, "area_ha": polygon.AreaHa(g)}).Info("running diagnostic")

	result, err := deps.runner.Run(ctx, session)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		log.WithField("source", w.Source).Warn(w.Message)
	}

	out, err := ui.WriteOutputs(ctx, result, outPath, csvDir, time.Now())
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"report":  out.Report,
		"geojson": out.GeoJSON,
		"tables":  len(out.Tables),
	}).Info("diagnostic written")

	if err := deps.notifier.SendSuccess(ctx, fmt.Sprintf("Ecosystem CLI\n\nDiagnóstico de %s generado: %s", result.Place(), out.Report)); err != nil {
		log.WithError(err).Warn("failed to send notification")
	}
	return nil
}
