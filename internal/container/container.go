// Package container wires the application components together: config,
// region templates, the reference index, OCR, the matchers and the
// fusion engine.
package container

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"go-card-matcher/internal/config"
	"go-card-matcher/internal/enrich"
	apperrors "go-card-matcher/internal/errors"
	"go-card-matcher/internal/fusion"
	"go-card-matcher/internal/imaging"
	"go-card-matcher/internal/index"
	"go-card-matcher/internal/logger"
	"go-card-matcher/internal/matcher"
	"go-card-matcher/internal/ocr"
	"go-card-matcher/internal/region"
)

type Container struct {
	Config   *config.Config
	Registry *region.Registry
	Index    index.Store
	OCR      ocr.Engine
	Cache    *fusion.DecisionCache
	Engine   *fusion.Engine
	cardDB   *enrich.SQLiteDatabase
	log      *logrus.Entry
}

// New builds the full component graph from environment configuration.
// Configuration errors are fatal; a missing reference index or icon
// directory only leaves the corresponding matcher not ready.
func New(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, apperrors.NewConfigurationError("invalid configuration", err)
	}

	c := &Container{
		Config: cfg,
		log:    logger.WithComponent("container"),
	}

	c.Registry, err = loadOrBootstrapRegistry(cfg.ManifestPath)
	if err != nil {
		return nil, err
	}

	c.Index, err = index.OpenSQLite(cfg.IndexPath)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to open reference index", err)
	}

	c.OCR = ocr.NewTesseractEngine(cfg.OCRLanguage)
	c.Cache = fusion.NewDecisionCache(cfg.CacheCapacity, cfg.CacheTTL)

	entries, err := c.Index.All(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Reference index unreadable, continuing without it")
		entries = nil
	}

	matchers := []matcher.Matcher{
		matcher.NewHashMatcher(ctx, c.Index, c.Registry, cfg.HashMaxDistance, cfg.HashMaxResults),
		matcher.NewIconMatcher(loadIconTemplates(cfg), c.Registry, cfg.IconEarlyExit),
		matcher.NewNumberMatcher(c.OCR, c.Registry),
		matcher.NewTextMatcher(c.OCR, c.Registry, lexiconFrom(entries)),
	}
	var refDB enrich.ReferenceDatabase
	if cfg.CardDBPath != "" {
		c.cardDB, err = enrich.OpenSQLite(cfg.CardDBPath)
		if err != nil {
			c.log.WithError(err).Warn("Card database unavailable, continuing without enrichment")
		} else {
			refDB = c.cardDB
		}
	}
	var prices enrich.PriceService
	if cfg.PriceServiceURL != "" {
		prices = enrich.NewHTTPPriceService(cfg.PriceServiceURL)
	}

	synth := matcher.NewSynthesizer(cfg.SetGate, cfg.NumberGate, cfg.NameGate)
	c.Engine = fusion.NewEngine(cfg, matchers, synth, c.Cache, refDB, prices)

	c.log.WithFields(logrus.Fields{
		"mode":      cfg.Mode,
		"strategy":  cfg.FusionStrategy,
		"templates": len(c.Registry.Templates()),
		"index":     len(entries),
	}).Info("Container initialized")
	return c, nil
}

func (c *Container) Close() error {
	var firstErr error
	if c.cardDB != nil {
		firstErr = c.cardDB.Close()
	}
	if c.Index != nil {
		if err := c.Index.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// loadOrBootstrapRegistry loads the template manifest, writing the
// builtin template set to the configured path when none exists yet.
func loadOrBootstrapRegistry(path string) (*region.Registry, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		registry := region.NewRegistry(region.BuiltinTemplates(), region.BuiltinDefaultID, path)
		if err := registry.Persist(); err != nil {
			return nil, err
		}
		return registry, nil
	}
	return region.Load(path)
}

// loadIconTemplates reads every image in the icon directory as a set
// icon template named after its file stem. A missing directory is not
// an error; the icon matcher just reports not ready.
func loadIconTemplates(cfg *config.Config) []matcher.IconTemplate {
	log := logger.WithComponent("container")
	dirEntries, err := os.ReadDir(cfg.IconDir)
	if err != nil {
		log.WithField("dir", cfg.IconDir).Info("No set icon directory, icon matcher disabled")
		return nil
	}

	var templates []matcher.IconTemplate
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(de.Name()))
		if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(cfg.IconDir, de.Name()))
		if err != nil {
			log.WithError(err).WithField("file", de.Name()).Warn("Skipping unreadable icon")
			continue
		}
		img, err := imaging.Decode(data)
		if err != nil {
			log.WithError(err).WithField("file", de.Name()).Warn("Skipping undecodable icon")
			continue
		}
		set := strings.ToUpper(strings.TrimSuffix(de.Name(), ext))
		templates = append(templates, matcher.NewIconTemplate(set, img, cfg.IconScales, cfg.IconThreshold))
	}
	log.WithField("icons", len(templates)).Info("Set icon templates loaded")
	return templates
}

// lexiconFrom collects the distinct card names known to the reference
// index, feeding the text matcher's name validation.
func lexiconFrom(entries []index.Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	var names []string
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		if _, ok := seen[e.Name]; ok {
			continue
		}
		seen[e.Name] = struct{}{}
		names = append(names, e.Name)
	}
	return names
}
