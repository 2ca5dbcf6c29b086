package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lookout/config"
	"lookout/internal/api"
	"lookout/internal/api/handlers"
	"lookout/internal/cleanup"
	"lookout/internal/db"
	"lookout/internal/db/repository"
	"lookout/internal/detection"
	"lookout/internal/logger"
	"lookout/internal/mqtt"
	"lookout/internal/pipeline"
	"lookout/internal/recognition"
	"lookout/internal/server/sse"
	"lookout/internal/sinks"
	"lookout/internal/tracking"
	"lookout/internal/util/timezone"
	"lookout/internal/video"

	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "/config/config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	timezone.Initialize(cfg.Server.Timezone)

	log.Info("Initializing database...")
	if err := db.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	repo := repository.NewSQLiteRepository(db.DB)

	// Load the reference face gallery from stored templates.
	gallery := recognition.NewGallery()
	if err := loadGallery(repo, gallery); err != nil {
		log.Fatalf("Failed to load face gallery: %v", err)
	}
	log.Infof("Face gallery loaded (%d entries)", gallery.Len())

	// Recognition engine
	locator, err := recognition.NewLocator(cfg.Recognition)
	if err != nil {
		log.Fatalf("Failed to initialize face locator: %v", err)
	}
	embedder, err := recognition.NewEmbedder(cfg.Recognition)
	if err != nil {
		log.Fatalf("Failed to initialize face embedder: %v", err)
	}
	recEngine := recognition.NewEngine(cfg.Recognition, locator, embedder)
	defer recEngine.Close()

	// Detection engine
	backend, err := detection.NewBackend(cfg.Detection)
	if err != nil {
		log.Fatalf("Failed to initialize detection backend: %v", err)
	}
	detEngine := detection.NewEngine(cfg.Detection, backend)
	detEngine.Start()
	defer detEngine.Stop()

	// Video source
	source, err := video.NewSwitcher(cfg.Source)
	if err != nil {
		log.Fatalf("Failed to initialize video source: %v", err)
	}
	if err := source.Start(); err != nil {
		// The manager keeps reconnecting in the background.
		log.Warnf("Video source not yet available: %v", err)
	}
	defer source.Stop()

	// Pipeline with its sinks
	tracker := tracking.NewTracker(cfg.Tracking)
	pipe := pipeline.New(cfg.Detection, source, detEngine, tracker, recEngine, gallery)

	recorder := sinks.NewRecorder(repo, 256)
	recorder.Start()
	defer recorder.Stop()
	pipe.AddSink(recorder)

	hub := sse.NewHub()
	go hub.Run()
	pipe.AddSink(sinks.NewSSESink(hub))

	var publisher *mqtt.Publisher
	var mqttSink *sinks.MQTTSink
	if cfg.MQTT.Enabled {
		publisher = mqtt.NewPublisher(cfg.MQTT)
		if err := publisher.Start(); err != nil {
			log.Warnf("Continuing without MQTT: %v", err)
			publisher = nil
		} else {
			mqttSink = sinks.NewMQTTSink(publisher, cfg.MQTT.Topic, 256)
			mqttSink.Start()
			pipe.AddSink(mqttSink)
		}
	} else {
		log.Info("MQTT is disabled in config.")
	}

	pipe.Start()
	defer pipe.Stop()

	// Retention cleanup
	cleanupService := cleanup.NewService(repo, cfg.Cleanup,
		time.Duration(cfg.Cleanup.CheckIntervalMin)*time.Minute)
	cleanupService.StartBackgroundCleanup()
	defer cleanupService.StopBackgroundCleanup()

	// REST API
	apiHandler := handlers.NewAPIHandler(cfg, repo, source, pipe, recEngine, detEngine, gallery, hub)
	server := api.NewServer(cfg, apiHandler, repo)
	server.Start()

	// Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Infof("Received signal %s, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("API server shutdown failed: %v", err)
	}

	if mqttSink != nil {
		mqttSink.Stop()
	}
	if publisher != nil {
		publisher.Stop()
	}

	log.Info("Server stopped.")
}

// loadGallery fills the in-memory gallery from the persisted face templates.
func loadGallery(repo repository.Repository, gallery *recognition.Gallery) error {
	templates, err := repo.GetTemplates()
	if err != nil {
		return err
	}

	entries := make([]recognition.Entry, 0, len(templates))
	for _, tpl := range templates {
		var embedding []float32
		if err := json.Unmarshal(tpl.Embedding, &embedding); err != nil {
			log.Warnf("Skipping unreadable face template %d: %v", tpl.ID, err)
			continue
		}
		entries = append(entries, recognition.Entry{
			PersonID:  tpl.Person.PersonID,
			Name:      tpl.Person.Name,
			Embedding: embedding,
		})
	}
	gallery.AddAll(entries)
	return nil
}
