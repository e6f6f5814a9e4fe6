package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/jmestanza/tag-editor/config"
	"github.com/jmestanza/tag-editor/database"
	"github.com/jmestanza/tag-editor/handlers"
	"github.com/jmestanza/tag-editor/media"
	"github.com/jmestanza/tag-editor/merge"
	"github.com/jmestanza/tag-editor/realtime"
	"github.com/jmestanza/tag-editor/repository"
	"github.com/jmestanza/tag-editor/workers"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	storagePaths := []string{cfg.MediaStoragePath, cfg.ArchivesPath, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database schema: %v", err)
	}

	mediaStore, err := media.NewLocalStorage(cfg.MediaStoragePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize media store: %v", err)
	}

	datasetRepo := repository.NewDatasetRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	imageRepo := repository.NewImageRepository(db)
	annotationRepo := repository.NewAnnotationRepository(db)

	log.Printf("Initializing thumbnail worker pool (Workers: %d, Queue Size: %d)...", cfg.NumThumbnailWorkers, cfg.ThumbnailQueueSize)
	thumbGen := workers.NewThumbnailGenerator(mediaStore, imageRepo, cfg.ThumbnailMaxSize, cfg.ThumbnailQueueSize, cfg.NumThumbnailWorkers)
	defer thumbGen.Stop()

	hub := realtime.NewHub()
	go hub.Run()

	progress := merge.NewProgressTracker(cfg.ProgressTTL)
	defer progress.Stop()
	progress.Notify = func(p merge.RunProgress) {
		eventType := "merge_progress"
		if p.Completed {
			eventType = "merge_completed"
			if !p.Success {
				eventType = "merge_failed"
			}
		}
		hub.Broadcast(realtime.Event{
			Type:      eventType,
			RunID:     p.RunID,
			Operation: p.CurrentOperation,
			Current:   p.Current,
			Total:     p.Total,
			Percent:   p.Percentage,
			Error:     p.Error,
			Timestamp: time.Now().Unix(),
		})
	}

	merger := merge.NewMerger(db, mediaStore, progress, cfg.MergeTxTimeout)

	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Storing media in: %s", cfg.MediaStoragePath)
	log.Printf("Thumbnail max size (longest side): %dpx", cfg.ThumbnailMaxSize)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"}, //TODO: configurable
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsHandler.Handler)

	datasetHandler := &handlers.DatasetHandler{DB: db, Datasets: datasetRepo, Images: imageRepo, Categories: categoryRepo, Store: mediaStore}
	uploadHandler := &handlers.UploadHandler{DB: db, Store: mediaStore, Images: imageRepo, ThumbGen: thumbGen}
	imageHandler := &handlers.ImageHandler{Images: imageRepo, Store: mediaStore, ThumbGen: thumbGen}
	annotationHandler := &handlers.AnnotationHandler{Annotations: annotationRepo, Images: imageRepo}
	categoryHandler := &handlers.CategoryHandler{Categories: categoryRepo}
	mergeHandler := &handlers.MergeHandler{DB: db, Merger: merger, Progress: progress}
	exportHandler := &handlers.ExportHandler{Datasets: datasetRepo, Store: mediaStore, ArchivesPath: cfg.ArchivesPath}

	r.Route("/api", func(r chi.Router) {
		r.Route("/datasets", func(r chi.Router) {
			r.Post("/", datasetHandler.CreateDataset)
			r.Get("/", datasetHandler.ListDatasets)
			r.Post("/upload", uploadHandler.UploadDataset)
			r.Route("/merge", func(r chi.Router) {
				r.Post("/", mergeHandler.StartMerge)
				r.Post("/analyze", mergeHandler.AnalyzeMerge)
			})
			r.Route("/{dataset_id}", func(r chi.Router) {
				r.Get("/", datasetHandler.GetDataset)
				r.Put("/", datasetHandler.UpdateDataset)
				r.Delete("/", datasetHandler.DeleteDataset)
				r.Get("/images", datasetHandler.ListImages)
				r.Get("/categories", datasetHandler.ListCategories)
				r.Post("/categories", categoryHandler.CreateCategory)
				r.Get("/export", exportHandler.ExportDataset)
				r.Get("/export/archive", exportHandler.ExportDatasetArchive)
			})
		})

		r.Route("/images/{image_id}", func(r chi.Router) {
			r.Get("/", imageHandler.GetImage)
			r.Delete("/", imageHandler.DeleteImage)
			r.Put("/file", imageHandler.UploadImageFile)
			r.Get("/annotations", annotationHandler.ListAnnotations)
			r.Post("/annotations", annotationHandler.CreateAnnotation)
		})

		r.Route("/annotations/{annotation_id}", func(r chi.Router) {
			r.Put("/", annotationHandler.UpdateAnnotation)
			r.Delete("/", annotationHandler.DeleteAnnotation)
		})

		r.Route("/categories/{category_id}", func(r chi.Router) {
			r.Put("/", categoryHandler.UpdateCategory)
			r.Delete("/", categoryHandler.DeleteCategory)
		})

		r.Get("/merge/progress/{run_id}", mergeHandler.GetMergeProgress)

		r.Get("/assets/*", handlers.AssetServer(cfg.MediaStoragePath, "/api/assets/"))
		log.Printf("Registered asset server at /api/assets/*")
	})

	r.Get("/ws", hub.ServeWS)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	serverAddr := ":" + port
	fmt.Printf("Server starting on http://localhost:%s\n", port)
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
