package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/cyrus-trixie/djmoviestore/internal/config"
	"github.com/cyrus-trixie/djmoviestore/internal/services"
	"github.com/fsnotify/fsnotify"
)

// applySeedFile inserts categories and DJs from the YAML seed file
func applySeedFile(filePath string, catalog *services.CatalogService) error {
	seed, err := config.LoadSeed(filePath)
	if err != nil {
		return fmt.Errorf("failed to load catalog seed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	categories, djs, err := catalog.SeedReferenceData(ctx, seed)
	if err != nil {
		return err
	}
	log.Printf("✅ Catalog seed applied from %s (%d new categories, %d new DJs)", filePath, categories, djs)
	return nil
}

// startSeedFileWatcher watches the seed file for changes and re-applies it
func startSeedFileWatcher(filePath string, catalog *services.CatalogService) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		log.Printf("⚠️  Failed to get absolute path for %s: %v", filePath, err)
		return
	}

	// Watch the directory so editors that replace the file are still seen
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  Failed to watch directory %s: %v", dir, err)
		return
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", filePath)

	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDuration, func() {
				log.Printf("🔄 Detected changes in %s, re-applying catalog seed...", filePath)
				if err := applySeedFile(filePath, catalog); err != nil {
					log.Printf("❌ Failed to apply catalog seed after file change: %v", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  File watcher error: %v", err)
		}
	}
}
