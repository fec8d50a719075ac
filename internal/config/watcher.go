// Package config provides dynamic configuration reload via SIGHUP and
// filesystem watching.
package config

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// ReloadFunc is invoked with the config file path whenever a reload is
// triggered. A returned error is logged; the trigger keeps running.
type ReloadFunc func(configPath string) error

// SetupSIGHUPHandler installs a handler that reloads the configuration on
// SIGHUP, the conventional Unix reload signal. The handler runs in a
// goroutine for the lifetime of the process and survives failed reloads.
func SetupSIGHUPHandler(configPath string, reloadFn ReloadFunc) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)

	go func() {
		for {
			<-sighup
			log.Info("SIGHUP received, reloading configuration")
			if err := reloadFn(configPath); err != nil {
				log.Errorf("configuration reload failed: %v", err)
			}
		}
	}()

	log.Info("SIGHUP handler configured for config reload")
}

// WatchConfigFile reloads the configuration whenever the config file
// changes on disk.
//
// The watch is placed on the containing directory, not the file itself:
// editors save atomically (temp file plus rename), which replaces the
// inode and silently breaks a file-level watch. Events are filtered back
// down to the config file name.
//
// The caller owns the returned watcher and should defer Close.
func WatchConfigFile(configPath string, reloadFn ReloadFunc) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	configDir := filepath.Dir(configPath)
	configName := filepath.Base(configPath)

	if err := watcher.Add(configDir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != configName {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					log.Info("config file changed, reloading")
					if err := reloadFn(configPath); err != nil {
						log.Errorf("configuration reload failed: %v", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("config watcher error: %v", err)
			}
		}
	}()

	log.Infof("watching config file: %s", configPath)
	return watcher, nil
}
