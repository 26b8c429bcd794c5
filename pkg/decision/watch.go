// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package decision

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchOnboarding watches dir for markdown/PDF changes and, after a short
// debounce, rebuilds the onboarding index and hands it to apply (typically
// Engine.SetOnboarding). Returns once the watcher is installed; rebuilds
// run in the background until ctx is cancelled.
func WatchOnboarding(ctx context.Context, dir string, log *slog.Logger, apply func(*OnboardingIndex)) error {
	if log == nil {
		log = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go watchLoop(ctx, watcher, dir, log, apply)
	log.Debug("watching onboarding directory", "dir", dir)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, dir string, log *slog.Logger, apply func(*OnboardingIndex)) {
	defer watcher.Close()

	var debounce *time.Timer
	const debounceDelay = 200 * time.Millisecond

	rebuild := func() {
		idx, err := NewOnboardingIndex(ctx, dir)
		if err != nil {
			log.Warn("onboarding reindex failed, keeping previous index", "dir", dir, "error", err)
			return
		}
		apply(idx)
		log.Info("onboarding index rebuilt", "dir", dir)
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			ext := strings.ToLower(filepath.Ext(event.Name))
			if ext != ".md" && ext != ".pdf" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, rebuild)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Error("onboarding watcher error", "error", err)
		}
	}
}
