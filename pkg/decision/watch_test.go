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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchOnboardingRebuildsOnNewDoc(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rebuilt := make(chan *OnboardingIndex, 4)
	if err := WatchOnboarding(ctx, dir, nil, func(idx *OnboardingIndex) { rebuilt <- idx }); err != nil {
		t.Fatalf("WatchOnboarding: %v", err)
	}

	content := "# Setup\n\nInstall dependencies, copy the sample config, and run the setup script.\n"
	if err := os.WriteFile(filepath.Join(dir, "setup.md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}

	select {
	case idx := <-rebuilt:
		if _, ok := idx.Match("How do I set up the project?"); !ok {
			t.Error("rebuilt index should match the setup question")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rebuild")
	}
}

func TestWatchOnboardingIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rebuilt := make(chan *OnboardingIndex, 1)
	if err := WatchOnboarding(ctx, dir, nil, func(idx *OnboardingIndex) { rebuilt <- idx }); err != nil {
		t.Fatalf("WatchOnboarding: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("scratch"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	select {
	case <-rebuilt:
		t.Error("a non-md/pdf file should not trigger a rebuild")
	case <-time.After(600 * time.Millisecond):
	}
}
