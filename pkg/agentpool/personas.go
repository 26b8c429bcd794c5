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

package agentpool

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmad-forge/bmad-core/internal/errs"
	"github.com/bmad-forge/bmad-core/internal/registry"
)

// Persona is one markdown-defined role loaded from the persona directory.
// Its text becomes the system message of every invocation an agent created
// under that persona makes.
type Persona struct {
	Name string
	Text string
}

// PersonaStore is a name-keyed registry of loaded personas. A pool
// configured with one rejects CreateAgent for unknown persona names; a
// pool without one accepts any name and sends no system message.
type PersonaStore struct {
	reg *registry.Registry[Persona]
}

// LoadPersonas reads every .md file under dir as a persona named after its
// basename (mary.md defines "mary").
func LoadPersonas(dir string) (*PersonaStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.NotFoundf(component, "LoadPersonas", "persona directory %s: %v", dir, err)
	}

	store := &PersonaStore{reg: registry.New[Persona]()}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Externalf(component, "LoadPersonas", err, "read persona file %s", path)
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		if err := store.reg.Register(name, Persona{Name: name, Text: string(data)}); err != nil {
			return nil, errs.Configf(component, "LoadPersonas", "register persona %q: %v", name, err)
		}
	}
	return store, nil
}

// Get returns the persona named name.
func (s *PersonaStore) Get(name string) (Persona, error) {
	p, ok := s.reg.Get(name)
	if !ok {
		return Persona{}, errs.NotFoundf(component, "Get", "unknown persona %q (known: %s)", name, strings.Join(s.reg.Names(), ", "))
	}
	return p, nil
}

// Names lists the loaded persona names.
func (s *PersonaStore) Names() []string { return s.reg.Names() }
