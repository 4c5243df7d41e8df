// Copyright 2025 The Papermill Authors
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


package badger

import (
	"errors"

	"github.com/skewballfox/papermill/storage"
)

// Repositories bundles the repositories sharing one backend.
type Repositories struct {
	Backend   *Backend
	Documents storage.DocumentRepository
	Vectors   storage.VectorRepository
	Graph     storage.GraphRepository
	Outliers  storage.OutlierRepository
}

// Open opens (or creates) an on-disk database at path.
// Caller must Close the returned repositories when done.
func Open(path string) (*Repositories, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return newRepositories(backend), nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must Close the returned repositories when done.
func NewMemoryRepositories() (*Repositories, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	return newRepositories(backend), nil
}

func newRepositories(backend *Backend) *Repositories {
	return &Repositories{
		Backend:   backend,
		Documents: NewDocumentRepository(backend),
		Vectors:   NewVectorRepository(backend),
		Graph:     NewGraphRepository(backend),
		Outliers:  NewOutlierRepository(backend),
	}
}

// Close closes the repositories, then the backend.
func (r *Repositories) Close() error {
	return errors.Join(
		r.Outliers.Close(),
		r.Graph.Close(),
		r.Vectors.Close(),
		r.Documents.Close(),
		r.Backend.Close(),
	)
}
