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


package storage

import "errors"

var (
	// ErrNotFound indicates that the requested document, chunk or vector does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey indicates a document id that is already stored.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrSerializationFailed indicates a record that could not be encoded or decoded.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrEmptyPath indicates an outlier record without a path.
	ErrEmptyPath = errors.New("path cannot be empty")
)
