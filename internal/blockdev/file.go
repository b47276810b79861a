// Copyright 2024 Google Inc. All Rights Reserved.
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

package blockdev

import "os"

// File backs a Device onto a flat disk image file, the production
// path used by cmd/rojocos.
type File struct {
	f    *os.File
	size int64
}

// OpenFile opens (without creating) an existing disk image.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, size: info.Size()}, nil
}

// CreateFile creates a fresh, zero-filled disk image of the given
// size, truncating any existing file at path.
func CreateFile(path string, size int64) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, size: size}, nil
}

func (d *File) Size() int64 { return d.size }

func (d *File) ReadAt(buf []byte, off int64) error {
	if off < 0 || off+int64(len(buf)) > d.size {
		return ErrIO
	}
	if _, err := d.f.ReadAt(buf, off); err != nil {
		return ErrIO
	}
	return nil
}

func (d *File) WriteAt(buf []byte, off int64) error {
	if off < 0 || off+int64(len(buf)) > d.size {
		return ErrIO
	}
	if _, err := d.f.WriteAt(buf, off); err != nil {
		return ErrIO
	}
	return nil
}

// Close releases the backing file handle.
func (d *File) Close() error {
	return d.f.Close()
}
