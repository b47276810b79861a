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

// Memory is an in-memory Device, the fake backing store every
// filesystem unit test mounts over, analogous to the teacher's
// in-memory fake GCS bucket.
type Memory struct {
	data []byte
}

// NewMemory allocates a zero-filled in-memory device of the given
// size in bytes.
func NewMemory(size int64) *Memory {
	return &Memory{data: make([]byte, size)}
}

func (m *Memory) Size() int64 { return int64(len(m.data)) }

func (m *Memory) ReadAt(buf []byte, off int64) error {
	if off < 0 || off+int64(len(buf)) > int64(len(m.data)) {
		return ErrIO
	}
	copy(buf, m.data[off:off+int64(len(buf))])
	return nil
}

func (m *Memory) WriteAt(buf []byte, off int64) error {
	if off < 0 || off+int64(len(buf)) > int64(len(m.data)) {
		return ErrIO
	}
	copy(m.data[off:off+int64(len(buf))], buf)
	return nil
}
