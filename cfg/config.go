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

// Package cfg is the kernel's typed configuration, bound from flags
// and an optional config file via viper, following the same
// typed-struct-plus-Validate split the rest of the corpus uses for its
// daemon configuration.
package cfg

import "fmt"

// Config is the full set of knobs the kernel core is parameterized
// over. SetDefaults gives every field except Disk.ImagePath a value;
// the image path's default comes from the --disk flag.
type Config struct {
	Disk   DiskConfig   `yaml:"disk"`
	Memory MemoryConfig `yaml:"memory"`
	Process ProcessConfig `yaml:"process"`
	Logging LoggingConfig `yaml:"logging"`
}

type DiskConfig struct {
	// Path to the flat disk image backing the block device.
	ImagePath string `yaml:"image-path"`

	// Byte offset of the filesystem region on the disk, added to every
	// FS access (spec.md §4.3).
	BaseOffset int64 `yaml:"base-offset"`

	// Capacity mkfs formats a fresh image with.
	InodeCount uint32 `yaml:"inode-count"`
	BlockCount uint32 `yaml:"block-count"`
	NodeCount  uint32 `yaml:"node-count"`
}

type MemoryConfig struct {
	// Total number of 4 KiB physical frames simulated.
	FrameCount int `yaml:"frame-count"`

	// Number of low frames meant to be held back from the frame
	// allocator. Only Validate reads it: kernel.New builds its frame
	// table with no reserved frames whatever this is set to.
	ReservedFrames int `yaml:"reserved-frames"`
}

type ProcessConfig struct {
	// Size of the process table, including the unused slot 0. Only
	// Validate reads it: kernel.New always builds a 64-slot table.
	MaxProcesses int `yaml:"max-processes"`

	// Ring buffer capacity for buffered keyboard input. Only Validate
	// reads it: kernel.New always builds a 256-byte ring.
	KeyboardRingSize int `yaml:"keyboard-ring-size"`

	// Duration, in scheduler ticks, of one runnable process's quantum.
	// Only Validate reads it: the run command ticks every millisecond.
	QuantumTicks int `yaml:"quantum-ticks"`
}

type LoggingConfig struct {
	// "TRACE".."OFF".
	Severity string `yaml:"severity"`

	// "text" or "json".
	Format string `yaml:"format"`
}

// SetDefaults fills every field except Disk.ImagePath with small,
// fixed sizes suitable for a teaching kernel: 64 inodes, 4096 data
// blocks and 256 tree nodes for mkfs, 8192 frames, a 16-slot process
// table, and INFO-level text logging. These match the flag defaults
// registered by BindFlags.
func SetDefaults(c *Config) {
	c.Disk.BaseOffset = 0
	c.Disk.InodeCount = 64
	c.Disk.BlockCount = 4096
	c.Disk.NodeCount = 256
	c.Memory.FrameCount = 8192
	c.Memory.ReservedFrames = 256
	c.Process.MaxProcesses = 16
	c.Process.KeyboardRingSize = 256
	c.Process.QuantumTicks = 1
	c.Logging.Severity = "INFO"
	c.Logging.Format = "text"
}

// Validate rejects configurations the kernel core cannot boot with.
func (c *Config) Validate() error {
	if c.Disk.InodeCount == 0 || c.Disk.BlockCount == 0 || c.Disk.NodeCount == 0 {
		return fmt.Errorf("disk.inode-count, disk.block-count, and disk.node-count must all be positive")
	}
	if c.Memory.FrameCount <= 0 {
		return fmt.Errorf("memory.frame-count must be positive, got %d", c.Memory.FrameCount)
	}
	if c.Memory.ReservedFrames < 0 || c.Memory.ReservedFrames >= c.Memory.FrameCount {
		return fmt.Errorf("memory.reserved-frames (%d) must be within [0, frame-count)", c.Memory.ReservedFrames)
	}
	if c.Process.MaxProcesses < 2 {
		return fmt.Errorf("process.max-processes must be at least 2 (slot 0 is reserved), got %d", c.Process.MaxProcesses)
	}
	if c.Process.KeyboardRingSize <= 0 {
		return fmt.Errorf("process.keyboard-ring-size must be positive, got %d", c.Process.KeyboardRingSize)
	}
	if c.Process.QuantumTicks <= 0 {
		return fmt.Errorf("process.quantum-ticks must be positive, got %d", c.Process.QuantumTicks)
	}
	return nil
}
