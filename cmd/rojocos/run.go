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

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/cvt8/rojocos/cfg"
	"github.com/cvt8/rojocos/clock"
	"github.com/cvt8/rojocos/internal/blockdev"
	"github.com/cvt8/rojocos/internal/fsys"
	"github.com/cvt8/rojocos/internal/kernel"
	"github.com/cvt8/rojocos/internal/logger"
	"github.com/cvt8/rojocos/internal/process"
)

func newRunCmd(c *cfg.Config) *cobra.Command {
	var maxTicks int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Boot the kernel core against a formatted disk image and drive its scheduler.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.SetLevel(c.Logging.Severity)
			logger.SetFormat(c.Logging.Format)

			dev, err := blockdev.OpenFile(c.Disk.ImagePath)
			if err != nil {
				return err
			}
			defer dev.Close()

			fs, err := fsys.Mount(dev, blockdev.CryptoRNG{}, c.Disk.BaseOffset)
			if err != nil {
				return err
			}

			k, err := kernel.New(c.Memory.FrameCount, fs)
			if err != nil {
				return err
			}

			init := &process.Program{
				Entry: 0x400000,
				Segments: []process.Segment{
					{VAddr: 0x400000, Data: []byte{0x90}, MemSize: 4096},
				},
			}
			k.RegisterProgram("/init", init)

			pid, err := k.Boot(init, []string{"init"})
			if err != nil {
				return err
			}
			logger.Infof("booted init as pid %d", pid)

			sched := kernel.NewScheduler(k, clock.RealClock{}, time.Millisecond)
			for i := 0; i < maxTicks; i++ {
				next, ok := sched.Next()
				if !ok {
					logger.Infof("no runnable processes, halting after %d ticks", i)
					return nil
				}
				logger.Infof("tick %d: scheduled pid %d", i, next)
				sched.Tick()
			}
			logger.Warnf("reached max-ticks (%d) with processes still runnable", maxTicks)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxTicks, "max-ticks", 100, "upper bound on scheduler ticks before giving up")
	return cmd
}
