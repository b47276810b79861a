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

// Command rojocos runs the kernel core's disk-image simulator:
// `mkfs` formats a fresh disk image, `run` boots the kernel against
// one and drives its scheduler.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cvt8/rojocos/cfg"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var c cfg.Config

	root := &cobra.Command{
		Use:   "rojocos",
		Short: "A simulated x86-64 teaching kernel's core: memory, filesystem, processes, syscalls.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := cfg.Load(v)
			if err != nil {
				return err
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			c = loaded
			return nil
		},
	}

	if err := cfg.BindFlags(root.PersistentFlags(), v); err != nil {
		panic(err)
	}

	root.AddCommand(newMkfsCmd(&c), newRunCmd(&c))
	return root
}
