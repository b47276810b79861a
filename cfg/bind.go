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

package cfg

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags registers the flag set the CLI exposes and binds it into
// v, following the teacher's cmd/root.go pattern of binding pflags
// into viper so that flags, env vars, and an optional config file all
// resolve through the same precedence chain.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	flags.String("disk", "rojocos.img", "path to the flat disk image backing the block device")
	flags.Uint32("inodes", 64, "inode table capacity for mkfs")
	flags.Uint32("blocks", 4096, "data block capacity for mkfs")
	flags.Uint32("nodes", 256, "directory-tree node capacity for mkfs")
	flags.Int("frames", 8192, "number of simulated 4 KiB physical frames")
	flags.Int("max-processes", 16, "size of the process table (checked by Validate; kernel.New always uses 64 slots)")
	flags.String("log-severity", "INFO", "minimum log severity (TRACE..OFF)")
	flags.String("log-format", "text", "log rendering: text or json")

	binds := map[string]string{
		"disk":          "disk.image-path",
		"inodes":        "disk.inode-count",
		"blocks":        "disk.block-count",
		"nodes":         "disk.node-count",
		"frames":        "memory.frame-count",
		"max-processes": "process.max-processes",
		"log-severity":  "logging.severity",
		"log-format":    "logging.format",
	}
	for flagName, key := range binds {
		if err := v.BindPFlag(key, flags.Lookup(flagName)); err != nil {
			return err
		}
	}
	return nil
}

// Load materializes a Config from v, applying SetDefaults first so
// that any key the flag set or config file does not set still has a
// sane value. It decodes with the "yaml" struct tag rather than
// viper's default mapstructure tag -- Config's fields are tagged
// `yaml:"image-path"` etc. to match the hyphenated flag/key names
// bound above, which the default tag name would never match (the
// teacher's cmd/legacy_param_mapper.go sets the same override).
func Load(v *viper.Viper) (Config, error) {
	var c Config
	SetDefaults(&c)
	if err := v.Unmarshal(&c, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.DecodeHook = DecodeHook()
	}); err != nil {
		return Config{}, err
	}
	return c, nil
}
