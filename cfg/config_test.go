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
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	var c Config
	SetDefaults(&c)

	assert.NoError(t, c.Validate())
	assert.Equal(t, 8192, c.Memory.FrameCount)
	assert.Equal(t, 16, c.Process.MaxProcesses)
}

func TestValidateRejectsBadFrameCount(t *testing.T) {
	var c Config
	SetDefaults(&c)
	c.Memory.FrameCount = 0

	assert.Error(t, c.Validate())
}

func TestValidateRejectsReservedFramesOutOfRange(t *testing.T) {
	var c Config
	SetDefaults(&c)
	c.Memory.ReservedFrames = c.Memory.FrameCount

	assert.Error(t, c.Validate())
}

func TestBindFlagsOverridesDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	require.NoError(t, BindFlags(flags, v))
	require.NoError(t, flags.Parse([]string{"--frames=4096", "--disk=/tmp/x.img"}))

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 4096, c.Memory.FrameCount)
	assert.Equal(t, "/tmp/x.img", c.Disk.ImagePath)
	// Flags not passed on the command line keep their own registered
	// defaults, which mirror SetDefaults, so the rest of the struct is
	// still fully populated.
	assert.Equal(t, 16, c.Process.MaxProcesses)
}
