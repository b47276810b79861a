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

package logger

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type LoggerTest struct {
	suite.Suite
	buf bytes.Buffer
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func (t *LoggerTest) SetupTest() {
	t.buf.Reset()
	SetOutput(&t.buf)
	SetFormat("text")
	SetLevel(Info)
}

func (t *LoggerTest) TestOnlyAtOrAboveConfiguredSeverityIsEmitted() {
	SetLevel(Warning)

	Infof("ignored")
	assert.Empty(t.T(), t.buf.String())

	Warnf("kept")
	assert.Regexp(t.T(), regexp.MustCompile(`severity=WARNING`), t.buf.String())
}

func (t *LoggerTest) TestOffSuppressesEverything() {
	SetLevel(Off)

	Errorf("should not appear")

	assert.Empty(t.T(), t.buf.String())
}

func (t *LoggerTest) TestJSONFormatUsesSeverityKey() {
	SetFormat("json")
	SetLevel(Trace)

	Tracef("hello %d", 7)

	assert.Contains(t.T(), t.buf.String(), `"severity":"TRACE"`)
	assert.Contains(t.T(), t.buf.String(), `"msg":"hello 7"`)
}

func (t *LoggerTest) TestTextFormatInterpolatesArgs() {
	Infof("pid=%d broke", 3)

	assert.Contains(t.T(), t.buf.String(), "pid=3 broke")
}
