/*
   Copyright The Ungzip Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// DefaultConfigPath is the default filesystem path for the configuration file.
const DefaultConfigPath = "/etc/ungzip/config.toml"

type Config struct {
	// LogLevel is the logging level (trace, debug, info, warn, error).
	LogLevel string `toml:"log_level"`

	// VerifyChecksums makes the decoder check every member's CRC-32 and
	// ISIZE trailer fields against the decompressed output.
	VerifyChecksums bool `toml:"verify_checksums"`
}

// NewConfig returns an initialized Config with default values set.
func NewConfig() *Config {
	cfg := &Config{}
	parseConfig(cfg)
	return cfg
}

// NewConfigFromToml returns a Config loaded from the TOML file at cfgPath,
// with defaults applied to any key the file leaves unset. A missing file at
// the default path is not an error.
func NewConfigFromToml(cfgPath string) (*Config, error) {
	f, err := os.Open(cfgPath)
	if err != nil {
		if os.IsNotExist(err) && cfgPath == DefaultConfigPath {
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("failed to open config file %q: %w", cfgPath, err)
	}
	defer f.Close()

	cfg := &Config{}
	if err = toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", cfgPath, err)
	}
	parseConfig(cfg)
	return cfg, nil
}

func parseConfig(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
}
