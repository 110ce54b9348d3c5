/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds CLI settings from flags, HV_* environment variables and an
// optional config file.
type Config struct {
	Verbose bool          `mapstructure:"verbose"`
	Execute ExecuteConfig `mapstructure:"execute"`
	Emulate EmulateConfig `mapstructure:"emulate"`
}

// ExecuteConfig holds the guest settings of the execute command.
type ExecuteConfig struct {
	MemSize  int           `mapstructure:"mem_size"`
	BaseAddr uint64        `mapstructure:"base_addr"`
	Timeout  time.Duration `mapstructure:"timeout"`
	VCPUs    int           `mapstructure:"vcpus"`
}

// EmulateConfig holds the settings of the emulate command.
type EmulateConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() *Config {
	return &Config{
		Execute: ExecuteConfig{
			MemSize:  16384,
			BaseAddr: 0x4000,
			Timeout:  5 * time.Second,
			VCPUs:    1,
		},
		Emulate: EmulateConfig{
			Timeout: 5 * time.Second,
		},
	}
}

var (
	cfgFile string
	// Global is the configuration loaded for the running command.
	Global = DefaultConfig()
)

// loadConfig reads configuration from file, environment, and defaults.
func loadConfig() error {
	defaults := DefaultConfig()
	viper.SetDefault("verbose", defaults.Verbose)
	viper.SetDefault("execute.mem_size", defaults.Execute.MemSize)
	viper.SetDefault("execute.base_addr", defaults.Execute.BaseAddr)
	viper.SetDefault("execute.timeout", defaults.Execute.Timeout)
	viper.SetDefault("execute.vcpus", defaults.Execute.VCPUs)
	viper.SetDefault("emulate.timeout", defaults.Emulate.Timeout)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(dir, "hv"))
		}
	}

	// HV_VERBOSE, HV_EXECUTE_TIMEOUT, etc.
	viper.SetEnvPrefix("HV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	Global = cfg
	return nil
}
