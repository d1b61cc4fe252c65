package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/okanis/imgdemux"
	"github.com/urfave/cli/v2"
)

// decodePolicy is the resolved decode configuration: defaults, overlaid
// by the TOML config file, overlaid by command-line flags.
type decodePolicy struct {
	VerifyCRC         bool
	SkipUnknownChunks bool
	LogLevel          string
}

func defaultPolicy() decodePolicy {
	return decodePolicy{
		VerifyCRC: true,
		LogLevel:  "info",
	}
}

// ChunkOptions maps the policy onto decoder options.
func (p decodePolicy) ChunkOptions() imgdemux.ChunkDecoderOptions {
	return imgdemux.ChunkDecoderOptions{
		VerifyCRC:         p.VerifyCRC,
		SkipUnknownChunks: p.SkipUnknownChunks,
	}
}

// imgdemux config.toml key mapping.
type fileConfig struct {
	VerifyCRC         bool   `toml:"verify_crc"`
	SkipUnknownChunks bool   `toml:"skip_unknown_chunks"`
	LogLevel          string `toml:"log_level"`
}

// loadPolicy overlays a TOML config file onto the defaults. Only keys
// present in the file override.
func loadPolicy(path string) (decodePolicy, error) {
	policy := defaultPolicy()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return decodePolicy{}, fmt.Errorf("load decode policy: %w", err)
	}

	if meta.IsDefined("verify_crc") {
		policy.VerifyCRC = raw.VerifyCRC
	}
	if meta.IsDefined("skip_unknown_chunks") {
		policy.SkipUnknownChunks = raw.SkipUnknownChunks
	}
	if meta.IsDefined("log_level") {
		policy.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return policy, nil
}

// resolvePolicy merges command-line flags over the configured policy.
func resolvePolicy(c *cli.Context) (decodePolicy, error) {
	policy := defaultPolicy()
	if path := c.String("config"); path != "" {
		var err error
		policy, err = loadPolicy(path)
		if err != nil {
			return decodePolicy{}, err
		}
	}

	if c.Bool("no-verify-crc") {
		policy.VerifyCRC = false
	}
	if c.Bool("skip-unknown") {
		policy.SkipUnknownChunks = true
	}
	if lvl := c.String("log-level"); lvl != "" {
		policy.LogLevel = lvl
	}
	return policy, nil
}
