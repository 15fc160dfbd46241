package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	ferrors "git.home.luguber.info/inful/mediapipe/internal/foundation/errors"
)

// Phase names accepted by transform.skip.
var KnownPhases = []string{"capture", "download", "probe", "encode", "build", "rewrite"}

var knownKinds = []string{"image", "animation", "video", "external"}

// Validate checks the configuration and returns a classified config error on the first problem.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validatePaths,
		c.validateCapture,
		c.validateFetch,
		c.validatePipeline,
		c.validateBuild,
		c.validateTransform,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.MirrorRoot) == "" {
		return configErr("mirror_root is required", "mirror_root", c.MirrorRoot)
	}
	if strings.TrimSpace(c.CacheDir) == "" {
		return configErr("cache_dir is required", "cache_dir", c.CacheDir)
	}
	return nil
}

func (c *Config) validateCapture() error {
	re, err := regexp.Compile(c.Capture.Pattern)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "capture.pattern does not compile").
			Fatal().WithContext("pattern", c.Capture.Pattern).Build()
	}
	names := re.SubexpNames()
	for _, group := range []string{"title", "uri"} {
		if !slices.Contains(names, group) {
			return configErr(fmt.Sprintf("capture.pattern must define the named group %q", group), "pattern", c.Capture.Pattern)
		}
	}
	if c.External.Enabled {
		if _, err := regexp.Compile(c.External.HostPattern); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "external.host_pattern does not compile").
				Fatal().WithContext("pattern", c.External.HostPattern).Build()
		}
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.Timeout <= 0 {
		return configErr("fetch.timeout must be > 0", "timeout", c.Fetch.Timeout)
	}
	if c.Fetch.Retries < 0 {
		return configErr("fetch.retries cannot be negative", "retries", c.Fetch.Retries)
	}
	d, err := c.Fetch.DelayDuration()
	if err != nil || d < 0 {
		return configErr("fetch.delay must be a non-negative duration", "delay", c.Fetch.Delay)
	}
	if _, err := backoffModes.Parse(string(c.Fetch.Backoff)); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "fetch.backoff must be fixed, linear or exponential").
			Fatal().WithContext("backoff", c.Fetch.Backoff).Build()
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Concurrency <= 0 {
		return configErr("pipeline.concurrency must be > 0", "concurrency", c.Pipeline.Concurrency)
	}
	return nil
}

func (c *Config) validateBuild() error {
	if c.Build.MaxWidth < 0 {
		return configErr("build.max_width cannot be negative", "max_width", c.Build.MaxWidth)
	}
	mode, fixed := c.Build.PosterMode()
	switch mode {
	case PosterAuto, PosterNone:
	case "fixed":
		if fixed == "" {
			return configErr("build.poster fixed mode requires a URL", "poster", c.Build.Poster)
		}
	default:
		return configErr("build.poster must be auto, none or fixed:<url>", "poster", c.Build.Poster)
	}
	for kind := range c.Build.Overrides {
		if !slices.Contains(knownKinds, kind) {
			return configErr("build.overrides has an unknown asset kind", "kind", kind)
		}
	}
	return nil
}

func (c *Config) validateTransform() error {
	for _, p := range c.Transform.Skip {
		if !slices.Contains(KnownPhases, p) {
			return configErr("transform.skip names an unknown phase", "phase", p)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if c.Logging.Format == "" {
		return nil
	}
	if _, err := logFormats.Parse(c.Logging.Format); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "logging.format must be text or json").
			Fatal().WithContext("format", c.Logging.Format).Build()
	}
	return nil
}

// SkipsPhase reports whether the named phase is disabled.
func (c *Config) SkipsPhase(name string) bool {
	return slices.Contains(c.Transform.Skip, name)
}

func configErr(msg, key string, value any) error {
	return ferrors.ConfigError(msg).WithContext(key, value).Build()
}
