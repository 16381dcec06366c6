/*
Package config holds the construction-time tuning knobs for a hash
index: an explicit options struct passed at construction rather than
global singleton configuration, plus a loader for a HuJSON (JSON with
comments) config file, generalized from the source's own
map[string]string-over-defaults config loader (config.LoadConfigFile /
config.DefaultConfig) to a typed struct overlaid onto Defaults().
*/
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

/*
Options holds every tunable the hash index needs at construction time.
*/
type Options struct {

	/*
		PageSize is the size in bytes of a single bucket/directory page.
	*/
	PageSize int `json:"pageSize"`

	/*
		MaxLevelDepth is the number of hash bits a single directory node
		consumes (and so also the minimum bucket depth, since a bucket
		always lives below at least one full node).
	*/
	MaxLevelDepth int `json:"maxLevelDepth"`

	/*
		SplitBufferLimit is the number of staged pages the split buffer
		holds before it is drained, tunable instead of a hard-coded
		constant.
	*/
	SplitBufferLimit int `json:"splitBufferLimit"`

	/*
		MergeThreshold is the bucket occupancy fraction below which a
		remove triggers a merge attempt.
	*/
	MergeThreshold float64 `json:"mergeThreshold"`

	/*
		DropOversizedKeys controls KeyTooLargeError handling: true (the
		default, matching the source) silently drops the insert with a
		logged warning; false surfaces the error to the caller instead.
	*/
	DropOversizedKeys bool `json:"dropOversizedKeys"`

	/*
		CacheMaxPages bounds how many clean pages pagecache.FileCache keeps
		resident before evicting the least recently touched one.
	*/
	CacheMaxPages int `json:"cacheMaxPages"`
}

/*
Defaults returns the default Options: an 8192 byte page size, a max
level depth of 8, a split buffer threshold of 1500 staged pages, and a
merge threshold of 0.2.
*/
func Defaults() Options {
	return Options{
		PageSize:          8192,
		MaxLevelDepth:     8,
		SplitBufferLimit:  1500,
		MergeThreshold:    0.2,
		DropOversizedKeys: true,
		CacheMaxPages:     4096,
	}
}

/*
Validate reports a ConfigurationError-shaped error for option values the
index cannot operate with.
*/
func (o Options) Validate() error {
	if o.PageSize <= 64 {
		return fmt.Errorf("config: pageSize must be greater than 64 bytes, got %d", o.PageSize)
	}
	if o.MaxLevelDepth < 1 || o.MaxLevelDepth > 16 {
		return fmt.Errorf("config: maxLevelDepth must be in [1,16], got %d", o.MaxLevelDepth)
	}
	if o.SplitBufferLimit < 1 {
		return fmt.Errorf("config: splitBufferLimit must be positive, got %d", o.SplitBufferLimit)
	}
	if o.MergeThreshold <= 0 || o.MergeThreshold >= 1 {
		return fmt.Errorf("config: mergeThreshold must be in (0,1), got %f", o.MergeThreshold)
	}
	return nil
}

/*
Load overlays a HuJSON document (JSON permitting comments and trailing
commas, for a human-editable config file) onto Defaults(). Fields absent
from data keep their default value, mirroring the source's own
overlay-onto-DefaultConfig behavior.
*/
func Load(data []byte) (Options, error) {
	opts := Defaults()

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return opts, fmt.Errorf("config: parse: %w", err)
	}

	if err := json.Unmarshal(standardized, &opts); err != nil {
		return opts, fmt.Errorf("config: decode: %w", err)
	}

	return opts, opts.Validate()
}

/*
LoadFile reads and parses a HuJSON config file, overlaying it onto
Defaults().
*/
func LoadFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), fmt.Errorf("config: read %q: %w", path, err)
	}

	return Load(data)
}
