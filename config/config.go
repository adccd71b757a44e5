// Package config holds the textual training-job settings that drive device
// resolution.
//
// Settings is a narrow, typed view of a training configuration: just the
// entries the device resolver consumes plus the random seed. It can be
// filled from a YAML settings file, from command line flags, or both, with
// unrelated entries in the file left alone for the other stages of the
// training tool.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/batikim09/marian-dev/devices"
)

// DeviceList holds the raw textual device indices of the devices entry.
type DeviceList []string

// UnmarshalYAML implements the yaml.Unmarshaler interface. The devices
// entry accepts either a sequence of indices or one scalar holding
// whitespace separated indices, both forms appear in training configs.
func (l *DeviceList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		entries := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return errors.Errorf("devices entry at line %d is not a scalar", item.Line)
			}
			entries = append(entries, item.Value)
		}
		*l = entries
		return nil
	case yaml.ScalarNode:
		*l = strings.Fields(node.Value)
		return nil
	default:
		return errors.Errorf("devices at line %d must be a scalar or a sequence of device indices", node.Line)
	}
}

// Tokens returns the individual device index tokens, splitting any entry
// that holds several whitespace separated indices. Entries that hold no
// token at all are kept so the resolver can report them.
func (l DeviceList) Tokens() []string {
	if len(l) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(l))
	for _, entry := range l {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			tokens = append(tokens, entry)
			continue
		}
		tokens = append(tokens, fields...)
	}
	return tokens
}

// Settings are the device and randomness entries of a training
// configuration. The zero value carries the defaults: GPU computation, one
// device, a seed picked from the clock.
type Settings struct {
	// CPUThreads selects CPU computation with this many worker threads
	// when above zero.
	CPUThreads int `yaml:"cpu-threads"`

	// NumDevices is the number of GPUs each process drives, 0 derives it
	// from Devices.
	NumDevices int `yaml:"num-devices"`

	// Devices lists the GPU indices to use, empty defaults to
	// 0..NumDevices-1.
	Devices DeviceList `yaml:"devices"`

	// Seed for all random number generators, 0 picks one from the clock.
	Seed uint64 `yaml:"seed"`
}

// Parse reads Settings from YAML text. Entries other than the ones
// Settings names are ignored, a settings file usually configures the whole
// training run.
func Parse(text []byte) (*Settings, error) {
	settings := &Settings{}
	if err := yaml.Unmarshal(text, settings); err != nil {
		return nil, errors.Wrap(err, "parsing settings")
	}
	return settings, nil
}

// Load reads Settings from the YAML file at path.
func Load(path string) (*Settings, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading settings from %q", path)
	}
	settings, err := Parse(text)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing settings from %q", path)
	}
	return settings, nil
}

// AddFlags registers one flag per settings entry on fs, writing parsed
// values into s. Current field values become the flag defaults, so load a
// settings file first to let flags override it.
func (s *Settings) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&s.CPUThreads, "cpu-threads", s.CPUThreads,
		"Use CPU computation with this many worker threads, 0 selects GPU computation")
	fs.IntVar(&s.NumDevices, "num-devices", s.NumDevices,
		"Number of GPUs this process drives, defaults to the number of --devices or 1")
	fs.StringSliceVar((*[]string)(&s.Devices), "devices", s.Devices,
		"GPU indices to use, defaults to 0..num-devices-1")
	fs.Uint64Var(&s.Seed, "seed", s.Seed,
		"Seed for all random number generators, 0 picks a seed from the clock")
}

// Input assembles the resolver input for the process at the given position
// in the job.
func (s *Settings) Input(rank, worldSize int) devices.Input {
	return devices.Input{
		CPUThreads: s.CPUThreads,
		NumDevices: s.NumDevices,
		DeviceList: s.Devices.Tokens(),
		Rank:       rank,
		WorldSize:  worldSize,
	}
}

// EffectiveSeed returns the configured seed, or one picked from the clock
// when the seed entry was left at 0.
func (s *Settings) EffectiveSeed() uint64 {
	if s.Seed != 0 {
		return s.Seed
	}
	return uint64(time.Now().UnixNano())
}

// Log reports the settings to the log, one line per entry, each prefixed
// with [config].
func (s *Settings) Log() {
	text, err := yaml.Marshal(s)
	if err != nil {
		klog.Errorf("cannot render settings: %v", err)
		return
	}
	for _, line := range strings.Split(strings.TrimRight(string(text), "\n"), "\n") {
		klog.Infof("[config] %s", line)
	}
}
