// Package devices resolves which compute devices a training process drives.
//
// A training job is configured with up to three redundant entries: a CPU
// thread count, a total device count and an explicit list of GPU indices.
// In a distributed job every process receives the same configuration and
// must carve out its own share of it using only its rank. Resolve
// reconciles these entries into one validated, ordered device plan per
// process.
//
// The device list is interpreted in one of two shapes: a single set shared
// by every process, or a flattened table holding one set of NumDevices
// indices per process, in rank order. Resolve picks the shape from the
// list length and slices accordingly.
package devices

import "fmt"

// Kind distinguishes the kinds of compute device a process can drive.
type Kind int

const (
	// CPU devices are host threads. The index is the thread ordinal.
	CPU Kind = iota

	// GPU devices are accelerator cards. The index is the card number as
	// presented by the driver.
	GPU
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// DeviceID identifies one compute device of a given kind.
//
// The position of a DeviceID within a resolved plan is the device's local
// ordinal. Everything downstream addresses devices by that ordinal; the
// Index only matters when binding to the actual hardware.
type DeviceID struct {
	// Index is the device number within its Kind.
	Index int

	// Kind tells whether Index refers to a CPU thread or a GPU card.
	Kind Kind
}

// String implements the fmt.Stringer interface, eg. "GPU[2]".
func (d DeviceID) String() string {
	return fmt.Sprintf("%s[%d]", d.Kind, d.Index)
}
