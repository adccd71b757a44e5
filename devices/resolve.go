package devices

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/batikim09/marian-dev/internal/xslices"
)

// Input collects the settings that determine which compute devices this
// process drives. It is assembled once at startup, from the parsed command
// line or settings file plus the process's position in the job, and stays
// constant afterwards.
//
// In a multi-process job every process must be given the same values except
// for Rank. Resolve cannot verify this; the job launcher is responsible for
// starting the group consistently.
type Input struct {
	// CPUThreads is the number of host threads to compute on. Any value
	// above zero selects CPU mode and the remaining fields are ignored.
	CPUThreads int

	// NumDevices is the number of devices each process drives. Zero means
	// unspecified, in which case it is derived from DeviceList.
	NumDevices int

	// DeviceList holds the textual GPU indices, one token per device, in
	// the order the devices should be used. Empty means unspecified.
	DeviceList []string

	// Rank is this process's position in the job, counted from zero.
	Rank int

	// WorldSize is the total number of cooperating processes, at least 1.
	WorldSize int
}

// Resolve computes the ordered list of devices this process drives.
//
// With Input.CPUThreads > 0 the plan is the CPU threads 0 to CPUThreads-1
// and the remaining fields are ignored. Otherwise the plan is built from
// Input.DeviceList and Input.NumDevices:
//
//   - Both unspecified: one GPU, index 0.
//   - Only NumDevices given: GPUs 0 to NumDevices-1, shared by all ranks.
//   - Only DeviceList given: NumDevices defaults to its length.
//   - List length == NumDevices: one set shared by every rank.
//   - List length == NumDevices*WorldSize: one set per rank, this process
//     takes the segment starting at Rank*NumDevices.
//
// Any other combination fails with an error wrapping ErrDeviceCountMismatch,
// ErrNotAMultiple or ErrTopologyShapeMismatch; a token that does not parse
// as a non-negative integer fails with ErrMalformedDeviceIndex.
//
// Resolve is pure: it does not inspect the machine, reserve hardware or
// keep state, so calling it repeatedly, or from multiple goroutines, is
// safe and always yields the same plan for the same Input. Each observer,
// if any, is invoked once per resolved device after the whole plan has
// been validated.
func Resolve(in Input, observers ...Observer) ([]DeviceID, error) {
	plan, err := resolve(in)
	if err != nil {
		return nil, err
	}
	for _, observer := range observers {
		if observer == nil {
			continue
		}
		for _, device := range plan {
			observer(in.Rank, in.WorldSize, device)
		}
	}
	return plan, nil
}

func resolve(in Input) ([]DeviceID, error) {
	// CPU mode enumerates host threads and ignores the GPU topology.
	if in.CPUThreads > 0 {
		plan := make([]DeviceID, in.CPUThreads)
		for i := range plan {
			plan[i] = DeviceID{Index: i, Kind: CPU}
		}
		return plan, nil
	}

	indices, err := ParseDeviceList(in.DeviceList)
	if err != nil {
		return nil, err
	}
	numDevices := in.NumDevices
	if numDevices < 0 {
		return nil, errors.Errorf("num-devices must be non-negative, got %d", numDevices)
	}
	if in.WorldSize < 1 {
		return nil, errors.Errorf("world size must be positive, got %d", in.WorldSize)
	}

	// Fill in whichever of the list and the count was left unspecified.
	if len(indices) == 0 {
		if numDevices == 0 {
			numDevices = 1
		}
		indices = xslices.Iota(0, numDevices)
	} else if numDevices == 0 {
		numDevices = len(indices)
	}

	if in.WorldSize == 1 {
		// Single process: the list is this process's whole plan, its
		// length must match the count exactly.
		if numDevices != len(indices) {
			return nil, errors.Wrapf(ErrDeviceCountMismatch,
				"single-process run: the device list has %d entries but num-devices is %d, they must be equal",
				len(indices), numDevices)
		}
	} else {
		perProcess := len(indices) / numDevices
		if perProcess*numDevices != len(indices) {
			return nil, errors.Wrapf(ErrNotAMultiple,
				"the device list has %d entries, which is not a multiple of num-devices %d",
				len(indices), numDevices)
		}
		if perProcess != 1 {
			// The list concatenates one device set per process, in rank
			// order. Carve out the segment owned by this rank.
			if perProcess != in.WorldSize {
				return nil, errors.Wrapf(ErrTopologyShapeMismatch,
					"the device list splits into %d sets of %d devices, want one shared set or one set per process (world size %d)",
					perProcess, numDevices, in.WorldSize)
			}
			if in.Rank < 0 || in.Rank >= in.WorldSize {
				return nil, errors.Errorf("rank must be in [0, %d), got %d", in.WorldSize, in.Rank)
			}
			start := in.Rank * numDevices
			indices = indices[start : start+numDevices]
		}
	}

	return xslices.Map(indices, func(index int) DeviceID {
		return DeviceID{Index: index, Kind: GPU}
	}), nil
}

// ParseDeviceList converts textual device index tokens into integers,
// preserving order. Duplicates are kept as given. It fails with an error
// wrapping ErrMalformedDeviceIndex on the first token that is not a
// non-negative integer.
func ParseDeviceList(tokens []string) ([]int, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	indices := make([]int, 0, len(tokens))
	for i, token := range tokens {
		index, err := strconv.Atoi(token)
		if err != nil || index < 0 {
			return nil, errors.Wrapf(ErrMalformedDeviceIndex,
				"device list entry %q at position %d is not a non-negative integer", token, i)
		}
		indices = append(indices, index)
	}
	return indices, nil
}
