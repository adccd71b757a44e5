package devices_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batikim09/marian-dev/devices"
)

func cpus(count int) []devices.DeviceID {
	plan := make([]devices.DeviceID, count)
	for i := range plan {
		plan[i] = devices.DeviceID{Index: i, Kind: devices.CPU}
	}
	return plan
}

func gpus(indices ...int) []devices.DeviceID {
	plan := make([]devices.DeviceID, len(indices))
	for i, index := range indices {
		plan[i] = devices.DeviceID{Index: index, Kind: devices.GPU}
	}
	return plan
}

func TestResolve(t *testing.T) {
	t.Run("CPUMode", func(t *testing.T) {
		tests := []struct {
			name string
			in   devices.Input
			want []devices.DeviceID
		}{
			{
				name: "single thread",
				in:   devices.Input{CPUThreads: 1, WorldSize: 1},
				want: cpus(1),
			},
			{
				name: "GPU settings ignored",
				in: devices.Input{
					CPUThreads: 3,
					NumDevices: 5,
					DeviceList: []string{"7", "oops"},
					Rank:       2,
					WorldSize:  4,
				},
				want: cpus(3),
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				plan, err := devices.Resolve(tt.in)
				require.NoError(t, err)
				assert.Equal(t, tt.want, plan)
			})
		}
	})

	t.Run("SingleProcess", func(t *testing.T) {
		tests := []struct {
			name string
			in   devices.Input
			want []devices.DeviceID
		}{
			{
				name: "nothing specified defaults to one GPU",
				in:   devices.Input{WorldSize: 1},
				want: gpus(0),
			},
			{
				name: "count only synthesizes indices",
				in:   devices.Input{NumDevices: 4, WorldSize: 1},
				want: gpus(0, 1, 2, 3),
			},
			{
				name: "list only derives the count",
				in:   devices.Input{DeviceList: []string{"2"}, WorldSize: 1},
				want: gpus(2),
			},
			{
				name: "matching list and count",
				in:   devices.Input{NumDevices: 3, DeviceList: []string{"4", "5", "6"}, WorldSize: 1},
				want: gpus(4, 5, 6),
			},
			{
				name: "list order kept as given",
				in:   devices.Input{DeviceList: []string{"3", "1", "2"}, WorldSize: 1},
				want: gpus(3, 1, 2),
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				plan, err := devices.Resolve(tt.in)
				require.NoError(t, err)
				assert.Equal(t, tt.want, plan)
			})
		}
	})

	t.Run("PerRankSlices", func(t *testing.T) {
		tests := []struct {
			name       string
			numDevices int
			deviceList []string
			worldSize  int
			wantByRank [][]devices.DeviceID
		}{
			{
				name:       "one device per process",
				numDevices: 1,
				deviceList: []string{"0", "2", "4", "5"},
				worldSize:  4,
				wantByRank: [][]devices.DeviceID{gpus(0), gpus(2), gpus(4), gpus(5)},
			},
			{
				name:       "four devices per process",
				numDevices: 4,
				deviceList: []string{"0", "1", "2", "3", "4", "5", "6", "7"},
				worldSize:  2,
				wantByRank: [][]devices.DeviceID{gpus(0, 1, 2, 3), gpus(4, 5, 6, 7)},
			},
			{
				name:       "synthesized set shared by every rank",
				numDevices: 4,
				deviceList: nil,
				worldSize:  2,
				wantByRank: [][]devices.DeviceID{gpus(0, 1, 2, 3), gpus(0, 1, 2, 3)},
			},
			{
				name:       "explicit set shared by every rank",
				numDevices: 0,
				deviceList: []string{"1", "3"},
				worldSize:  3,
				wantByRank: [][]devices.DeviceID{gpus(1, 3), gpus(1, 3), gpus(1, 3)},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				for rank := 0; rank < tt.worldSize; rank++ {
					plan, err := devices.Resolve(devices.Input{
						NumDevices: tt.numDevices,
						DeviceList: tt.deviceList,
						Rank:       rank,
						WorldSize:  tt.worldSize,
					})
					require.NoErrorf(t, err, "rank %d", rank)
					assert.Equalf(t, tt.wantByRank[rank], plan, "rank %d", rank)
				}
			})
		}
	})

	t.Run("TopologyErrors", func(t *testing.T) {
		tests := []struct {
			name    string
			in      devices.Input
			wantIs  error
			wantMsg string
		}{
			{
				name:    "single process list longer than count",
				in:      devices.Input{NumDevices: 2, DeviceList: []string{"0", "1", "2"}, WorldSize: 1},
				wantIs:  devices.ErrDeviceCountMismatch,
				wantMsg: "single-process run",
			},
			{
				name:    "single process count larger than list",
				in:      devices.Input{NumDevices: 4, DeviceList: []string{"0", "1"}, WorldSize: 1},
				wantIs:  devices.ErrDeviceCountMismatch,
				wantMsg: "has 2 entries but num-devices is 4",
			},
			{
				name:    "list not a multiple of the count",
				in:      devices.Input{NumDevices: 4, DeviceList: []string{"0", "1", "2", "3", "4", "5"}, WorldSize: 4},
				wantIs:  devices.ErrNotAMultiple,
				wantMsg: "not a multiple of num-devices 4",
			},
			{
				name:    "neither shared nor one set per process",
				in:      devices.Input{NumDevices: 2, DeviceList: []string{"0", "1", "2", "3"}, WorldSize: 3},
				wantIs:  devices.ErrTopologyShapeMismatch,
				wantMsg: "one shared set or one set per process",
			},
			{
				name:    "malformed token",
				in:      devices.Input{DeviceList: []string{"0", "x"}, WorldSize: 1},
				wantIs:  devices.ErrMalformedDeviceIndex,
				wantMsg: `entry "x" at position 1`,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				plan, err := devices.Resolve(tt.in)
				require.Error(t, err)
				assert.Nil(t, plan)
				assert.ErrorIs(t, err, tt.wantIs)
				assert.Contains(t, err.Error(), tt.wantMsg)
			})
		}
	})

	t.Run("InvalidArguments", func(t *testing.T) {
		tests := []struct {
			name    string
			in      devices.Input
			wantMsg string
		}{
			{
				name:    "negative num-devices",
				in:      devices.Input{NumDevices: -1, WorldSize: 1},
				wantMsg: "num-devices must be non-negative",
			},
			{
				name:    "zero world size",
				in:      devices.Input{WorldSize: 0},
				wantMsg: "world size must be positive",
			},
			{
				name: "rank beyond world size",
				in: devices.Input{
					NumDevices: 4,
					DeviceList: []string{"0", "1", "2", "3", "4", "5", "6", "7"},
					Rank:       5,
					WorldSize:  2,
				},
				wantMsg: "rank must be in [0, 2)",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				plan, err := devices.Resolve(tt.in)
				require.Error(t, err)
				assert.Nil(t, plan)
				assert.Contains(t, err.Error(), tt.wantMsg)
			})
		}
	})

	t.Run("Observer", func(t *testing.T) {
		type call struct {
			rank, worldSize int
			device          devices.DeviceID
		}
		var calls []call
		observer := func(rank, worldSize int, device devices.DeviceID) {
			calls = append(calls, call{rank, worldSize, device})
		}

		in := devices.Input{
			NumDevices: 4,
			DeviceList: []string{"0", "1", "2", "3", "4", "5", "6", "7"},
			Rank:       1,
			WorldSize:  2,
		}
		plan, err := devices.Resolve(in, nil, observer)
		require.NoError(t, err)
		require.Len(t, calls, len(plan))
		for i, c := range calls {
			assert.Equal(t, call{rank: 1, worldSize: 2, device: plan[i]}, c)
		}

		// A failed resolution never reaches the observers.
		calls = nil
		_, err = devices.Resolve(devices.Input{DeviceList: []string{"oops"}, WorldSize: 1}, observer)
		require.Error(t, err)
		assert.Empty(t, calls)
	})

	t.Run("PureAndRepeatable", func(t *testing.T) {
		list := []string{"3", "1", "2"}
		in := devices.Input{DeviceList: list, WorldSize: 1}

		first, err := devices.Resolve(in)
		require.NoError(t, err)
		second, err := devices.Resolve(in)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, []string{"3", "1", "2"}, list)

		// Mutating a returned plan must not leak into later resolutions.
		first[0] = devices.DeviceID{Index: 99, Kind: devices.CPU}
		third, err := devices.Resolve(in)
		require.NoError(t, err)
		assert.Equal(t, second, third)
	})
}
