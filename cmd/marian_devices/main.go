// marian_devices prints the device plan a training process drives, given the
// job configuration and the process's position in the job.
package main

import (
	goflag "flag"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/batikim09/marian-dev/config"
	"github.com/batikim09/marian-dev/devices"
	"github.com/batikim09/marian-dev/launch"
	"github.com/batikim09/marian-dev/ui/cli"
)

func main() {
	klog.InitFlags(nil)
	settings := &config.Settings{}
	var (
		configFile string
		rank       int
		worldSize  int
	)

	cmd := &cobra.Command{
		Use:   "marian_devices",
		Short: "Print the device plan a training process drives",
		Long: `marian_devices reconciles the cpu-threads, num-devices and devices entries
of a training configuration with the process's position in the job, and
prints the device plan the process would drive.

The devices list is either one set shared by every process or one set of
num-devices entries per process, concatenated in rank order. Rank and world
size come from the launcher environment (Open MPI, PMI, Slurm, or plain
RANK/WORLD_SIZE), or from --rank and --world-size.`,
		Example: `  marian_devices --devices 0,1,2,3
  marian_devices --num-devices 4 --devices 0,1,2,3,4,5,6,7 --world-size 2 --rank 1
  mpirun -np 4 marian_devices --num-devices 1 --devices 0,2,4,5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, settings, configFile, rank, worldSize)
		},
	}
	settings.AddFlags(cmd.Flags())
	cmd.Flags().StringVarP(&configFile, "config", "c", "",
		"YAML file with the training settings, flags override its entries")
	cmd.Flags().IntVar(&rank, "rank", -1,
		"Rank of this process, overrides the launcher environment")
	cmd.Flags().IntVar(&worldSize, "world-size", 0,
		"Number of processes in the job, overrides the launcher environment")
	cmd.Flags().AddGoFlagSet(goflag.CommandLine)

	if err := cmd.Execute(); err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, settings *config.Settings, configFile string, rank, worldSize int) error {
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		merge(cmd, settings, loaded)
	}
	group, err := position(rank, worldSize)
	if err != nil {
		return err
	}
	settings.Log()

	var observers []devices.Observer
	if group.Distributed() {
		observers = append(observers, devices.LogObserver)
	}
	plan, err := devices.Resolve(settings.Input(group.Rank, group.WorldSize), observers...)
	if err != nil {
		return err
	}

	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("Device plan, %s", group)))
	table := cli.NewPlainTable(true).Headers("Ordinal", "Kind", "Index")
	for ordinal, device := range plan {
		table.Row(strconv.Itoa(ordinal), device.Kind.String(), strconv.Itoa(device.Index))
	}
	fmt.Println(table.Render())

	summary := cli.NewPlainTable(false)
	summary.Row("job", group.JobID)
	summary.Row("launcher", group.Launcher.String())
	summary.Row("devices", humanize.Comma(int64(len(plan))))
	summary.Row("seed", strconv.FormatUint(settings.EffectiveSeed(), 10))
	fmt.Println(summary.Render())
	return nil
}

// merge fills the settings entries whose flags were left unset from the
// loaded file: flags win over the file, the file wins over the defaults.
func merge(cmd *cobra.Command, settings, loaded *config.Settings) {
	flags := cmd.Flags()
	if !flags.Changed("cpu-threads") {
		settings.CPUThreads = loaded.CPUThreads
	}
	if !flags.Changed("num-devices") {
		settings.NumDevices = loaded.NumDevices
	}
	if !flags.Changed("devices") {
		settings.Devices = loaded.Devices
	}
	if !flags.Changed("seed") {
		settings.Seed = loaded.Seed
	}
}

// position returns where this process sits in the job: the --rank and
// --world-size flags when given, the launcher environment otherwise.
func position(rank, worldSize int) (launch.Group, error) {
	if rank < 0 && worldSize <= 0 {
		return launch.Detect()
	}
	group := launch.Group{WorldSize: 1, JobID: uuid.NewString(), Launcher: launch.None}
	if worldSize > 0 {
		group.WorldSize = worldSize
	}
	if rank > 0 {
		group.Rank = rank
	}
	if group.Rank >= group.WorldSize {
		return launch.Group{}, errors.Errorf("--rank %d needs a --world-size above it, got %d", group.Rank, group.WorldSize)
	}
	return group, nil
}
