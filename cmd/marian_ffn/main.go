// marian_ffn builds the feed-forward classifier on every device of the
// resolved plan and prints a per-graph summary.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/batikim09/marian-dev/config"
	"github.com/batikim09/marian-dev/devices"
	"github.com/batikim09/marian-dev/graph"
	"github.com/batikim09/marian-dev/launch"
	"github.com/batikim09/marian-dev/models"
	"github.com/batikim09/marian-dev/ui/cli"
)

var (
	flagConfig = flag.String("config", "", "YAML file with the training settings.")
	flagDims   = flag.String("dims", "784,2048,2048,10",
		"Comma-separated layer widths, input features first, classes last.")

	flagCPUThreads = flag.Int("cpu_threads", 0,
		"Use CPU computation with this many worker threads, 0 selects GPU computation.")
	flagNumDevices = flag.Int("num_devices", 0, "Number of GPUs this process drives, 0 derives it from --devices.")
	flagDevices    = flag.String("devices", "", "Space-separated GPU indices, eg. \"0 2 4 5\".")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if flag.NArg() > 0 {
		klog.Errorf("Unexpected arguments %v. See 'marian_ffn -help'.", flag.Args())
		os.Exit(1)
	}

	settings := &config.Settings{}
	if *flagConfig != "" {
		settings = must.M1(config.Load(*flagConfig))
	}
	if *flagCPUThreads > 0 {
		settings.CPUThreads = *flagCPUThreads
	}
	if *flagNumDevices > 0 {
		settings.NumDevices = *flagNumDevices
	}
	if *flagDevices != "" {
		settings.Devices = config.DeviceList{*flagDevices}
	}

	group := must.M1(launch.Detect())
	var observers []devices.Observer
	if group.Distributed() {
		observers = append(observers, devices.LogObserver)
	}
	plan := must.M1(devices.Resolve(settings.Input(group.Rank, group.WorldSize), observers...))

	dims := parseDims(*flagDims)
	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("Feed-forward classifier, %s", group)))
	table := cli.NewPlainTable(true).Headers("Graph", "Device", "Nodes", "Parameters", "Cost")
	for _, g := range graph.NewPerDevice("ffn", plan) {
		cost := must.M1(models.FeedforwardClassifier(g, dims...))
		table.Row(g.Name(), g.Device().String(),
			humanize.Comma(int64(g.NumNodes())),
			humanize.Comma(int64(g.ParameterCount())),
			cost.String())
	}
	fmt.Println(table.Render())
}

// parseDims converts "784,2048,2048,10" to layer widths.
func parseDims(text string) []int {
	parts := strings.Split(text, ",")
	dims := make([]int, 0, len(parts))
	for _, part := range parts {
		dims = append(dims, must.M1(strconv.Atoi(strings.TrimSpace(part))))
	}
	return dims
}
