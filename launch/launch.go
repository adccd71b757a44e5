// Package launch discovers the process's position within a distributed
// training job from the environment set by the job launcher.
//
// The resolver itself takes rank and world size as plain values; this
// package supplies them when the process was started by mpirun, srun or a
// torchrun-style launcher, and falls back to a single-process group when it
// was started by hand.
package launch

import (
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Launcher identifies which job launcher started this process.
type Launcher int

const (
	// None means no launcher environment was found, the process runs alone.
	None Launcher = iota

	// OpenMPI is mpirun/mpiexec from Open MPI.
	OpenMPI

	// PMI covers MPICH and other PMI based launchers.
	PMI

	// Slurm is srun.
	Slurm

	// Generic covers torchrun and other launchers that export plain
	// RANK/WORLD_SIZE variables.
	Generic
)

// String implements the fmt.Stringer interface.
func (l Launcher) String() string {
	switch l {
	case None:
		return "none"
	case OpenMPI:
		return "OpenMPI"
	case PMI:
		return "PMI"
	case Slurm:
		return "Slurm"
	case Generic:
		return "generic"
	default:
		return fmt.Sprintf("Launcher(%d)", int(l))
	}
}

// Group describes this process's position in a distributed training job.
type Group struct {
	// Rank of this process, 0 <= Rank < WorldSize.
	Rank int

	// WorldSize is the total number of processes in the job, at least 1.
	WorldSize int

	// JobID identifies the job. It is shared by all the job's processes
	// when the launcher provides one, otherwise each process generates a
	// fresh UUID.
	JobID string

	// Launcher that provided the values above.
	Launcher Launcher
}

// Distributed reports whether the job spans more than one process.
func (g Group) Distributed() bool {
	return g.WorldSize > 1
}

// String implements the fmt.Stringer interface, eg. "rank 1 out of 4 (OpenMPI)".
func (g Group) String() string {
	return fmt.Sprintf("rank %d out of %d (%s)", g.Rank, g.WorldSize, g.Launcher)
}

// scheme names the environment variables one launcher family exports.
type scheme struct {
	launcher Launcher
	rankVar  string
	sizeVar  string
	jobVar   string // optional, empty when the launcher has no job id
}

// Checked in order, the first scheme whose rank variable is set wins.
var schemes = []scheme{
	{OpenMPI, "OMPI_COMM_WORLD_RANK", "OMPI_COMM_WORLD_SIZE", ""},
	{PMI, "PMI_RANK", "PMI_SIZE", ""},
	{Slurm, "SLURM_PROCID", "SLURM_NTASKS", "SLURM_JOB_ID"},
	{Generic, "RANK", "WORLD_SIZE", "TORCHELASTIC_RUN_ID"},
}

// Detect reads the job launcher's environment and returns this process's
// position in the job. Without any launcher environment it returns a
// single-process Group. It fails if a launcher exports inconsistent or
// unparseable values.
func Detect() (Group, error) {
	return detect(os.LookupEnv)
}

func detect(lookup func(string) (string, bool)) (Group, error) {
	for _, s := range schemes {
		rankValue, ok := lookup(s.rankVar)
		if !ok {
			continue
		}
		sizeValue, ok := lookup(s.sizeVar)
		if !ok {
			return Group{}, errors.Errorf("launcher %s sets %s but not %s", s.launcher, s.rankVar, s.sizeVar)
		}
		rank, err := strconv.Atoi(rankValue)
		if err != nil {
			return Group{}, errors.Wrapf(err, "parsing %s=%q", s.rankVar, rankValue)
		}
		worldSize, err := strconv.Atoi(sizeValue)
		if err != nil {
			return Group{}, errors.Wrapf(err, "parsing %s=%q", s.sizeVar, sizeValue)
		}
		if worldSize < 1 {
			return Group{}, errors.Errorf("%s=%d, world size must be positive", s.sizeVar, worldSize)
		}
		if rank < 0 || rank >= worldSize {
			return Group{}, errors.Errorf("%s=%d out of range for %s=%d", s.rankVar, rank, s.sizeVar, worldSize)
		}
		group := Group{Rank: rank, WorldSize: worldSize, Launcher: s.launcher}
		if s.jobVar != "" {
			group.JobID, _ = lookup(s.jobVar)
		}
		if group.JobID == "" {
			group.JobID = uuid.NewString()
		}
		klog.V(1).Infof("detected %s launcher: rank %d out of %d", group.Launcher, group.Rank, group.WorldSize)
		return group, nil
	}
	return Group{Rank: 0, WorldSize: 1, JobID: uuid.NewString(), Launcher: None}, nil
}
