package devices

import "k8s.io/klog/v2"

// Observer receives every device of a freshly resolved plan, one call per
// device, in plan order. Observers are diagnostic only and never affect
// the plan.
type Observer func(rank, worldSize int, device DeviceID)

// LogObserver reports each resolved device to the log, one line per
// device, eg. "[rank 1 out of 4]: GPU[2]".
func LogObserver(rank, worldSize int, device DeviceID) {
	klog.Infof("[rank %d out of %d]: %s", rank, worldSize, device)
}
