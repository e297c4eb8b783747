package capture

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DeviceInfo names one camera.
type DeviceInfo struct {
	Name  string
	Path  string
	Index int
}

// ListDevices returns the V4L2 cameras on this machine. A camera that exposes
// several nodes (video + metadata) is listed once, under its lowest index.
func ListDevices() ([]DeviceInfo, error) {
	return listDevices("/sys/class/video4linux", "/dev")
}

func listDevices(sysRoot, devRoot string) ([]DeviceInfo, error) {
	nodes, err := filepath.Glob(filepath.Join(sysRoot, "video*"))
	if err != nil {
		return nil, err
	}

	byName := make(map[string]DeviceInfo)
	for _, node := range nodes {
		base := filepath.Base(node)
		idx, err := strconv.Atoi(strings.TrimPrefix(base, "video"))
		if err != nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(node, "name"))
		if err != nil {
			continue
		}
		name := strings.TrimSpace(string(raw))
		if prev, ok := byName[name]; ok && prev.Index < idx {
			continue
		}
		byName[name] = DeviceInfo{Name: name, Path: filepath.Join(devRoot, base), Index: idx}
	}

	out := make([]DeviceInfo, 0, len(byName))
	for _, d := range byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
