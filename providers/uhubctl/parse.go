package uhubctl

import (
	"regexp"
	"strconv"
	"strings"
)

// HubPort addresses one switchable port on a hub.
type HubPort struct {
	Hub  string
	Port int
}

var (
	hubHeaderRe = regexp.MustCompile(`hub (\S+)`)
	portLineRe  = regexp.MustCompile(`Port (\d+):`)
)

// The uhubctl output is a sequence of hub sections:
//
//	Current status for hub 1-1 [0bda:5411 Generic USB2.1 Hub, USB 2.10, 4 ports, ppps]
//	  Port 1: 0100 off
//	  Port 2: 0103 power enable connect [04b4:f155 Cypress Semiconductor KitProg3 CMSIS-DAP 1106035A012D2400]
//
// All queries run a single forward pass over the trimmed non-empty lines,
// carrying the most recently seen hub as state. A hub section persists until
// the next "Current status for hub" header.

// lineUpdateHub returns the new current hub if line is a hub header,
// otherwise the hub passed in.
func lineUpdateHub(line, currentHub string) string {
	if strings.HasPrefix(line, "Current status for hub") {
		if m := hubHeaderRe.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return currentHub
}

// linePort extracts the port number from a "Port N:" line, or 0 if the line
// is not a port line.
func linePort(line string) int {
	if strings.HasPrefix(line, "Port") {
		if m := portLineRe.FindStringSubmatch(line); m != nil {
			if port, err := strconv.Atoi(m[1]); err == nil {
				return port
			}
		}
	}
	return 0
}

func outputLines(output string) []string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	trimmed := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			trimmed = append(trimmed, line)
		}
	}
	return trimmed
}

// searchPortStatus classifies the power state of the given hub port from the
// captured output. The status tokens follow the port number and hex code;
// the substrings are matched exactly as uhubctl prints them.
func searchPortStatus(output, hub string, port int) Status {
	currentHub := ""
	for _, line := range outputLines(output) {
		currentHub = lineUpdateHub(line, currentHub)
		if currentHub != hub || linePort(line) != port {
			continue
		}
		switch {
		case strings.Contains(line, " off"):
			return StatusOff
		case strings.Contains(line, " power") && strings.Contains(line, "enable connect"):
			return StatusOnConnected
		case strings.Contains(line, " power"):
			return StatusOn
		default:
			return StatusUnknown
		}
	}
	return StatusUnknown
}

// searchHubPortByDesc returns the first port whose line contains descMatch,
// together with the hub of the section the line sits in.
func searchHubPortByDesc(output, descMatch string) (HubPort, bool) {
	currentHub := ""
	for _, line := range outputLines(output) {
		currentHub = lineUpdateHub(line, currentHub)
		port := linePort(line)
		if currentHub != "" && port != 0 && strings.Contains(line, descMatch) {
			return HubPort{Hub: currentHub, Port: port}, true
		}
	}
	return HubPort{}, false
}

// scanHubPorts lists every port of every hub section, in document order.
func scanHubPorts(output string) []HubPort {
	var found []HubPort
	currentHub := ""
	for _, line := range outputLines(output) {
		currentHub = lineUpdateHub(line, currentHub)
		if port := linePort(line); currentHub != "" && port != 0 {
			found = append(found, HubPort{Hub: currentHub, Port: port})
		}
	}
	return found
}
