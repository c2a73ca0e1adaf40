package state

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// StaticRoute is an entry of a fixed routing table
type StaticRoute struct {
	Dest   RouterId
	Nh     RouterId
	Metric uint16
}

/*
ParseStaticRoutes reads a fixed routing table, one route per line:

	# dest next-hop metric
	3 2 2
	2 2 1

Blank lines and lines starting with # are ignored.
*/
func ParseStaticRoutes(r io.Reader) ([]StaticRoute, error) {
	var routes []StaticRoute
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected <dest> <next hop> <metric>, got %q", lineNo, line)
		}
		var vals [3]uint16
		for i, f := range fields {
			v, err := strconv.ParseUint(f, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid number %q", lineNo, f)
			}
			vals[i] = uint16(v)
		}
		routes = append(routes, StaticRoute{
			Dest:   RouterId(vals[0]),
			Nh:     RouterId(vals[1]),
			Metric: vals[2],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return routes, nil
}

func ReadStaticRoutes(path string) ([]StaticRoute, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseStaticRoutes(f)
}
