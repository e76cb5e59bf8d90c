// Package protocol defines the msgpack wire format: API versions, the
// per-command request and reply shapes, and the decode table used by the
// RPC dispatcher.
package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var ErrUnsupportedAPIVersion = errors.New("unsupported api version")

type APIVersion struct {
	Major int
	Minor int
}

func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// SupportedAPIVersions lists the highest minor supported for each major.
var SupportedAPIVersions = []APIVersion{
	{Major: 2, Minor: 8},
	{Major: 3, Minor: 3},
	{Major: 4, Minor: 0},
}

// FirstSSEMajor is the first API major where events go through SSE
// instead of events_listen.
const FirstSSEMajor = 4

// SupportedAPIVersionsHeader renders the Supported-Api-Versions header.
func SupportedAPIVersionsHeader() string {
	parts := make([]string, 0, len(SupportedAPIVersions))
	for _, v := range SupportedAPIVersions {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, ";")
}

// ParseAPIVersion parses "<major>.<minor>".
func ParseAPIVersion(s string) (APIVersion, error) {
	majorStr, minorStr, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return APIVersion{}, fmt.Errorf("invalid api version %q", s)
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return APIVersion{}, fmt.Errorf("invalid api version %q", s)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil || minor < 0 {
		return APIVersion{}, fmt.Errorf("invalid api version %q", s)
	}
	return APIVersion{Major: major, Minor: minor}, nil
}

// Negotiate picks the highest version both sides speak. The client header
// may carry several versions separated by commas or semicolons. The
// negotiated minor is the lowest of the two minors for the chosen major.
func Negotiate(header string, supported []APIVersion) (APIVersion, error) {
	fields := strings.FieldsFunc(header, func(r rune) bool { return r == ',' || r == ';' })
	var clientVersions []APIVersion
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			continue
		}
		v, err := ParseAPIVersion(f)
		if err != nil {
			return APIVersion{}, fmt.Errorf("%w: %v", ErrUnsupportedAPIVersion, err)
		}
		clientVersions = append(clientVersions, v)
	}
	sort.Slice(clientVersions, func(i, j int) bool { return clientVersions[i].Major > clientVersions[j].Major })
	for _, c := range clientVersions {
		for _, s := range supported {
			if s.Major == c.Major {
				return APIVersion{Major: c.Major, Minor: min(c.Minor, s.Minor)}, nil
			}
		}
	}
	return APIVersion{}, ErrUnsupportedAPIVersion
}
