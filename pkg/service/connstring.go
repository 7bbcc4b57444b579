package service

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Sentinel errors for connection string parsing.
var (
	// ErrMissingEndpoint is returned when the connection string has no
	// Endpoint segment.
	ErrMissingEndpoint = errors.New("service: connection string missing Endpoint")

	// ErrMissingAccessKey is returned when the connection string has no
	// AccessKey segment.
	ErrMissingAccessKey = errors.New("service: connection string missing AccessKey")
)

// ConnectionInfo is the parsed form of a relay connection string.
type ConnectionInfo struct {
	// Endpoint is the relay base URL, scheme included.
	Endpoint string

	// AccessKey signs client access tokens and REST bearer tokens.
	AccessKey string

	// Port overrides the endpoint port when non-zero.
	Port int
}

// ParseConnectionString parses a semicolon-delimited connection string of
// the form "Endpoint=https://host;AccessKey=secret;Port=8080;". Segment
// keys are case-insensitive; unknown segments are ignored.
func ParseConnectionString(s string) (*ConnectionInfo, error) {
	info := &ConnectionInfo{}

	for _, segment := range strings.Split(s, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			return nil, fmt.Errorf("service: malformed connection string segment %q", segment)
		}
		switch strings.ToLower(key) {
		case "endpoint":
			info.Endpoint = value
		case "accesskey":
			info.AccessKey = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("service: invalid port %q: %w", value, err)
			}
			info.Port = port
		}
	}

	if info.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	if info.AccessKey == "" {
		return nil, ErrMissingAccessKey
	}

	u, err := url.Parse(info.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("service: invalid endpoint %q: %w", info.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("service: endpoint scheme must be http or https, got %q", u.Scheme)
	}
	if info.Port != 0 {
		u.Host = u.Hostname() + ":" + strconv.Itoa(info.Port)
		info.Endpoint = u.String()
	}
	info.Endpoint = strings.TrimRight(info.Endpoint, "/")

	return info, nil
}
