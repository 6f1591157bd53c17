// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"fmt"
	"strings"
)

// SplitAddress returns the network ("unix" or "tcp") and the
// network-specific address of a feedin address.
func SplitAddress(address string) (network, target string, err error) {
	switch {
	case address == "":
		return "", "", fmt.Errorf("empty address")
	case strings.HasPrefix(address, "unix:"):
		return "unix", strings.TrimPrefix(address, "unix:"), nil
	case strings.HasPrefix(address, "tcp:"):
		return "tcp", strings.TrimPrefix(address, "tcp:"), nil
	case strings.Contains(address, "/"):
		return "unix", address, nil
	default:
		return "tcp", address, nil
	}
}

// JoinAddress is the inverse of SplitAddress.
func JoinAddress(network, target string) string {
	return network + ":" + target
}
