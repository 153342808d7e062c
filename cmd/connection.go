// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Campbell Fabrications

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/CampbellFabrications/klipper-cfs/pkg/cfs"
	"golang.org/x/term"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("CFS_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// OpenTransport opens either a serial or WebSocket transport based on flags
func OpenTransport() (cfs.Transport, string, error) {
	if wsURL != "" {
		// WebSocket mode
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		tr, err := cfs.OpenWebSocket(cfs.WebSocketConfig{
			URL:           wsURL,
			Username:      wsUsername,
			Password:      password,
			SkipSSLVerify: wsNoSSLVerify,
		})
		if err != nil {
			return nil, "", err
		}

		return tr, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		// Serial mode
		tr, err := cfs.OpenSerial(portName, baudRate)
		if err != nil {
			return nil, "", err
		}

		return tr, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// dispatcherPolicy builds the retry policy from the global flags.
func dispatcherPolicy() cfs.Policy {
	policy := cfs.DefaultPolicy()
	if responseTimeoutMs > 0 {
		policy.ResponseTimeout = time.Duration(responseTimeoutMs) * time.Millisecond
	}
	if retryAttempts > 0 {
		policy.Attempts = retryAttempts
	}
	return policy
}

// OpenDispatcher opens the configured transport and wraps it in a
// dispatcher. The caller owns Close.
func OpenDispatcher() (*cfs.Dispatcher, string, error) {
	tr, connInfo, err := OpenTransport()
	if err != nil {
		return nil, "", err
	}
	return cfs.NewDispatcher(tr, dispatcherPolicy()), connInfo, nil
}
