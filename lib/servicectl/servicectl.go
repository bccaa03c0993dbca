// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package servicectl shims the host's service lifecycle (start and
// stop of the managed node process) behind a small interface. The
// production implementation drives systemd; a wrapper command can
// replace the unit start for deployments that launch the node through
// a site-specific script.
package servicectl

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Lifecycle is the capability set the daemon needs from the service
// layer. Both methods report whether the operation amounted to a
// restart of an already-running service, which the RPC surface
// distinguishes from a cold start.
type Lifecycle interface {
	// Start brings the service up. If wrapper is non-empty it is run
	// (split on whitespace) instead of the configured unit start.
	Start(ctx context.Context, wrapper string) (restarted bool, err error)

	// Stop brings the named service down; an empty name means the
	// configured unit.
	Stop(ctx context.Context, service string) (restarted bool, err error)
}

// Systemd drives a systemd unit with systemctl.
type Systemd struct {
	// Unit is the default unit, e.g. "warden-node.service".
	Unit string
}

var _ Lifecycle = (*Systemd)(nil)

// Start implements Lifecycle. A wrapper command, when given, is
// responsible for the whole launch; otherwise an already-active unit
// is restarted and an inactive one started.
func (s *Systemd) Start(ctx context.Context, wrapper string) (bool, error) {
	if fields := strings.Fields(wrapper); len(fields) > 0 {
		output, err := exec.CommandContext(ctx, fields[0], fields[1:]...).CombinedOutput()
		if err != nil {
			return false, fmt.Errorf("wrapper %q: %w: %s", wrapper, err, output)
		}
		return false, nil
	}

	active := s.isActive(ctx, s.Unit)
	verb := "start"
	if active {
		verb = "restart"
	}
	if err := s.systemctl(ctx, verb, s.Unit); err != nil {
		return false, err
	}
	return active, nil
}

// Stop implements Lifecycle.
func (s *Systemd) Stop(ctx context.Context, service string) (bool, error) {
	if service == "" {
		service = s.Unit
	}
	if !s.isActive(ctx, service) {
		// Stopping a stopped service is a no-op, not an error.
		return false, nil
	}
	return false, s.systemctl(ctx, "stop", service)
}

func (s *Systemd) isActive(ctx context.Context, unit string) bool {
	return exec.CommandContext(ctx, "systemctl", "is-active", "--quiet", unit).Run() == nil
}

func (s *Systemd) systemctl(ctx context.Context, verb, unit string) error {
	output, err := exec.CommandContext(ctx, "systemctl", verb, unit).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s %s: %w: %s", verb, unit, err, output)
	}
	return nil
}
