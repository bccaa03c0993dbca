// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package pkgmgr shims the host's package manager behind a small
// interface. The concrete manager is selected once at daemon startup
// by probing for known executables; there is no plugin machinery.
package pkgmgr

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Manager is the capability set the daemon needs from a package
// manager. Implementations shell out to the native tool; calls block
// for as long as the tool runs and honor ctx cancellation through
// exec.CommandContext.
type Manager interface {
	// Name is the executable name, e.g. "apt" or "pacman".
	Name() string

	// IsInstalled reports whether pkg is currently installed.
	IsInstalled(ctx context.Context, pkg string) bool

	// Install installs pkg. The returned error includes the tool's
	// combined output on failure.
	Install(ctx context.Context, pkg string) error

	// Uninstall removes pkg.
	Uninstall(ctx context.Context, pkg string) error
}

// ErrNoManager is returned by Detect when no supported package
// manager executable is present on the host.
var ErrNoManager = errors.New("no supported package manager found")

// lookPath is swapped in tests to control which executables "exist".
var lookPath = exec.LookPath

// Detect probes for supported package managers in preference order
// and returns the first one present. noConfirm suppresses interactive
// prompts — an unattended daemon always wants this.
func Detect(noConfirm bool) (Manager, error) {
	candidates := []Manager{
		&Pacman{NoConfirm: noConfirm},
		&Apt{NoConfirm: noConfirm},
	}
	for _, candidate := range candidates {
		if _, err := lookPath(candidate.Name()); err == nil {
			return candidate, nil
		}
	}
	return nil, ErrNoManager
}

// run executes the tool and folds its combined output into the error
// on failure; package-manager diagnostics are on stderr/stdout, not
// in the exit status.
func run(ctx context.Context, name string, args ...string) error {
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w: %s", name, args, err, output)
	}
	return nil
}

// Apt manages packages on Debian-family hosts.
type Apt struct {
	NoConfirm bool
}

// Name implements Manager.
func (a *Apt) Name() string { return "apt" }

// IsInstalled implements Manager using dpkg's status query.
func (a *Apt) IsInstalled(ctx context.Context, pkg string) bool {
	return exec.CommandContext(ctx, "dpkg", "-s", pkg).Run() == nil
}

// Install implements Manager.
func (a *Apt) Install(ctx context.Context, pkg string) error {
	args := []string{"install", pkg}
	if a.NoConfirm {
		args = append(args, "-y")
	}
	return run(ctx, "apt", args...)
}

// Uninstall implements Manager.
func (a *Apt) Uninstall(ctx context.Context, pkg string) error {
	args := []string{"remove", pkg}
	if a.NoConfirm {
		args = append(args, "-y")
	}
	return run(ctx, "apt", args...)
}

// Pacman manages packages on Arch-family hosts.
type Pacman struct {
	NoConfirm bool
}

// Name implements Manager.
func (p *Pacman) Name() string { return "pacman" }

// IsInstalled implements Manager.
func (p *Pacman) IsInstalled(ctx context.Context, pkg string) bool {
	return exec.CommandContext(ctx, "pacman", "-Q", pkg).Run() == nil
}

// Install implements Manager.
func (p *Pacman) Install(ctx context.Context, pkg string) error {
	args := []string{"-Sy", pkg}
	if p.NoConfirm {
		args = append(args, "--noconfirm")
	}
	return run(ctx, "pacman", args...)
}

// Uninstall implements Manager.
func (p *Pacman) Uninstall(ctx context.Context, pkg string) error {
	args := []string{"-Rns", pkg}
	if p.NoConfirm {
		args = append(args, "--noconfirm")
	}
	return run(ctx, "pacman", args...)
}
