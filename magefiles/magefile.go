//go:build mage

// Package main provides build targets for bitey using Mage.
//
// Usage:
//
//	mage build    Compile the bitey binary to bin/
//	mage test     Run all tests
//	mage vet      Run go vet
//	mage install  Install bitey to GOPATH/bin
//	mage clean    Remove build artifacts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName = "bitey"
	binaryDir  = "bin"
	cmdDir     = "./cmd/bitey"
)

// Build compiles the bitey binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test runs all tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Install installs bitey to GOPATH/bin.
func Install() error {
	mg.Deps(Vet)
	return sh.RunV("go", "install", cmdDir)
}

// Clean removes build artifacts.
func Clean() error {
	return os.RemoveAll(binaryDir)
}
