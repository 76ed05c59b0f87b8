//go:build mage

// Mage targets for building libcuba from a checkout that contains the Cuba
// sources and the patches/ directory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"

	libbuild "github.com/contriboss/libcuba-build"
)

// Default target to run when none is specified.
var Default = Build

func config() (*libbuild.Config, error) {
	cfg := libbuild.DefaultConfig()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func logger() *slog.Logger {
	level := slog.LevelInfo
	if mg.Verbose() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Build runs the patch, build, link and relocate pipeline.
func Build(ctx context.Context) error {
	cfg, err := config()
	if err != nil {
		return err
	}

	pipeline, err := libbuild.NewPipeline(cfg, libbuild.WithLogger(logger()))
	if err != nil {
		return mg.Fatal(1, err)
	}

	_, err = pipeline.Run(ctx)
	return err
}

// Verify checks that the built library exports the integration routines.
func Verify() error {
	cfg, err := config()
	if err != nil {
		return err
	}

	loc, err := libbuild.Locate(cfg)
	if err != nil {
		return err
	}
	if err := libbuild.VerifyLibrary(loc.Path, cfg.RequiredSymbols); err != nil {
		return err
	}

	fmt.Println(loc.Path)
	return nil
}

// Release builds and then verifies the library.
func Release(ctx context.Context) {
	mg.SerialCtxDeps(ctx, Build, Verify)
}

// Clean removes the dist directory.
func Clean() error {
	cfg, err := config()
	if err != nil {
		return err
	}
	return sh.Rm(cfg.DistPath())
}

// Test runs the Go tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}
