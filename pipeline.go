package libbuild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Pipeline builds the shared library from the Cuba source tree.
//
// Platform and toolchain are resolved by NewPipeline, so an unsupported
// platform is rejected before Run touches anything on disk.
//
// A Pipeline must not run concurrently against the same source tree; Run
// enforces this with a lock file.
type Pipeline struct {
	cfg      *Config
	platform Platform
	tools    Toolchain
	runner   Runner
	logger   *slog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithRunner replaces the os/exec runner, typically with a fake in tests.
func WithRunner(r Runner) Option {
	return func(p *Pipeline) { p.runner = r }
}

// WithLogger sets the logger for stage banners and diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline validates cfg and resolves the platform and toolchain.
func NewPipeline(cfg *Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	platform, err := ResolvePlatform(cfg.GOOS)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:      cfg,
		platform: platform,
		tools:    ResolveToolchain(cfg, platform),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.runner == nil {
		p.runner = &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr, Logger: p.logger}
	}

	return p, nil
}

// Platform returns the resolved platform.
func (p *Pipeline) Platform() Platform { return p.platform }

// Toolchain returns the resolved programs and flags.
func (p *Pipeline) Toolchain() Toolchain { return p.tools }

// Stages returns the stage names Run will execute, in order.
func (p *Pipeline) Stages() []StageName {
	stages := (&run{cfg: p.cfg}).stages()
	names := make([]StageName, len(stages))
	for i, s := range stages {
		names[i] = s.name
	}
	return names
}

// run carries the state shared by the stages of one Run.
type run struct {
	cfg      *Config
	platform Platform
	tools    Toolchain
	runner   Runner
	logger   *slog.Logger
	result   *Result

	patches  *PatchSet
	applied  int // patches currently applied, reverted last-first
	snapshot *Snapshot
	baseline map[string]struct{}
	objects  []string
}

// Run executes the pipeline.
//
// On success every stage has completed: the library and archive are in the
// dist directory, patches are reverted and transients removed. On failure
// the returned error is a *StageError; if patching had begun the source tree
// has been rolled back to its snapshot before Run returns.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	cfg := p.cfg
	result := &Result{
		RunID:    uuid.NewString(),
		Platform: p.platform.GOOS,
		Library:  p.platform.LibraryFile(cfg.LibName),
	}
	logger := p.logger.With("run_id", result.RunID)

	logger.Info("starting build",
		"source_dir", cfg.SourceDir,
		"platform", p.platform.GOOS,
		"library", result.Library,
		"cc", p.tools.CC,
		"cflags", p.tools.CFlags,
		"cflags_overridden", p.tools.FlagsOverridden)

	patches, err := DiscoverPatches(cfg.PatchPath(), cfg.PatchStrip)
	if err != nil {
		return failed(result, &StageError{Stage: StagePatch, Err: err})
	}

	release, err := acquireLock(cfg.SourceDir)
	if err != nil {
		return failed(result, &StageError{Stage: StagePatch, Err: err})
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warn("lock not released", "error", err)
		}
	}()

	snapshot, err := TakeSnapshot(cfg.SourceDir, patches.Files())
	if err != nil {
		return failed(result, &StageError{Stage: StagePatch, Err: err})
	}
	baseline, err := baselineFiles(cfg)
	if err != nil {
		return failed(result, &StageError{Stage: StagePatch, Err: err})
	}

	r := &run{
		cfg:      cfg,
		platform: p.platform,
		tools:    p.tools,
		runner:   p.runner,
		logger:   logger,
		result:   result,
		patches:  patches,
		snapshot: snapshot,
		baseline: baseline,
	}

	if err := runStages(ctx, logger, result, r.stages()); err != nil {
		var stageErr *StageError
		if !errors.As(err, &stageErr) {
			stageErr = &StageError{Stage: StagePatch, Err: err}
		}
		stageErr.Rollback = r.rollback(context.WithoutCancel(ctx))
		return failed(result, stageErr)
	}

	result.Success = true
	logger.Info("build finished",
		"library", filepath.Join(cfg.DistPath(), result.Library),
		"artifacts", len(result.Artifacts))
	return result, nil
}

func failed(result *Result, err *StageError) (*Result, error) {
	result.Error = err
	return result, err
}

func (r *run) stages() []stage {
	stages := []stage{
		{StagePatch, r.applyPatches},
		{StageConfigure, r.configure},
		{StageCompile, r.compile},
		{StageUnpack, r.unpack},
		{StageLink, r.link},
	}
	if r.cfg.VerifySymbols {
		stages = append(stages, stage{StageVerify, r.verify})
	}
	return append(stages,
		stage{StageRelocate, r.relocate},
		stage{StageUnpatch, r.unpatch},
		stage{StageClean, r.clean},
	)
}

func (r *run) applyPatches(ctx context.Context) error {
	if r.patches.Len() == 0 {
		r.logger.Info("no patches found", "dir", r.cfg.PatchPath())
		return nil
	}

	applied, err := r.patches.Apply(ctx, r.runner, r.tools.Patch, r.cfg.SourceDir, r.result)
	r.applied = applied
	if err != nil {
		return err
	}

	r.logger.Info("patches applied", "count", applied, "files", len(r.patches.Files()))
	return nil
}

func (r *run) configure(ctx context.Context) error {
	return r.exec(ctx, "configure", Command{
		Dir:  r.cfg.SourceDir,
		Env:  r.tools.Env(),
		Name: r.cfg.ConfigureScript,
	})
}

func (r *run) compile(ctx context.Context) error {
	return r.exec(ctx, r.tools.Make, Command{
		Dir:  r.cfg.SourceDir,
		Env:  r.tools.Env(),
		Name: r.tools.Make,
		Args: []string{"-B", r.cfg.ArchiveTarget},
	})
}

func (r *run) unpack(ctx context.Context) error {
	objects, err := unpackArchive(ctx, r.runner, r.tools.AR, r.cfg.SourceDir, r.cfg.ArchivePath(), r.result)
	r.objects = objects
	r.result.Objects = objects
	if err != nil {
		return err
	}

	r.logger.Info("archive unpacked", "objects", len(objects))
	return nil
}

func (r *run) link(ctx context.Context) error {
	cmd, err := linkCommand(r.tools, r.platform, r.cfg.SourceDir, r.result.Library, r.objects)
	if err != nil {
		return err
	}
	return r.exec(ctx, "link", cmd)
}

func (r *run) verify(_ context.Context) error {
	return VerifyLibrary(filepath.Join(r.cfg.SourceDir, r.result.Library), r.cfg.RequiredSymbols)
}

func (r *run) relocate(_ context.Context) error {
	artifacts, err := relocateArtifacts(r.cfg.SourceDir, r.cfg.DistPath(), r.cfg.LibName)
	r.result.Artifacts = artifacts
	if err != nil {
		return err
	}

	for _, a := range artifacts {
		r.logger.Info("artifact relocated", "path", a)
	}
	return nil
}

func (r *run) unpatch(ctx context.Context) error {
	n := r.applied
	// reverted (or attempted) patches must not be reverted again by rollback
	r.applied = 0

	if err := r.patches.Revert(ctx, r.runner, r.tools.Patch, r.cfg.SourceDir, n, r.result); err != nil {
		return err
	}

	restored, err := r.snapshot.Restore()
	if err != nil {
		return err
	}
	if len(restored) > 0 {
		r.logger.Warn("reverting patches left residue, restored from snapshot", "paths", restored)
	}
	return nil
}

func (r *run) clean(_ context.Context) error {
	removed, err := removeTransients(r.cfg, r.baseline, r.objects)
	r.logger.Debug("transients removed", "count", len(removed))
	return err
}

// rollback puts the source tree back after a failed stage: revert what is
// still applied, restore the snapshot, drop transients. Every step is
// attempted; the returned error joins their failures.
func (r *run) rollback(ctx context.Context) error {
	r.logger.Warn("rolling back source tree", "applied_patches", r.applied)
	r.result.RolledBack = true

	var errs []error
	if r.applied > 0 {
		n := r.applied
		r.applied = 0
		if err := r.patches.Revert(ctx, r.runner, r.tools.Patch, r.cfg.SourceDir, n, r.result); err != nil {
			// the snapshot restore below is authoritative
			r.logger.Warn("reverse-applying patches failed", "error", err)
		}
	}

	restored, err := r.snapshot.Restore()
	if err != nil {
		errs = append(errs, err)
	}
	if len(restored) > 0 {
		r.logger.Info("restored files from snapshot", "paths", restored)
	}

	if _, err := removeTransients(r.cfg, r.baseline, r.objects); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// exec runs one external tool, recording its output in the result.
func (r *run) exec(ctx context.Context, tool string, cmd Command) error {
	out, err := r.runner.Run(ctx, cmd)
	r.result.Output = append(r.result.Output, out.Lines()...)
	if err != nil {
		return BuildError(tool, out.Lines(), err)
	}
	return nil
}
