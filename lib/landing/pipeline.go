// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package landing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/downlink/lib/clock"
	"github.com/bureau-foundation/downlink/lib/config"
	"github.com/bureau-foundation/downlink/lib/digest"
	"github.com/bureau-foundation/downlink/lib/dirlock"
	"github.com/bureau-foundation/downlink/lib/fnpattern"
	"github.com/bureau-foundation/downlink/lib/ledger"
	"github.com/bureau-foundation/downlink/lib/reffile"
	"github.com/bureau-foundation/downlink/lib/timeslot"
	"github.com/bureau-foundation/downlink/lib/unpack"
)

var (
	// ErrUnknownTarget is returned by Land for a target name the
	// pipeline was not built with.
	ErrUnknownTarget = errors.New("unknown target")

	// ErrNotMatched is returned by Land when the file name does not fit
	// the target's origin pattern. Such files are left alone.
	ErrNotMatched = errors.New("file name does not match origin pattern")
)

// Landed is one file waiting to be processed.
type Landed struct {
	Path   string
	Target string
}

// Result describes what Land did with a file.
type Result struct {
	// Output is the unpacked file. For CompressionNone it is the
	// landed file itself, moved or copied into Destination when that
	// is a different directory.
	Output string

	// Destination is the composed output directory.
	Destination string

	// Slot is the aligned time, zero when the target does not align.
	Slot time.Time

	// Metadata is what the origin pattern extracted, with the aligned
	// time substituted.
	Metadata map[string]any

	// Reference is the reference file's state after the landing.
	// Always Absent for targets without references.
	Reference reffile.State

	// Duplicate is true when the ledger already held identical content
	// for this target. Nothing else was done.
	Duplicate bool
}

// target is a config.Target with its patterns compiled.
type target struct {
	config      config.Target
	compression unpack.Compression
	origin      *fnpattern.Pattern
	destination *fnpattern.Pattern
	reference   *fnpattern.Pattern
}

func compileTarget(cfg config.Target) (*target, error) {
	compression, err := unpack.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	compiled := &target{config: cfg, compression: compression}
	if cfg.Origin != "" {
		if compiled.origin, err = fnpattern.Compile(cfg.Origin); err != nil {
			return nil, fmt.Errorf("origin: %w", err)
		}
	}
	if cfg.Destination != "" {
		if compiled.destination, err = fnpattern.Compile(cfg.Destination); err != nil {
			return nil, fmt.Errorf("destination: %w", err)
		}
	}
	if cfg.Reference != nil {
		if compiled.reference, err = fnpattern.Compile(cfg.Reference.Path); err != nil {
			return nil, fmt.Errorf("reference.path: %w", err)
		}
	}
	return compiled, nil
}

// PipelineConfig holds the collaborators of a Pipeline.
type PipelineConfig struct {
	Targets []config.Target

	Unpacker   *unpack.Unpacker
	References *reffile.Manager

	// Locks guards destination directories while output is placed in
	// them. Share it with References and any retention.Purger working
	// on the same tree. Nil means a private tree.
	Locks *dirlock.Tree

	// Ledger is optional. Without it there is no duplicate detection
	// and nothing is recorded.
	Ledger *ledger.Ledger

	Clock  clock.Clock
	Logger *slog.Logger
}

// Pipeline lands files for a fixed set of targets. Safe for
// concurrent use, but two concurrent Land calls for files of the same
// slot race on the unpack output; Service serializes per target.
type Pipeline struct {
	targets    map[string]*target
	unpacker   *unpack.Unpacker
	references *reffile.Manager
	locks      *dirlock.Tree
	ledger     *ledger.Ledger
	clock      clock.Clock
	logger     *slog.Logger
}

// NewPipeline compiles every target's patterns. Unpacker and
// References are required.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Unpacker == nil || cfg.References == nil {
		return nil, errors.New("landing: Unpacker and References are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Locks == nil {
		cfg.Locks = &dirlock.Tree{}
	}

	targets := make(map[string]*target, len(cfg.Targets))
	for _, targetConfig := range cfg.Targets {
		compiled, err := compileTarget(targetConfig)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", targetConfig.Name, err)
		}
		targets[targetConfig.Name] = compiled
	}

	return &Pipeline{
		targets:    targets,
		unpacker:   cfg.Unpacker,
		references: cfg.References,
		locks:      cfg.Locks,
		ledger:     cfg.Ledger,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}, nil
}

// place creates the destination directory and puts the target's
// output for path in it. It returns the local destination and the
// output path. The destination's lock is held throughout so a purge
// cannot remove the directory while it is being filled; the reference
// step that follows checks again that the directory exists.
func (p *Pipeline) place(ctx context.Context, target *target, path, destination string) (local, output string, err error) {
	local, err = unpack.ResolveDestination(destination)
	if err != nil {
		return "", "", fmt.Errorf("destination for %s: %w", filepath.Base(path), err)
	}

	unlock := p.locks.Lock(local)
	defer unlock()

	if err := os.MkdirAll(local, 0o755); err != nil {
		return "", "", fmt.Errorf("creating destination %s: %w", local, err)
	}

	remove := unpack.Truthy(target.config.Delete)
	if target.compression == unpack.CompressionNone && filepath.Clean(local) != filepath.Dir(path) {
		output, err = relocate(path, local, remove.Enabled())
		return local, output, err
	}
	output, err = p.unpacker.Unpack(ctx, unpack.Request{
		Path:             path,
		Compression:      target.compression,
		WorkingDirectory: local,
		Program:          target.config.Program,
		Delete:           remove,
	})
	return local, output, err
}

// Land processes the file at path for the named target.
func (p *Pipeline) Land(ctx context.Context, targetName, path string) (Result, error) {
	target, ok := p.targets[targetName]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownTarget, targetName)
	}
	name := filepath.Base(path)

	metadata := make(map[string]any)
	if target.origin != nil {
		parsed, err := target.origin.Parse(name)
		if errors.Is(err, fnpattern.ErrNoMatch) {
			return Result{}, fmt.Errorf("%w: %s", ErrNotMatched, name)
		}
		if err != nil {
			return Result{}, err
		}
		metadata = parsed
	}

	result := Result{Metadata: metadata}

	if target.config.Align != "" {
		aligned, ok, err := timeslot.ComputeAlignedTime(target.config.Align, metadata)
		if err != nil {
			return Result{}, fmt.Errorf("aligning %s: %w", name, err)
		}
		if ok {
			for key, value := range aligned {
				metadata[key] = value
				result.Slot = value
			}
		}
	}

	result.Destination = filepath.Dir(path)
	if target.destination != nil {
		destination, err := target.destination.Compose(metadata)
		if err != nil {
			return Result{}, fmt.Errorf("composing destination for %s: %w", name, err)
		}
		result.Destination = destination
	}

	var hash digest.Hash
	if p.ledger != nil {
		var err error
		if hash, err = digest.File(path); err != nil {
			return Result{}, err
		}
		seen, err := p.ledger.Seen(ctx, target.config.Name, hash)
		if err != nil {
			return Result{}, err
		}
		if seen {
			p.logger.Info("skipping duplicate segment",
				"target", target.config.Name,
				"path", path,
				"digest", hash.String(),
			)
			result.Duplicate = true
			return result, nil
		}
	}

	destination, output, err := p.place(ctx, target, path, result.Destination)
	if err != nil {
		return Result{}, err
	}
	result.Destination = destination
	result.Output = output

	var marker bool
	var transition string
	if reference := target.config.Reference; reference != nil {
		refPath, err := target.reference.Compose(metadata)
		if err != nil {
			return Result{}, fmt.Errorf("composing reference path for %s: %w", name, err)
		}

		marker = reffile.IsCompletionMarker(name, reference.Marker)
		if marker && reffile.ShouldGenerate(name, reference.Rule) {
			if _, err := p.references.Generate(result.Destination, name, refPath, reference.Filter); err != nil {
				return Result{}, err
			}
			result.Reference = reffile.Present
			transition = "generated"
		} else {
			touched, err := p.references.Touch(result.Destination, refPath)
			if err != nil {
				return Result{}, err
			}
			if touched {
				result.Reference = reffile.Present
				transition = "touched"
			}
		}
	}

	if p.ledger != nil {
		_, err := p.ledger.Record(ctx, ledger.Entry{
			Target:      target.config.Name,
			Source:      path,
			Output:      output,
			Digest:      hash,
			Compression: target.compression.String(),
			Slot:        result.Slot,
			Marker:      marker,
			Reference:   transition,
			Metadata:    metadata,
			LandedAt:    p.clock.Now(),
		})
		if err != nil {
			return Result{}, err
		}
	}

	p.logger.Info("landed segment",
		"target", target.config.Name,
		"path", path,
		"output", output,
		"slot", result.Slot,
		"reference", result.Reference.String(),
	)
	return result, nil
}
