// Copyright 2025 Ehab Terra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package profiler writes pprof and execution trace profiles of a
// generation run.
package profiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"

	"go.uber.org/zap"
)

// ProfilerConfig holds configuration for profiling
type ProfilerConfig struct {
	CPUProfile     bool
	CPUProfilePath string

	// Memory profiling writes a heap profile at Stop
	MemProfile     bool
	MemProfilePath string

	TraceProfile     bool
	TraceProfilePath string

	// Output directory for all profiles
	OutputDir string
}

// DefaultProfilerConfig returns a default profiling configuration
func DefaultProfilerConfig() *ProfilerConfig {
	return &ProfilerConfig{
		CPUProfilePath:   "cpu.prof",
		MemProfilePath:   "mem.prof",
		TraceProfilePath: "trace.out",
		OutputDir:        "profiles",
	}
}

// Enabled reports whether any profile is requested.
func (c *ProfilerConfig) Enabled() bool {
	return c != nil && (c.CPUProfile || c.MemProfile || c.TraceProfile)
}

// Profiler manages different types of profiling
type Profiler struct {
	config *ProfilerConfig
	logger *zap.Logger
	mu     sync.Mutex

	cpuFile   *os.File
	traceFile *os.File
	running   bool
}

// NewProfiler creates a new profiler instance
func NewProfiler(config *ProfilerConfig, logger *zap.Logger) *Profiler {
	if config == nil {
		config = DefaultProfilerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Profiler{config: config, logger: logger}
}

// Start begins profiling based on configuration
func (p *Profiler) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.New("profiler already started")
	}

	// Create output directory if it doesn't exist
	if p.config.OutputDir != "" {
		if err := os.MkdirAll(p.config.OutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if p.config.CPUProfile {
		if err := p.startCPUProfile(); err != nil {
			return fmt.Errorf("failed to start CPU profiling: %w", err)
		}
	}

	if p.config.TraceProfile {
		if err := p.startTraceProfile(); err != nil {
			_ = p.stopCPUProfile()
			return fmt.Errorf("failed to start trace profiling: %w", err)
		}
	}

	p.running = true
	return nil
}

// Stop stops all profiling and writes results to files
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false

	var errs []error
	if err := p.stopCPUProfile(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close CPU profile file: %w", err))
	}

	if p.config.MemProfile {
		if err := p.writeMemProfile(); err != nil {
			errs = append(errs, fmt.Errorf("failed to write memory profile: %w", err))
		}
	}

	if p.traceFile != nil {
		trace.Stop()
		if err := p.traceFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close trace file: %w", err))
		}
		p.traceFile = nil
	}

	return errors.Join(errs...)
}

// IsProfiling reports whether Start succeeded and Stop has not run yet.
func (p *Profiler) IsProfiling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Profiler) path(name string) string {
	return filepath.Join(p.config.OutputDir, name)
}

func (p *Profiler) startCPUProfile() error {
	filePath := p.path(p.config.CPUProfilePath)
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}

	if err := pprof.StartCPUProfile(file); err != nil {
		return errors.Join(err, file.Close())
	}
	p.cpuFile = file

	p.logger.Info("CPU profiling started", zap.String("file", filePath))
	return nil
}

func (p *Profiler) stopCPUProfile() error {
	if p.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := p.cpuFile.Close()
	p.cpuFile = nil
	return err
}

func (p *Profiler) writeMemProfile() (err error) {
	filePath := p.path(p.config.MemProfilePath)
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	runtime.GC() // Force garbage collection before profiling
	if err := pprof.WriteHeapProfile(file); err != nil {
		return err
	}

	p.logger.Info("memory profile written", zap.String("file", filePath))
	return nil
}

func (p *Profiler) startTraceProfile() error {
	filePath := p.path(p.config.TraceProfilePath)
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}

	if err := trace.Start(file); err != nil {
		return errors.Join(err, file.Close())
	}
	p.traceFile = file

	p.logger.Info("trace profiling started", zap.String("file", filePath))
	return nil
}
