/*
 * RSX - Main process.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/go-rsx/rsxcore/command/parser"
	"github.com/go-rsx/rsxcore/command/reader"
	"github.com/go-rsx/rsxcore/config/envconfig"
	"github.com/go-rsx/rsxcore/rsx/backend/fake"
	"github.com/go-rsx/rsxcore/rsx/capture"
	"github.com/go-rsx/rsxcore/rsx/fifo"
	"github.com/go-rsx/rsxcore/rsx/membridge"
	"github.com/go-rsx/rsxcore/rsx/register"
	"github.com/go-rsx/rsxcore/rsx/vblank"
	"github.com/go-rsx/rsxcore/rsx/zcull"
	logger "github.com/go-rsx/rsxcore/util/logger"
)

// Logger is the process-wide default, installed over slog's package default.
var Logger *slog.Logger

const controlBlockAddr = 0

func main() {
	optConfig := getopt.StringLong("config", 'c', "rsx.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optTrace := getopt.BoolLong("trace", 't', "Enable trace-level logging")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	logPath := envconfig.LogPath(*optLogFile)
	var file *os.File
	if logPath != "" {
		file, _ = os.Create(logPath)
	}

	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	if *optTrace {
		programLevel.Set(slog.LevelDebug)
	}
	debug := *optTrace
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel}, &debug))
	slog.SetDefault(Logger)

	Logger.Info("RSX interpreter starting")

	configPath := envconfig.ConfigPath(*optConfig)
	env := envconfig.Default()
	if _, err := os.Stat(configPath); err == nil {
		env, err = envconfig.LoadFile(configPath)
		if err != nil {
			Logger.Error("failed to load configuration", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		Logger.Info("no configuration file found, using defaults", slog.String("path", configPath))
	}
	Logger.Debug("environment loaded",
		slog.Bool("thread_scheduler_enabled", env.ThreadSchedulerEnabled),
		slog.Bool("frame_skip_enabled", env.FrameSkipEnabled),
		slog.Bool("disable_zcull_queries", env.DisableZcullQueries),
		slog.Uint64("min_scalable_dimension", uint64(env.MinScalableDimension)),
		slog.Float64("resolution_scale", float64(env.ResolutionScale)))

	mem := membridge.New(64 * 1024 * 1024)
	regs := register.New()
	be := fake.New(true)
	cap := capture.New()

	zc := zcull.New(be, mem, zcull.Config{})
	zc.SetEnabled(!env.DisableZcullQueries)

	interp := fifo.New(mem, regs, zc, be, cap, controlBlockAddr, Logger)

	paused := false
	var frame uint64
	vb := vblank.New(func(int) {
		frame++
		if env.FrameSkipEnabled {
			cycle := uint64(env.ConsecutiveFramesToDraw + env.ConsecutiveFramesToSkip)
			if cycle > 0 && frame%cycle >= uint64(env.ConsecutiveFramesToDraw) {
				return
			}
		}
		be.OnTask()
	}, func() bool { return paused })
	vb.Start()

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		if env.ThreadSchedulerEnabled {
			runtime.LockOSThread()
		}
		done <- interp.Run(stop)
	}()

	sess := &parser.Session{Interp: interp, Regs: regs, Zcull: zc, Capture: cap, Backend: be}
	consoleDone := make(chan struct{})
	go func() {
		reader.ConsoleReader(sess)
		close(consoleDone)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		Logger.Info("received shutdown signal")
	case <-consoleDone:
		Logger.Info("console exited")
	case err := <-done:
		if err != nil {
			Logger.Error("interpreter stopped with error", slog.Any("error", err))
		}
	}

	close(stop)
	vb.Shutdown()
	interp.Close()
	Logger.Info("RSX interpreter stopped")
}
