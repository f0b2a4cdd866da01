package main

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/testutils"
)

const TestDeviceAddress1 = "00:00:00:00:00:01"

// syncBuffer is a bytes.Buffer safe for a command writing while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite runs commands against the FakeStack of the embedded StackSuite.
type CommandTestSuite struct {
	testutils.StackSuite
	restoreStack func(*logrus.Logger) device.Stack
}

func (s *CommandTestSuite) SetupTest() {
	s.StackSuite.SetupTest()
	s.restoreStack = newStack
	newStack = func(*logrus.Logger) device.Stack { return s.Stack }
}

func (s *CommandTestSuite) TearDownTest() {
	newStack = s.restoreStack
	s.StackSuite.TearDownTest()
}

// commandRun is a command executing in the background.
type commandRun struct {
	Out    *syncBuffer
	Err    *syncBuffer
	cancel context.CancelFunc
	done   chan error
}

// Start executes the root command with args on its own goroutine.
func (s *CommandTestSuite) Start(args ...string) *commandRun {
	ctx, cancel := context.WithCancel(context.Background())
	run := &commandRun{
		Out:    &syncBuffer{},
		Err:    &syncBuffer{},
		cancel: cancel,
		done:   make(chan error, 1),
	}

	resetCommands(ctx, rootCmd)
	rootCmd.SetOut(run.Out)
	rootCmd.SetErr(run.Err)
	rootCmd.SetArgs(args)
	go func() {
		run.done <- rootCmd.ExecuteContext(ctx)
	}()
	return run
}

// Wait returns the command's error, failing the test if it does not finish.
func (s *CommandTestSuite) Wait(run *commandRun) error {
	select {
	case err := <-run.done:
		return err
	case <-time.After(3 * time.Second):
		s.FailNow("command did not finish")
		return nil
	}
}

// ExecuteCommand runs the root command with args to completion.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	run := s.Start(args...)
	err := s.Wait(run)
	return run.Out.String(), err
}

// resetCommands restores every flag to its default and hands ctx to every
// command in the tree. Cobra only propagates the root context to subcommands
// whose context is still unset, so a context from an earlier run would stick.
func resetCommands(ctx context.Context, cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.SetContext(ctx)
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetCommands(ctx, c)
	}
}
