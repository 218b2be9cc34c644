// Package task hands long running commands to a background dispatcher. Callers observe progress only through the
// status queries of the operation they started.
package task

//go:generate mockgen -destination mocks/mock_task.go github.com/rockstor/btrfs-utils/internal/task Dispatcher

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rockstor/btrfs-utils/internal/util"
)

// ErrEmptyCommand is returned when a Task carries no command.
var ErrEmptyCommand = errors.New("task: empty command")

// Task describes one command to run in the background.
type Task struct {
	// ID is assigned on submission when empty.
	ID      string
	Name    string
	Command []string
}

// Dispatcher outlines the functionality necessary for running commands without waiting on their completion.
type Dispatcher interface {
	// Submit queues t and returns its ID. It never waits for the command to finish.
	Submit(ctx context.Context, t Task) (string, error)
}

// Local runs each task in its own goroutine through a Runner.
type Local struct {
	runner util.Runner
	wg     sync.WaitGroup
}

// Type assertion to ensure Local implements the Dispatcher interface.
var _ Dispatcher = (*Local)(nil)

// NewLocal returns a Local dispatcher using runner.
func NewLocal(runner util.Runner) *Local {
	return &Local{runner: runner}
}

// Submit starts t in the background. The task keeps running when ctx is cancelled after submission.
func (l *Local) Submit(ctx context.Context, t Task) (string, error) {
	if len(t.Command) == 0 {
		return "", ErrEmptyCommand
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	log := logrus.WithFields(logrus.Fields{
		"task": t.ID,
		"name": t.Name,
		"cmd":  t.Command,
	})
	log.Info("Submitting background task")

	runCtx := context.WithoutCancel(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		out, err := l.runner.Run(runCtx, t.Command, util.Options{Log: true})
		if err != nil {
			log.WithError(err).Error("Background task failed")
			return
		}
		log.WithField("stdout", out.Stdout).Info("Background task finished")
	}()

	return t.ID, nil
}

// Wait blocks until every submitted task has finished. A process that exits without waiting abandons its tasks.
func (l *Local) Wait() {
	l.wg.Wait()
}
