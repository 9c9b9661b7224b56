// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package jobs_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/OpenPSG/dangercat/internal/jobs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newSlot(t *testing.T, kind jobs.Kind) (*jobs.Slot[string], *jobs.Metrics) {
	t.Helper()

	metrics := jobs.NewMetrics(prometheus.NewRegistry())
	return jobs.NewSlot[string](kind, discard, metrics), metrics
}

// drain polls until the slot leaves the Pending state.
func drain[T any](t *testing.T, slot *jobs.Slot[T]) jobs.Result[T] {
	t.Helper()

	var res jobs.Result[T]
	require.Eventually(t, func() bool {
		res = slot.Poll()
		return res.Status != jobs.Pending
	}, 5*time.Second, time.Millisecond)
	return res
}

func workersRunning(m *jobs.Metrics, kind jobs.Kind) float64 {
	return testutil.ToFloat64(m.Running.WithLabelValues(kind.String()))
}

func TestSlotDelivers(t *testing.T) {
	slot, metrics := newSlot(t, jobs.Load)

	assert.Equal(t, jobs.Idle, slot.Poll().Status)
	assert.False(t, slot.Running())

	id := slot.Start(func() (string, error) { return "done", nil })
	assert.True(t, slot.Running())

	res := drain(t, slot)
	require.Equal(t, jobs.Delivered, res.Status)
	assert.True(t, res.Done())
	assert.Equal(t, id, res.ID)
	assert.Equal(t, uint64(1), res.Generation)
	assert.Equal(t, "done", res.Value)
	assert.NoError(t, res.Err)

	// Delivered at most once.
	assert.Equal(t, jobs.Idle, slot.Poll().Status)
	assert.False(t, slot.Running())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Started.WithLabelValues("load")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Finished.WithLabelValues("load", "delivered")))
}

func TestSlotPending(t *testing.T) {
	slot, _ := newSlot(t, jobs.Filter)

	release := make(chan struct{})
	slot.Start(func() (string, error) {
		<-release
		return "late", nil
	})

	for i := 0; i < 10; i++ {
		assert.Equal(t, jobs.Pending, slot.Poll().Status)
	}

	close(release)
	assert.Equal(t, "late", drain(t, slot).Value)
}

func TestSlotFailed(t *testing.T) {
	slot, metrics := newSlot(t, jobs.Filter)
	errCutoff := errors.New("cutoff out of range")

	slot.Start(func() (string, error) { return "", errCutoff })

	res := drain(t, slot)
	require.Equal(t, jobs.Failed, res.Status)
	assert.ErrorIs(t, res.Err, errCutoff)
	assert.Equal(t, jobs.Idle, slot.Poll().Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Finished.WithLabelValues("filter", "failed")))
}

func TestSlotDisconnected(t *testing.T) {
	slot, metrics := newSlot(t, jobs.ArtifactRemoval)

	slot.Start(func() (string, error) { panic("worker crashed") })

	res := drain(t, slot)
	require.Equal(t, jobs.Disconnected, res.Status)
	assert.ErrorIs(t, res.Err, jobs.ErrDisconnected)
	assert.True(t, res.Done())
	assert.Equal(t, jobs.Idle, slot.Poll().Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Finished.WithLabelValues("artifact_removal", "disconnected")))
	assert.Zero(t, workersRunning(metrics, jobs.ArtifactRemoval))
}

func TestSlotAbandonedResultIsNeverObserved(t *testing.T) {
	slot, metrics := newSlot(t, jobs.Filter)

	releaseA := make(chan struct{})
	idA := slot.Start(func() (string, error) {
		<-releaseA
		return "A", nil
	})
	idB := slot.Start(func() (string, error) { return "B", nil })
	require.NotEqual(t, idA, idB)
	assert.Equal(t, uint64(2), slot.Generation())

	res := drain(t, slot)
	require.Equal(t, jobs.Delivered, res.Status)
	assert.Equal(t, "B", res.Value)
	assert.Equal(t, idB, res.ID)

	// A finishes after B was delivered.
	close(releaseA)
	require.Eventually(t, func() bool {
		return workersRunning(metrics, jobs.Filter) == 0
	}, 5*time.Second, time.Millisecond)

	for i := 0; i < 10; i++ {
		assert.Equal(t, jobs.Idle, slot.Poll().Status)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Finished.WithLabelValues("filter", "abandoned")))
}

func TestSlotAbandonedResultDoesNotPreemptSuccessor(t *testing.T) {
	slot, metrics := newSlot(t, jobs.Filter)

	releaseA := make(chan struct{})
	releaseB := make(chan struct{})
	slot.Start(func() (string, error) {
		<-releaseA
		return "A", nil
	})
	idB := slot.Start(func() (string, error) {
		<-releaseB
		return "B", nil
	})

	// A completes first while B is still running.
	close(releaseA)
	require.Eventually(t, func() bool {
		return workersRunning(metrics, jobs.Filter) == 1
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, jobs.Pending, slot.Poll().Status)

	close(releaseB)
	res := drain(t, slot)
	assert.Equal(t, "B", res.Value)
	assert.Equal(t, idB, res.ID)
}

func TestSlotExplicitAbandon(t *testing.T) {
	slot, _ := newSlot(t, jobs.Load)

	assert.False(t, slot.Abandon())

	release := make(chan struct{})
	defer close(release)
	slot.Start(func() (string, error) {
		<-release
		return "ignored", nil
	})

	assert.True(t, slot.Abandon())
	assert.False(t, slot.Running())
	assert.Equal(t, jobs.Idle, slot.Poll().Status)
}

func TestSlotNilMetrics(t *testing.T) {
	slot := jobs.NewSlot[int](jobs.Load, nil, nil)
	slot.Start(func() (int, error) { return 42, nil })

	res := drain(t, slot)
	assert.Equal(t, 42, res.Value)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "load", jobs.Load.String())
	assert.Equal(t, "filter", jobs.Filter.String())
	assert.Equal(t, "artifact_removal", jobs.ArtifactRemoval.String())
	assert.Equal(t, "pending", jobs.Pending.String())
}
