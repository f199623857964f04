package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nemonic-bridge/internal/looper"
	"nemonic-bridge/internal/nemonic"
)

type loopFixture struct {
	loop    *looper.Looper
	ch      *recordingChannel
	printer *fakePrinter
	scanner *fakeScanner
	ctrl    *Controller
	scan    *Scanner
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()
	log := quietLogger()
	f := &loopFixture{
		loop:    looper.New(64, log),
		printer: &fakePrinter{},
		scanner: &fakeScanner{},
	}
	f.ch = newRecordingChannel(f.loop.InTask)
	f.ctrl = NewController(f.ch, f.loop, func(cb nemonic.PrinterCallback) nemonic.PrinterController {
		f.printer.cb = cb
		return f.printer
	}, log)
	f.scan = NewScanner(f.ch, func(cb nemonic.ScanCallback) nemonic.ScanController {
		f.scanner.cb = cb
		return f.scanner
	}, log)
	return f
}

func (f *loopFixture) run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go f.loop.Run(ctx)
}

func (f *loopFixture) waitEvents(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.ch.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d of %d notifications", i, n)
		}
	}
}

func TestDisconnectedDeliveredOnceOnMainLoop(t *testing.T) {
	f := newLoopFixture(t)

	// callback from a driver goroutine before the loop runs: nothing is sent yet
	done := make(chan struct{})
	go func() {
		f.printer.cb.Disconnected()
		close(done)
	}()
	<-done
	events, _ := f.ch.snapshot()
	assert.Empty(t, events)

	f.run(t)
	f.waitEvents(t, 1)

	// give a stray duplicate a chance to show up
	time.Sleep(20 * time.Millisecond)
	events, inLoop := f.ch.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, MethodDisconnected, events[0].Method)
	assert.Nil(t, events[0].Arguments)
	assert.Equal(t, []bool{true}, inLoop)
}

func TestDisconnectedClearsConnectedPrinter(t *testing.T) {
	f := newLoopFixture(t)
	f.run(t)

	f.ctrl.Connect(nemonic.Printer{Name: "p"})
	_, ok := f.ctrl.Connected()
	require.True(t, ok)

	f.printer.cb.Disconnected()
	f.waitEvents(t, 1)
	_, ok = f.ctrl.Connected()
	assert.False(t, ok)
}

func TestPrintProgressOrderPreserved(t *testing.T) {
	f := newLoopFixture(t)
	f.run(t)

	const n = 50
	go func() {
		for i := 1; i <= n; i++ {
			f.printer.cb.PrintProgress(i, n, -(i % 3))
		}
		f.printer.cb.PrintComplete(nemonic.OK)
	}()
	f.waitEvents(t, n+1)

	events, inLoop := f.ch.snapshot()
	require.Len(t, events, n+1)
	for i := 0; i < n; i++ {
		assert.Equal(t, MethodPrintProgress, events[i].Method)
		assert.Equal(t, map[string]any{"index": i + 1, "total": n, "result": -((i + 1) % 3)}, events[i].Arguments)
	}
	assert.Equal(t, MethodPrintComplete, events[n].Method)
	assert.Equal(t, map[string]any{"result": nemonic.OK}, events[n].Arguments)
	for _, v := range inLoop {
		assert.True(t, v)
	}
}

func TestCallbacksFromManyGoroutinesKeepPerTypeOrder(t *testing.T) {
	f := newLoopFixture(t)
	f.run(t)

	const n = 30
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			f.printer.cb.PrintProgress(i, n, 0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			f.printer.cb.PrintComplete(i)
		}
	}()
	wg.Wait()
	f.waitEvents(t, 2*n)

	events, _ := f.ch.snapshot()
	var progress, complete []int
	for _, ev := range events {
		args := ev.Arguments.(map[string]any)
		switch ev.Method {
		case MethodPrintProgress:
			progress = append(progress, args["index"].(int))
		case MethodPrintComplete:
			complete = append(complete, args["result"].(int))
		}
	}
	require.Len(t, progress, n)
	require.Len(t, complete, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, i, progress[i])
		assert.Equal(t, i, complete[i])
	}
}

func TestNotificationsDroppedAfterLoopCloses(t *testing.T) {
	f := newLoopFixture(t)
	f.loop.Close()
	f.printer.cb.PrintComplete(nemonic.OK)
	events, _ := f.ch.snapshot()
	assert.Empty(t, events)
}

func TestDeviceFoundForwardedImmediately(t *testing.T) {
	f := newLoopFixture(t)
	// no loop running: scan results do not go through it

	found := []nemonic.Printer{
		{Name: "nemonic", MacAddress: "AA", Type: nemonic.TypeNemonic},
		{Name: "nemonic", MacAddress: "AA", Type: nemonic.TypeNemonic},
		{Name: "nemonic label", MacAddress: "BB", Type: nemonic.TypeNemonicLabel},
	}
	for _, p := range found {
		f.scanner.cb.DeviceFound(p)
	}

	events, _ := f.ch.snapshot()
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, MethodDeviceFound, ev.Method)
		assert.Equal(t, map[string]any{
			"name":       found[i].Name,
			"macAddress": found[i].MacAddress,
			"type":       int(found[i].Type),
		}, ev.Arguments)
	}
	assert.Equal(t, nemonic.OK, f.scan.StartScan())
	f.scan.StopScan()
	assert.Equal(t, []string{"StartScan", "StopScan"}, f.scanner.calls)
}
