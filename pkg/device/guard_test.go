package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-skycam/pkg/camera"
)

func TestGuardSerializesAllOperations(t *testing.T) {
	sim := NewSim(16, 16)
	sim.SetApplyDelay(200 * time.Microsecond)
	g := NewGuard(sim)
	ctx := context.Background()

	sets := []camera.ParameterSet{
		camera.Defaults(),
		camera.LowLightPreset(),
		camera.HighDetailPreset(),
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := g.Capture(ctx); err != nil {
					t.Errorf("Capture: %v", err)
					return
				}
			}
		}()
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if err := g.Apply(ctx, sets[(i+j)%len(sets)]); err != nil {
					t.Errorf("Apply: %v", err)
					return
				}
				if _, err := g.Read(ctx); err != nil {
					t.Errorf("Read: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if n := sim.Overlaps(); n != 0 {
		t.Errorf("%d device calls overlapped behind the guard", n)
	}
}

func TestGuardTransactionExcludesCaptures(t *testing.T) {
	sim := NewSim(16, 16)
	g := NewGuard(sim)
	ctx := context.Background()

	inTx := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- g.Transaction(func(d Device) error {
			close(inTx)
			<-release
			return d.Apply(ctx, camera.NewSet(camera.Pair{Param: camera.Contrast, Value: camera.Float(1.5)}))
		})
	}()
	<-inTx

	captured := make(chan struct{})
	go func() {
		_, _ = g.Capture(ctx)
		close(captured)
	}()

	select {
	case <-captured:
		t.Fatal("capture ran inside a transaction")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	<-captured

	seen := sim.Seen()
	if len(seen) != 1 {
		t.Fatalf("Seen() = %d, want 1", len(seen))
	}
	if v, _ := seen[0].Get(camera.Contrast); v.Float() != 1.5 {
		t.Errorf("capture saw Contrast=%v, want committed 1.5", v)
	}
}

func TestGuardTransactionPropagatesError(t *testing.T) {
	g := NewGuard(NewSim(0, 0))
	want := errors.New("boom")
	if err := g.Transaction(func(Device) error { return want }); !errors.Is(err, want) {
		t.Errorf("Transaction() = %v, want %v", err, want)
	}
}

func TestGuardClose(t *testing.T) {
	g := NewGuard(NewSim(0, 0))
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Capture(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Capture after Close = %v, want ErrClosed", err)
	}
}
