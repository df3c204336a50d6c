package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starhold/server/internal/config"
	"github.com/starhold/server/internal/wire"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func wireControlInput() wire.ControlInput {
	return wire.ControlInput{Input: wire.Forward, Pressed: true}
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.AccountsDBPath = filepath.Join(dir, "accounts.db")
	cfg.AssetBundleRoot = dir

	assetsPath := filepath.Join(dir, "assets.json")
	writeFile(t, assetsPath, `{"bundles": []}`)

	d, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error constructing daemon: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestSpawnConnectionAttachesAllSubsystems(t *testing.T) {
	d := newTestDaemon(t)

	e, vp := d.spawnConnection("profile-1")
	if vp == nil {
		t.Fatal("expected a non-nil viewport")
	}
	if !d.sim.World.IsAlive(e) {
		t.Fatal("expected the spawned entity to be alive")
	}
	if !d.sim.Motion.Position.Has(e) {
		t.Fatal("expected a Position component")
	}
	if !d.sim.Damage.Healths.Has(e) {
		t.Fatal("expected a Health component")
	}
	if !d.sim.Control.Inputs.Has(e) {
		t.Fatal("expected an InputState component")
	}
	if !d.sim.Viewport.Viewports.Has(e) {
		t.Fatal("expected a Viewport component")
	}
}

func TestDespawnConnectionRemovesEntityAfterDrain(t *testing.T) {
	d := newTestDaemon(t)
	e, _ := d.spawnConnection("profile-1")

	d.despawnConnection(e)
	d.sim.World.Commands().Drain()

	if d.sim.World.IsAlive(e) {
		t.Fatal("expected the entity to be dead after drain")
	}
}

func TestHandleFireSpawnsMunitionOnDrain(t *testing.T) {
	d := newTestDaemon(t)
	shooter, _ := d.spawnConnection("profile-1")

	before := d.sim.World.AliveCount()
	d.handleFire(shooter)
	d.sim.World.Commands().Drain()
	after := d.sim.World.AliveCount()

	if after != before+1 {
		t.Fatalf("expected one new munition entity, went from %d to %d", before, after)
	}
}

func TestHandleControlInputUpdatesInputState(t *testing.T) {
	d := newTestDaemon(t)
	e, _ := d.spawnConnection("profile-1")

	d.handleControlInput(e, wireControlInput())

	state, ok := d.sim.Control.Inputs.Get(e)
	if !ok {
		t.Fatal("expected an input state")
	}
	forward, _, _, _, _ := state.Snapshot()
	if !forward {
		t.Fatal("expected forward to be held after applying the control input")
	}
}

func TestRunStopsOnCloseChannel(t *testing.T) {
	d := newTestDaemon(t)
	d.cfg.ListenAddr = "127.0.0.1:0"

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- d.Run(stop) }()
	close(stop)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected a clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("expected Run to return after stop is closed")
	}
}
