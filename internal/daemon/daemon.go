// Package daemon wires every subsystem into a running server: config,
// accounts, sessions, assets, the simulation, the command bridge, the
// gateway, the HTTP surface, and the tick driver, plus signal handling
// and graceful shutdown. Grounded on the teacher's daemon.Run: open
// storage, build the subsystems, start background loops, wait on a
// signal or a fatal error, cancel and return.
package daemon

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/starhold/server/internal/accounts"
	"github.com/starhold/server/internal/assets"
	"github.com/starhold/server/internal/clock"
	"github.com/starhold/server/internal/collision"
	"github.com/starhold/server/internal/command"
	"github.com/starhold/server/internal/config"
	"github.com/starhold/server/internal/control"
	"github.com/starhold/server/internal/damage"
	"github.com/starhold/server/internal/ecs"
	"github.com/starhold/server/internal/gateway"
	"github.com/starhold/server/internal/geom"
	"github.com/starhold/server/internal/httpapi"
	"github.com/starhold/server/internal/logger"
	"github.com/starhold/server/internal/metrics"
	"github.com/starhold/server/internal/motion"
	"github.com/starhold/server/internal/physics"
	"github.com/starhold/server/internal/ratelimit"
	"github.com/starhold/server/internal/session"
	"github.com/starhold/server/internal/sim"
	"github.com/starhold/server/internal/viewport"
	"github.com/starhold/server/internal/wire"
)

const (
	shipRadius       = 20.0
	shipMaxSpeed     = 300.0
	shipMaxAccel     = 150.0
	shipMaxAngVel    = 2.0
	shipMaxHull      = 100.0
	shipMaxShield    = 60.0
	shipHullRegen    = 1.0
	shipShieldRegen  = 4.0
	viewportRadius   = 2000.0
	munitionRadius   = 5.0
	munitionSpeed    = 600.0
	munitionHull     = 8.0
	munitionShield   = 12.0
	munitionLifetime = 3.0

	compactEveryNTicks = 300
)

// Daemon bundles every subsystem a running server needs.
type Daemon struct {
	cfg *config.Config

	accountsDB  *accounts.DB
	profiles    *session.Store
	sessions    *session.Sessions
	assetIdx    *assets.Index
	assetWatch  *assets.Watcher
	bridge      *command.Bridge
	serviceAuth *command.ServiceAuth
	sim         *sim.Simulation
	gw          *gateway.Gateway
	httpSrv     *httpapi.Server
	counters    *metrics.Counters
	reporter    *metrics.Reporter

	mu       sync.Mutex
	byClient map[ecs.Entity]struct{} // live connection-owned entities, for AliveCount diagnostics only
}

// New constructs a Daemon from cfg, opening the accounts DB and loading
// the asset bundle. Returns an error for any startup-fatal condition
// (spec.md §7: configuration errors are fatal at startup).
func New(cfg *config.Config) (*Daemon, error) {
	db, err := accounts.Open(cfg.AccountsDBPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: open accounts db: %w", err)
	}

	assetIdx, err := assets.Load(cfg.AssetBundleRoot)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("daemon: load assets: %w", err)
	}

	d := &Daemon{
		cfg:         cfg,
		accountsDB:  db,
		profiles:    session.NewStore(cfg.BcryptCost),
		sessions:    session.NewSessions(time.Duration(cfg.SessionTTLSeconds * float64(time.Second))),
		assetIdx:    assetIdx,
		assetWatch:  assets.NewWatcher(cfg.AssetBundleRoot, assetIdx),
		bridge:      command.NewBridge(cfg.CommandQueueCapacity),
		serviceAuth: command.NewServiceAuth(cfg.ServiceAuthSecret, time.Hour),
		sim:         sim.New(),
		counters:    &metrics.Counters{},
		byClient:    make(map[ecs.Entity]struct{}),
	}
	d.reporter = metrics.NewReporter(d.counters, 30*time.Second)

	d.gw = gateway.New(d.sessions)
	d.gw.BindViewport = d.spawnConnection
	d.gw.Unbind = d.despawnConnection
	d.gw.OnControlInput = d.handleControlInput
	d.sim.OnFire = d.handleFire

	d.httpSrv = httpapi.NewServer()
	d.httpSrv.Accounts = db
	d.httpSrv.Profiles = d.profiles
	d.httpSrv.Sessions = d.sessions
	d.httpSrv.Assets = assetIdx
	d.httpSrv.Bridge = d.bridge
	d.httpSrv.Gateway = d.gw
	d.httpSrv.RateLim = ratelimit.New(cfg.RateLimitPerSecond, cfg.RateLimitBurst)

	return d, nil
}

// Close releases the daemon's held resources (accounts DB handle).
func (d *Daemon) Close() error {
	return d.accountsDB.Close()
}

// Run starts every background loop — session sweeper, asset watcher,
// metrics reporter, tick driver, HTTP listener — and blocks until stop
// is closed or a fatal error occurs, then shuts everything down.
// Grounded on the teacher's daemon.Run: a signal channel racing an error
// channel, cancel on either, return.
func (d *Daemon) Run(stop <-chan struct{}) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	internalStop := make(chan struct{})
	go func() {
		select {
		case <-stop:
		case <-ctx.Done():
		}
		close(internalStop)
	}()

	go d.sessions.RunSweeper(5*time.Second, internalStop)
	go func() {
		if err := d.assetWatch.Run(internalStop); err != nil {
			logger.Warn("daemon: asset watcher exited", "err", err)
		}
	}()
	go d.reporter.Run(internalStop)

	httpServer := &http.Server{Addr: d.cfg.ListenAddr, Handler: d.httpSrv.Mux()}
	errCh := make(chan error, 2)

	go func() {
		tickCount := 0
		driver := clock.NewDriver(
			time.Duration(d.cfg.TickRateMin*float64(time.Second)),
			time.Duration(d.cfg.TickRateMax*float64(time.Second)),
		)
		driver.Run(internalStop, func(dt float64) {
			start := time.Now()
			command.DrainAndApply(ctx, d.bridge)
			d.sim.Tick(dt)
			d.counters.RecordTick(time.Since(start))
			d.counters.SetEntityCount(d.sim.World.AliveCount())

			tickCount++
			if tickCount%compactEveryNTicks == 0 {
				d.sim.World.Compact()
			}
		})
		errCh <- nil
	}()

	go func() {
		logger.Info("daemon: http listening", "addr", d.cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-stop:
	case sig := <-sigCh:
		logger.Info("daemon: received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			cancel()
			return err
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	return nil
}

// spawnConnection is the gateway's BindViewport hook: every new
// authorized connection gets a fresh ship entity carrying motion,
// semi-Newtonian physics, player control, a Damaging-channel hull, and a
// Displayable-channel viewport source (spec.md §4.7, §4.9). The entity
// is torn down on disconnect rather than reused across reconnects, since
// a viewport is a per-connection entity (spec.md §3 lifecycle: "their
// viewport's cancel flag is set").
func (d *Daemon) spawnConnection(profileID string) (ecs.Entity, *viewport.Viewport) {
	e := d.sim.World.Spawn()

	spawnPoint := geom.Point{X: rand.Float64()*2000 - 1000, Y: rand.Float64()*2000 - 1000}

	d.sim.Motion.Position.Set(e, spawnPoint)
	d.sim.Motion.Velocity.Set(e, motion.Vec2{})
	d.sim.Motion.Rotation.Set(e, 0)
	d.sim.Motion.AngularVelocity.Set(e, 0)

	d.sim.Physics.State.Set(e, physics.State{})
	d.sim.Physics.MaxSpeed.Set(e, physics.MaxSpeed{MaximumSpeed: shipMaxSpeed})
	d.sim.Physics.MaxAccel.Set(e, physics.MaxAcceleration{MaximumAcceleration: shipMaxAccel})

	d.sim.Control.Inputs.Set(e, control.NewInputState())
	d.sim.Control.MaxAngVel.Set(e, shipMaxAngVel)

	d.sim.Damage.Healths.Set(e, damage.Health{
		Hull: shipMaxHull, Shield: shipMaxShield,
		MaxHull: shipMaxHull, MaxShield: shipMaxShield,
		HullRegen: shipHullRegen, ShieldRegen: shipShieldRegen,
	})

	shipShape := geom.NewCircle(spawnPoint, shipRadius)
	d.sim.Collision.Channel(collision.Displayable).Evaluators.Set(e, collision.Evaluator{Shape: shipShape})
	d.sim.Collision.Channel(collision.Damaging).Evaluators.Set(e, collision.Evaluator{Shape: shipShape})
	d.sim.Viewport.ObjectTypes.Set(e, "ship")

	vp := viewport.NewViewport()
	d.sim.Viewport.Viewports.Set(e, vp)
	d.sim.Collision.Channel(collision.Displayable).Sources.Set(e, &collision.Source{
		Shape: geom.NewCircle(spawnPoint, viewportRadius), Collided: collision.NewConcurrentEntitySet(),
	})

	d.mu.Lock()
	d.byClient[e] = struct{}{}
	d.mu.Unlock()

	logger.Info("daemon: connection bound to new ship entity", "profile", profileID, "entity", uint64(e))
	return e, vp
}

// despawnConnection is the gateway's Unbind hook, called once a
// connection's tasks exit. Despawning routes through the world's
// command queue, so the entity's components are released on the next
// tick's drain.
func (d *Daemon) despawnConnection(e ecs.Entity) {
	d.mu.Lock()
	delete(d.byClient, e)
	d.mu.Unlock()
	d.sim.Despawn(e)
}

// handleControlInput is the gateway's per-frame control hook: it just
// forwards the held-key transition onto the entity's InputState, which
// ApplyPlayerControl reads once per tick.
func (d *Daemon) handleControlInput(e ecs.Entity, input wire.ControlInput) {
	state, ok := d.sim.Control.Inputs.Get(e)
	if !ok {
		return
	}
	state.Apply(input.Input, input.Pressed)
}

// handleFire is sim's OnFire hook (spec.md §4.3 step 2): it spawns a
// munition by pushing onto the world's structural command queue rather
// than mutating the entity store directly, since OnFire runs mid-phase
// under the control system's parallel iteration.
func (d *Daemon) handleFire(shooter ecs.Entity) {
	d.sim.World.Commands().Push(func() {
		pos, ok := d.sim.Motion.Position.Get(shooter)
		if !ok {
			return
		}
		rot, _ := d.sim.Motion.Rotation.Get(shooter)
		shooterVel, _ := d.sim.Motion.Velocity.Get(shooter)

		m := d.sim.World.Spawn()
		muzzle := motion.Vec2{
			X: float32(munitionSpeed*math.Cos(rot)) + shooterVel.X,
			Y: float32(munitionSpeed*math.Sin(rot)) + shooterVel.Y,
		}
		d.sim.Motion.Position.Set(m, pos)
		d.sim.Motion.Velocity.Set(m, muzzle)
		d.sim.Motion.Rotation.Set(m, rot)

		munitionShape := geom.NewCircle(pos, munitionRadius)
		d.sim.Collision.Channel(collision.Damaging).Sources.Set(m, &collision.Source{
			Shape: munitionShape, Collided: collision.NewConcurrentEntitySet(),
		})
		d.sim.Collision.Channel(collision.Displayable).Evaluators.Set(m, collision.Evaluator{Shape: munitionShape})
		d.sim.Viewport.ObjectTypes.Set(m, "munition")

		d.sim.Damage.Dealers.Set(m, damage.Dealer{
			Allegiance: shooter, HullDamage: munitionHull, ShieldDamage: munitionShield,
		})
		d.sim.Damage.Timeouts.Set(m, damage.Timeout{Remaining: munitionLifetime})
	})
}
