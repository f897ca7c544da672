package main

import (
	"context"
	"errors"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/watercontrol/internal/gpio"
	"github.com/sweeney/watercontrol/internal/logic"
	"github.com/sweeney/watercontrol/internal/mqtt"
	"github.com/sweeney/watercontrol/internal/status"
)

// loop owns the controller, the usage totals and the valve outputs. Every
// mutation of them happens on the goroutine running run.
type loop struct {
	ctrl    *logic.Controller
	usage   *logic.Usage
	pulses  *logic.PulseCounter
	valves  gpio.Valves
	pub     mqtt.Publisher
	conn    mqtt.ConnectionStatus // may be nil
	tracker *status.Tracker       // may be nil

	period    time.Duration
	backoff   time.Duration
	heartbeat time.Duration // 0 disables

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	lastHeartbeat time.Time
}

// run starts the controller, publishes the initial state and then ticks
// until a signal arrives. Commands are applied between ticks.
func (l *loop) run(ctx context.Context, commands <-chan logic.Command, sig <-chan os.Signal) error {
	l.ctrl.Start()
	l.lastHeartbeat = l.now()
	l.startup()

	timer := l.after(l.period)
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			l.shutdown(ctx, signalName(s))
			return nil

		case cmd := <-commands:
			if err := l.apply(cmd); err != nil {
				logTickError(err)
			}

		case <-timer:
			wait := l.period
			if err := l.tick(ctx); err != nil {
				logTickError(err)
				wait = l.backoff
				log.Printf("backing off for %v", wait)
			}
			timer = l.after(wait)
		}
	}
}

func (l *loop) startup() {
	snap := l.ctrl.Snapshot()
	if err := l.valves.Set(snap.MainOpen, snap.AutomaticOpen); err != nil {
		log.Printf("startup: %v", err)
	}
	l.updateTracker(snap)
	if err := l.pub.PublishStatus(mqtt.NewStatus(snap, l.usage.Totals())); err != nil {
		log.Printf("startup: %v", err)
	}
	l.publishSystem("STARTUP", "", true)
}

// tick drains the pulse counter, books the volume, advances the timers and
// mirrors the result. The outputs are written even when saving failed.
func (l *loop) tick(ctx context.Context) error {
	var errs []error

	if n := l.pulses.Drain(); n > 0 {
		totals, _, err := l.usage.ApplyPulses(ctx, n)
		if err != nil {
			errs = append(errs, err)
		}
		log.Printf("flow: %d pulses, total=%s session=%s", n,
			mqtt.FormatVolume(totals.Lifetime), mqtt.FormatVolume(totals.Session))
	}

	before := l.ctrl.Snapshot()
	snap, err := l.ctrl.Tick()
	if err != nil {
		errs = append(errs, err)
	}
	if snap != before {
		logTransition(before, snap)
	}

	errs = append(errs, l.mirror(snap)...)
	l.checkHeartbeat()
	return errors.Join(errs...)
}

// apply runs one external command and mirrors the result immediately.
func (l *loop) apply(cmd logic.Command) error {
	before := l.ctrl.Snapshot()
	res, err := l.ctrl.Command(cmd.Valve, cmd.On)
	if err != nil {
		return err
	}
	if res.SessionReset {
		l.usage.ResetSession()
	}
	logTransition(before, res.Snapshot)
	return errors.Join(l.mirror(res.Snapshot)...)
}

func (l *loop) mirror(snap logic.Snapshot) []error {
	var errs []error
	if err := l.valves.Set(snap.MainOpen, snap.AutomaticOpen); err != nil {
		errs = append(errs, err)
	}
	if err := l.pub.PublishStatus(mqtt.NewStatus(snap, l.usage.Totals())); err != nil {
		errs = append(errs, err)
	}
	l.updateTracker(snap)
	return errs
}

func (l *loop) updateTracker(snap logic.Snapshot) {
	if l.tracker == nil {
		return
	}
	l.tracker.Update(l.ctrl.Phase(), snap, l.usage.Totals(), l.usage.Unsaved())
	if l.conn != nil {
		l.tracker.SetMQTTConnected(l.conn.IsConnected())
	}
}

func (l *loop) checkHeartbeat() {
	if l.heartbeat <= 0 {
		return
	}
	t := l.now()
	if t.Sub(l.lastHeartbeat) < l.heartbeat {
		return
	}
	l.lastHeartbeat = t

	totals := l.usage.Totals()
	log.Printf("heartbeat: total=%s session=%s", mqtt.FormatVolume(totals.Lifetime), mqtt.FormatVolume(totals.Session))
	if l.tracker != nil {
		// Refresh network info for heartbeat
		if net := readNetworkInfo(); net != nil {
			l.tracker.SetNetwork(net)
		}
	}
	l.publishSystem("HEARTBEAT", "", false)
}

// shutdown closes both valves, retries an outstanding save and publishes
// the final state. It never fails; everything is best effort.
func (l *loop) shutdown(ctx context.Context, reason string) {
	snap := l.ctrl.Shutdown()
	if err := l.valves.Set(snap.MainOpen, snap.AutomaticOpen); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if err := l.usage.Flush(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	l.updateTracker(snap)
	if err := l.pub.PublishStatus(mqtt.NewStatus(snap, l.usage.Totals())); err != nil {
		log.Printf("shutdown: %v", err)
	}
	l.publishSystem("SHUTDOWN", reason, true)
}

func (l *loop) publishSystem(event, reason string, retained bool) {
	ev := mqtt.SystemEvent{
		Timestamp: l.now(),
		Event:     event,
		Reason:    reason,
		Retained:  retained,
	}
	if l.tracker != nil {
		ev.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), event, reason)
	}
	if err := l.pub.PublishSystem(ev); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
	} else {
		log.Printf("published %s event", event)
	}
}

func logTransition(before, after logic.Snapshot) {
	log.Printf("valves: main=%s(%t,%d) automatic=%s(%t,%d) -> main=%s(%t,%d) automatic=%s(%t,%d)",
		before.MainState(), before.MainOpen, before.MainRemaining,
		before.AutomaticState(), before.AutomaticOpen, before.AutomaticRemaining,
		after.MainState(), after.MainOpen, after.MainRemaining,
		after.AutomaticState(), after.AutomaticOpen, after.AutomaticRemaining)
}

// logTickError logs each joined error under its kind.
func logTickError(err error) {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	for _, e := range errs {
		var (
			perr  *logic.PersistenceError
			oerr  *gpio.OutputError
			fault *mqtt.ChannelFault
		)
		switch {
		case errors.As(e, &perr):
			log.Printf("persistence error: %v", perr)
		case errors.As(e, &oerr):
			log.Printf("valve output error: %v", oerr)
		case errors.As(e, &fault):
			log.Printf("command channel fault: %v", fault)
		case errors.Is(e, logic.ErrNotRunning):
			log.Printf("controller: %v", e)
		default:
			log.Printf("tick error: %v", e)
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
