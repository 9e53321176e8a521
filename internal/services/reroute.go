package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ersnlabs/navcore/internal/lib/deviation"
	"github.com/ersnlabs/navcore/internal/lib/route"
)

// RouteProvider computes a replacement route from the agent's current
// position. The anchor is the last confirmed-on-route context when one
// exists; providers may use it to bias the new route back toward the
// original corridor.
type RouteProvider interface {
	Reroute(ctx context.Context, current route.Location, anchor deviation.LastKnownGood, anchorValid bool, original *route.Route) (*route.Route, error)
}

// RerouteCoordinator turns the tracker's level-triggered deviation events
// into debounced reroute requests. The deviation signal fires on every
// qualifying update while the agent is adrift; the coordinator collapses
// that stream into at most one in-flight request and at most one request per
// minimum interval.
type RerouteCoordinator struct {
	tracker  *Tracker
	provider RouteProvider
	minGap   time.Duration
	timeout  time.Duration

	mu          sync.Mutex
	inFlight    bool
	lastRequest time.Time

	// now is swappable for tests
	now func() time.Time
}

// NewRerouteCoordinator creates a coordinator bound to a tracker and a
// route provider
func NewRerouteCoordinator(tracker *Tracker, provider RouteProvider, minGap, timeout time.Duration) *RerouteCoordinator {
	if minGap <= 0 {
		minGap = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RerouteCoordinator{
		tracker:  tracker,
		provider: provider,
		minGap:   minGap,
		timeout:  timeout,
		now:      time.Now,
	}
}

// HandleDeviation processes one deviation event. Returns true if a reroute
// request was launched, false if it was debounced. The request itself runs
// in the background; the outcome arrives on the tracker's event channel as
// either a reroute-applied or a reroute-failed event.
func (c *RerouteCoordinator) HandleDeviation(dev *deviation.Deviation, original *route.Route) bool {
	if dev == nil || original == nil {
		return false
	}

	c.mu.Lock()
	now := c.now()
	if c.inFlight || (!c.lastRequest.IsZero() && now.Sub(c.lastRequest) < c.minGap) {
		c.mu.Unlock()
		return false
	}
	c.inFlight = true
	c.lastRequest = now
	c.mu.Unlock()

	log.Printf("Requesting reroute: %.0fm from route %s", dev.DistanceFromRoute, original.ID)
	go c.request(dev, original)
	return true
}

func (c *RerouteCoordinator) request(dev *deviation.Deviation, original *route.Route) {
	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	newRoute, err := c.provider.Reroute(ctx, dev.Location, dev.Anchor, dev.AnchorValid, original)
	if err != nil {
		log.Printf("Reroute request failed: %v", err)
		c.tracker.reportRerouteFailure(err)
		return
	}

	if err := c.tracker.ApplyReroute(newRoute); err != nil {
		// Session ended while the request was in flight
		log.Printf("Discarding reroute result: %v", err)
	}
}

// Run consumes the tracker's event channel, forwarding deviation events to
// HandleDeviation and passing every event through to out. It returns when
// the tracker's channel closes or ctx is cancelled. Passing a nil out
// channel just drives rerouting.
func (c *RerouteCoordinator) Run(ctx context.Context, out chan<- Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.tracker.Events():
			if !ok {
				return
			}
			if ev.Kind == EventRouteDeviation && ev.Deviation != nil && ev.Snapshot != nil {
				c.HandleDeviation(ev.Deviation, ev.Snapshot.Route)
			}
			if out != nil {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
