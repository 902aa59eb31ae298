package main

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/tjfontaine/behavior-verify-gateway/internal/collector"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/validation"
)

type profile string

const (
	profileHuman profile = "human"
	profileBot   profile = "bot"
)

var humanAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:131.0) Gecko/20100101 Firefox/131.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36 Edg/129.0.0.0",
}

var botAgents = []string{
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36 Selenium/4.25",
	"python-requests/2.32.3",
}

// generator builds sessions against a virtual clock so a ten second session
// takes no wall time.
type generator struct {
	faker  *gofakeit.Faker
	logger *slog.Logger
	now    time.Time
}

func newGenerator(seed uint64, logger *slog.Logger) *generator {
	return &generator{
		faker:  gofakeit.New(seed),
		logger: logger,
		now:    time.Now().UTC(),
	}
}

func (g *generator) clock() time.Time { return g.now }

func (g *generator) advance(d time.Duration) time.Time {
	g.now = g.now.Add(d)
	return g.now
}

// request builds one /verify body for the profile.
func (g *generator) request(p profile) (*validation.VerifyRequest, error) {
	// Sessions end "now" on the server side; start them in the past.
	g.now = time.Now().UTC().Add(-time.Minute)

	device := domain.DeviceContext{
		DeviceClass:          domain.DeviceDesktop,
		PixelRatio:           1,
		ZoomLevel:            1,
		OrientationSupported: false,
	}
	switch p {
	case profileBot:
		device.UserAgent = g.faker.RandomString(botAgents)
	default:
		device.UserAgent = g.faker.RandomString(humanAgents)
	}

	c := collector.New(g.faker.UUID(), device, collector.WithClock(g.clock), collector.WithLogger(g.logger))
	defer c.Close()

	var err error
	switch p {
	case profileBot:
		err = g.botSession(c)
	default:
		err = g.humanSession(c)
	}
	if err != nil {
		return nil, err
	}

	session, err := c.Finalize()
	if err != nil {
		return nil, fmt.Errorf("finalize session: %w", err)
	}
	payload, err := collector.EncodePayload(session)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	return &validation.VerifyRequest{
		SubmissionID: g.faker.UUID(),
		FormData: validation.FormData{
			Identifier:      g.faker.Email(),
			CredentialProof: g.faker.Password(true, true, true, false, false, 16),
		},
		UserBehaviorData: payload,
	}, nil
}

// humanSession: an eased curved pointer path with jittered sampling, a few
// hovers and scrolls, and typing with uneven cadence.
func (g *generator) humanSession(c *collector.Collector) error {
	c.SetFingerprint(fmt.Sprintf("fp-%x", g.faker.Uint32()))
	g.advance(time.Duration(g.faker.Number(800, 2500)) * time.Millisecond)

	startX, startY := g.faker.Float64Range(50, 400), g.faker.Float64Range(50, 300)
	endX, endY := g.faker.Float64Range(500, 900), g.faker.Float64Range(300, 600)
	samples := g.faker.Number(60, 140)
	for i := 0; i <= samples; i++ {
		t := float64(i) / float64(samples)
		eased := t * t * (3 - 2*t)
		bend := math.Sin(t*math.Pi) * g.faker.Float64Range(20, 60)
		ts := g.advance(time.Duration(g.faker.Number(14, 45)) * time.Millisecond)
		if err := c.Record(domain.RawInteractionEvent{
			Kind:      domain.EventPointerMove,
			Timestamp: ts,
			Pointer: &domain.Point{
				X: startX + (endX-startX)*eased + g.faker.Float64Range(-2, 2),
				Y: startY + (endY-startY)*eased - bend + g.faker.Float64Range(-2, 2),
			},
		}); err != nil {
			return err
		}
		if i == samples/2 {
			if err := c.MouseEnter("#identifier"); err != nil {
				return err
			}
		}
	}
	if err := c.MouseLeave("#identifier"); err != nil {
		return err
	}

	scrollTop := 0.0
	for i := 0; i < g.faker.Number(2, 5); i++ {
		scrollTop += g.faker.Float64Range(40, 180)
		if err := c.Record(domain.RawInteractionEvent{
			Kind:      domain.EventScroll,
			Timestamp: g.advance(time.Duration(g.faker.Number(60, 220)) * time.Millisecond),
			Scroll:    &domain.ScrollPayload{ScrollTop: scrollTop},
		}); err != nil {
			return err
		}
	}

	// Pause before typing; the idle ticker sees it.
	g.advance(time.Duration(g.faker.Number(1200, 3000)) * time.Millisecond)
	c.Tick(g.now)

	keys := g.faker.Number(8, 18)
	for i := 0; i < keys; i++ {
		key := string(rune('a' + g.faker.Number(0, 25)))
		down := g.advance(time.Duration(g.faker.Number(90, 320)) * time.Millisecond)
		if err := c.Record(domain.RawInteractionEvent{Kind: domain.EventKeyDown, Timestamp: down, Key: &domain.KeyPayload{Key: key}}); err != nil {
			return err
		}
		up := g.advance(time.Duration(g.faker.Number(60, 140)) * time.Millisecond)
		if err := c.Record(domain.RawInteractionEvent{Kind: domain.EventKeyUp, Timestamp: up, Key: &domain.KeyPayload{Key: key}}); err != nil {
			return err
		}
	}

	if err := c.Record(domain.RawInteractionEvent{
		Kind:      domain.EventClick,
		Timestamp: g.advance(time.Duration(g.faker.Number(400, 900)) * time.Millisecond),
		Pointer:   &domain.Point{X: endX, Y: endY},
	}); err != nil {
		return err
	}
	g.advance(time.Duration(g.faker.Number(150, 400)) * time.Millisecond)
	return nil
}

// botSession: a straight constant-speed pointer line, metronomic keystrokes
// with near-zero holds and a submission well under two seconds. No
// fingerprint is collected.
func (g *generator) botSession(c *collector.Collector) error {
	g.advance(50 * time.Millisecond)

	for i := 0; i < 20; i++ {
		if err := c.Record(domain.RawInteractionEvent{
			Kind:      domain.EventPointerMove,
			Timestamp: g.advance(5 * time.Millisecond),
			Pointer:   &domain.Point{X: float64(100 + i*10), Y: 200},
		}); err != nil {
			return err
		}
	}

	for i := 0; i < 12; i++ {
		key := string(rune('a' + i))
		if err := c.Record(domain.RawInteractionEvent{Kind: domain.EventKeyDown, Timestamp: g.advance(10 * time.Millisecond), Key: &domain.KeyPayload{Key: key}}); err != nil {
			return err
		}
		if err := c.Record(domain.RawInteractionEvent{Kind: domain.EventKeyUp, Timestamp: g.advance(2 * time.Millisecond), Key: &domain.KeyPayload{Key: key}}); err != nil {
			return err
		}
	}

	if err := c.Record(domain.RawInteractionEvent{
		Kind:      domain.EventClick,
		Timestamp: g.advance(5 * time.Millisecond),
		Pointer:   &domain.Point{X: 290, Y: 200},
	}); err != nil {
		return err
	}
	g.advance(20 * time.Millisecond)
	return nil
}
