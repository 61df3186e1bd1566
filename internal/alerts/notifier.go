// Package alerts emails subscribers when a county reaches their chosen fire
// danger level. Each (subscription, county, level) is alerted at most once per
// local day.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/lox/firerisk/internal/logging"
	"github.com/lox/firerisk/internal/metrics"
	"github.com/lox/firerisk/internal/models"
	"github.com/lox/firerisk/internal/risk"
)

// DefaultMinLevel applies when a subscription does not name a level.
const DefaultMinLevel = risk.High

// ErrInvalidLevel is returned for a minimum level that is not one of the five.
var ErrInvalidLevel = errors.New("invalid danger level")

// ParseMinLevel validates a subscription's minimum level. Empty means High.
func ParseMinLevel(s string) (risk.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultMinLevel, nil
	}
	l, ok := risk.ParseLevel(s)
	if !ok {
		return risk.Unknown, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
	return l, nil
}

// Repository is the subscription storage. *store.Store implements it.
type Repository interface {
	Subscriptions() ([]models.AlertSubscription, error)
	ClaimAlert(subID int64, county, level string, now time.Time) (bool, error)
	ReleaseAlert(subID int64, county, level string, now time.Time) error
}

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Notifier matches fresh fire data against subscriptions.
type Notifier struct {
	repo   Repository
	mailer Mailer
	clock  clockwork.Clock
	policy risk.Policy
	log    *logrus.Entry
}

// NewNotifier creates a notifier. Levels are resolved with policy so alerts
// agree with what the dashboard shows.
func NewNotifier(repo Repository, mailer Mailer, clock clockwork.Clock, policy risk.Policy) *Notifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Notifier{
		repo:   repo,
		mailer: mailer,
		clock:  clock,
		policy: policy,
		log:    logging.For("alerts"),
	}
}

// Evaluate sends every alert due for records and reports how many went out. A
// failed delivery is released so the next fetch retries it.
func (n *Notifier) Evaluate(ctx context.Context, records []models.CountyRiskRecord) (int, error) {
	subs, err := n.repo.Subscriptions()
	if err != nil {
		return 0, fmt.Errorf("load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	now := n.clock.Now()
	sent := 0
	var errs []error
	for _, r := range records {
		band := risk.ResolveRecord(r, n.policy)
		if band.Level == risk.Unknown {
			continue
		}
		for _, sub := range subs {
			if !sub.Matches(r.County) {
				continue
			}
			min, err := ParseMinLevel(sub.MinLevel)
			if err != nil {
				min = DefaultMinLevel
			}
			if !band.Level.AtLeast(min) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return sent, errors.Join(append(errs, err)...)
			}

			ok, err := n.deliver(ctx, sub, r, band, now)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				sent++
			}
		}
	}
	return sent, errors.Join(errs...)
}

func (n *Notifier) deliver(ctx context.Context, sub models.AlertSubscription, r models.CountyRiskRecord, band risk.Band, now time.Time) (bool, error) {
	claimed, err := n.repo.ClaimAlert(sub.ID, r.County, band.Label, now)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	log := n.log.WithFields(logrus.Fields{
		"county": r.County,
		"level":  band.Label,
		"email":  sub.Email,
	})
	subject, body := Message(r, band)
	if err := n.mailer.Send(ctx, sub.Email, subject, body); err != nil {
		metrics.AlertsSentTotal.WithLabelValues("failure").Inc()
		log.WithError(err).Warn("alert delivery failed")
		if rerr := n.repo.ReleaseAlert(sub.ID, r.County, band.Label, now); rerr != nil {
			log.WithError(rerr).Error("release alert claim")
		}
		return false, fmt.Errorf("send alert to %s: %w", sub.Email, err)
	}

	metrics.AlertsSentTotal.WithLabelValues("sent").Inc()
	log.Info("alert sent")
	return true, nil
}

// Message renders the alert email for a county.
func Message(r models.CountyRiskRecord, band risk.Band) (subject, body string) {
	subject = fmt.Sprintf("%s Fire Danger: %s County", band.Label, r.County)

	var b strings.Builder
	fmt.Fprintf(&b, "%s County currently has %s fire danger, proactive measures may be required.\n", r.County, strings.ToLower(band.Label))
	if r.RiskScore.Valid {
		fmt.Fprintf(&b, "\nRisk score: %.1f / 10", r.RiskScore.Float64)
	}
	if r.TemperatureF.Valid {
		fmt.Fprintf(&b, "\nTemperature: %.0f°F", r.TemperatureF.Float64)
	}
	if r.RelativeHumidity.Valid {
		fmt.Fprintf(&b, "\nHumidity: %.0f%%", r.RelativeHumidity.Float64)
	}
	if r.WindSpeed != "" {
		fmt.Fprintf(&b, "\nWind: %s %s", r.WindSpeed, r.WindDirection)
	}
	if r.Conditions != "" {
		fmt.Fprintf(&b, "\nConditions: %s", r.Conditions)
	}
	if r.ActiveFiresNearby.Valid {
		fmt.Fprintf(&b, "\nActive fires nearby: %d", r.ActiveFiresNearby.Int64)
	}
	b.WriteString("\n")
	return subject, b.String()
}
