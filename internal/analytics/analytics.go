// Package analytics computes the dashboard overview from session rows.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/sensei/internal/conversation"
	"github.com/MikeSquared-Agency/sensei/internal/synchronizer"
)

const (
	topTopicLimit    = 5
	interventionSize = 5
)

// Intervention severities, most urgent first.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
)

type Overview struct {
	Overview            Totals         `json:"overview"`
	Alerts              Alerts         `json:"alerts"`
	TopTopics           []TopicCount   `json:"topTopics"`
	PainPoints          []PainPoint    `json:"painPoints"`
	QualityDistribution Quality        `json:"qualityDistribution"`
	ContentGaps         []ContentGap   `json:"contentGaps"`
	InterventionQueue   []Intervention `json:"interventionQueue"`
}

type Totals struct {
	TotalSessions      int `json:"totalSessions"`
	TotalMessages      int `json:"totalMessages"`
	Classified         int `json:"classified"`
	Unclassified       int `json:"unclassified"`
	ResolutionRate     int `json:"resolutionRate"`
	PendingEnrollments int `json:"pendingEnrollments"`
}

type Alerts struct {
	FrustrationDetected int `json:"frustrationDetected"`
	EscalationNeeded    int `json:"escalationNeeded"`
	BugReported         int `json:"bugReported"`
}

type TopicCount struct {
	Topic      string `json:"topic"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

type PainPoint struct {
	Topic           string `json:"topic"`
	SessionCount    int    `json:"sessionCount"`
	FrustrationRate int    `json:"frustrationRate"`
	UnresolvedRate  int    `json:"unresolvedRate"`
	HighQualityRate int    `json:"highQualityRate"`
	AvgMessages     int    `json:"avgMessages"`
}

type Quality struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
	Spam   int `json:"spam"`
}

type ContentGap struct {
	Topic           string `json:"topic"`
	SessionCount    int    `json:"sessionCount"`
	FrustrationRate int    `json:"frustrationRate"`
	ResolutionRate  int    `json:"resolutionRate"`
	GapScore        int    `json:"gapScore"`
	Recommendation  string `json:"recommendation"`
}

type Intervention struct {
	SessionID      uuid.UUID `json:"sessionId"`
	ConversationID uuid.UUID `json:"conversationId"`
	Summary        string    `json:"summary"`
	Intent         string    `json:"intent"`
	Quality        string    `json:"quality"`
	Severity       string    `json:"severity"`
	HoursAgo       int       `json:"hoursAgo"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
	Topics         []string  `json:"topics"`
}

// ComputeOverview synchronizes sessions, then aggregates every session an
// admin has not marked as read.
func ComputeOverview(ctx context.Context, gw conversation.Gateway, logger *slog.Logger, now time.Time) (Overview, error) {
	if _, err := synchronizer.New(gw, logger).Synchronize(ctx); err != nil {
		return Overview{}, fmt.Errorf("synchronize: %w", err)
	}

	sessions, err := gw.ListSessions(ctx, conversation.SessionFilter{})
	if err != nil {
		return Overview{}, fmt.Errorf("list sessions: %w", err)
	}

	pending, err := gw.CountNewEnrollments(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("count new enrollments: %w", err)
	}

	visible := make([]conversation.Session, 0, len(sessions))
	for _, s := range sessions {
		if !s.IsRead() {
			visible = append(visible, s)
		}
	}
	return Compute(visible, pending, now), nil
}

// Compute is the pure aggregation over an already filtered session set.
func Compute(sessions []conversation.Session, pendingEnrollments int, now time.Time) Overview {
	out := Overview{
		Overview:          Totals{PendingEnrollments: pendingEnrollments},
		TopTopics:         []TopicCount{},
		PainPoints:        []PainPoint{},
		ContentGaps:       []ContentGap{},
		InterventionQueue: []Intervention{},
	}
	if len(sessions) == 0 {
		return out
	}

	var classified []conversation.Session
	for _, s := range sessions {
		out.Overview.TotalMessages += s.MessageCount
		if s.Classification != nil {
			classified = append(classified, s)
		}
	}
	out.Overview.TotalSessions = len(sessions)
	out.Overview.Classified = len(classified)
	out.Overview.Unclassified = len(sessions) - len(classified)

	resolved := 0
	for _, s := range classified {
		c := s.Classification
		if c.Flags.Resolved {
			resolved++
		}
		if c.Flags.FrustrationDetected {
			out.Alerts.FrustrationDetected++
		}
		if c.Flags.EscalationNeeded {
			out.Alerts.EscalationNeeded++
		}
		if c.Flags.BugReported {
			out.Alerts.BugReported++
		}
		switch c.Quality {
		case conversation.QualityHigh:
			out.QualityDistribution.High++
		case conversation.QualityMedium:
			out.QualityDistribution.Medium++
		case conversation.QualityLow:
			out.QualityDistribution.Low++
		case conversation.QualitySpam:
			out.QualityDistribution.Spam++
		}
	}
	out.Overview.ResolutionRate = percent(resolved, len(classified))

	out.TopTopics = topTopics(classified)
	for _, t := range out.TopTopics {
		out.PainPoints = append(out.PainPoints, painPoint(t.Topic, classified))
	}
	out.ContentGaps = contentGaps(out.PainPoints)
	out.InterventionQueue = interventionQueue(classified, now)
	return out
}

// topTopics counts topics in first-encounter order and keeps the most
// frequent. Ties keep encounter order.
func topTopics(classified []conversation.Session) []TopicCount {
	var order []string
	counts := make(map[string]int)
	for _, s := range classified {
		for _, t := range s.Classification.Topics {
			if _, ok := counts[t]; !ok {
				order = append(order, t)
			}
			counts[t]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > topTopicLimit {
		order = order[:topTopicLimit]
	}

	out := make([]TopicCount, 0, len(order))
	for _, t := range order {
		out = append(out, TopicCount{
			Topic:      t,
			Count:      counts[t],
			Percentage: percent(counts[t], len(classified)),
		})
	}
	return out
}

func painPoint(topic string, classified []conversation.Session) PainPoint {
	var n, frustrated, unresolved, high, messages int
	for _, s := range classified {
		c := s.Classification
		if !c.HasTopic(topic) {
			continue
		}
		n++
		messages += s.MessageCount
		if c.Flags.FrustrationDetected {
			frustrated++
		}
		if !c.Flags.Resolved {
			unresolved++
		}
		if c.Quality == conversation.QualityHigh {
			high++
		}
	}

	p := PainPoint{
		Topic:           topic,
		SessionCount:    n,
		FrustrationRate: percent(frustrated, n),
		UnresolvedRate:  percent(unresolved, n),
		HighQualityRate: percent(high, n),
	}
	if n > 0 {
		p.AvgMessages = round(float64(messages) / float64(n))
	}
	return p
}

func contentGaps(points []PainPoint) []ContentGap {
	out := make([]ContentGap, 0, len(points))
	for _, p := range points {
		resolution := 100 - p.UnresolvedRate
		score := GapScore(p.SessionCount, p.FrustrationRate, resolution)
		out = append(out, ContentGap{
			Topic:           p.Topic,
			SessionCount:    p.SessionCount,
			FrustrationRate: p.FrustrationRate,
			ResolutionRate:  resolution,
			GapScore:        score,
			Recommendation:  Recommendation(score),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GapScore > out[j].GapScore
	})
	return out
}

func interventionQueue(classified []conversation.Session, now time.Time) []Intervention {
	var flagged []conversation.Session
	for _, s := range classified {
		if NeedsIntervention(s.Classification) {
			flagged = append(flagged, s)
		}
	}
	sort.SliceStable(flagged, func(i, j int) bool {
		return flagged[i].LastMessageAt.After(flagged[j].LastMessageAt)
	})
	if len(flagged) > interventionSize {
		flagged = flagged[:interventionSize]
	}

	out := make([]Intervention, 0, len(flagged))
	for _, s := range flagged {
		c := s.Classification
		topics := c.Topics
		if topics == nil {
			topics = []string{}
		}
		out = append(out, Intervention{
			SessionID:      s.ID,
			ConversationID: s.ConversationID,
			Summary:        c.Summary,
			Intent:         c.Intent,
			Quality:        c.Quality,
			Severity:       Severity(c),
			HoursAgo:       round(now.Sub(s.LastMessageAt).Hours()),
			LastMessageAt:  s.LastMessageAt,
			Topics:         topics,
		})
	}
	return out
}
