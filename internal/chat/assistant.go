package chat

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"

	"github.com/lox/firerisk/internal/logging"
	"github.com/lox/firerisk/internal/models"
	"github.com/lox/firerisk/internal/risk"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

const systemPrompt = `You are a wildfire risk assistant for California counties.
Answer using only the county data below. Danger levels from lowest to highest are
Low, Moderate, Elevated, High and Very High. If a county is not listed, say you have
no data for it. Keep answers short and practical.`

// Records returns the fire data the assistant should ground its answers on.
type Records func() []models.CountyRiskRecord

// Assistant answers with an OpenAI chat model.
type Assistant struct {
	client  openai.Client
	model   string
	records Records
	policy  risk.Policy
	log     *logrus.Entry
}

// NewAssistant creates an assistant. Extra request options (base URL, retries)
// are passed through to the OpenAI client.
func NewAssistant(apiKey, model string, records Records, policy risk.Policy, opts ...option.RequestOption) (*Assistant, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key not set")
	}
	if model == "" {
		model = DefaultModel
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &Assistant{
		client:  client,
		model:   model,
		records: records,
		policy:  policy,
		log:     logging.For("chat"),
	}, nil
}

func (a *Assistant) Name() string { return "openai" }

func (a *Assistant) Reply(ctx context.Context, message string) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt + "\n\n" + Briefing(a.records(), a.policy)),
			openai.UserMessage(message),
		},
	})
	if err != nil {
		observe(a.Name(), err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("chat completion returned no choices")
		observe(a.Name(), err)
		return "", err
	}
	observe(a.Name(), nil)

	a.log.WithFields(logrus.Fields{
		"model":  a.model,
		"tokens": resp.Usage.TotalTokens,
	}).Debug("chat completion")
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Briefing renders records as one line per county, most dangerous first.
func Briefing(records []models.CountyRiskRecord, policy risk.Policy) string {
	if len(records) == 0 {
		return "No county data is currently available."
	}

	type row struct {
		rec  models.CountyRiskRecord
		band risk.Band
	}
	rows := make([]row, 0, len(records))
	for _, r := range records {
		rows = append(rows, row{r, risk.ResolveRecord(r, policy)})
	}
	slices.SortStableFunc(rows, func(a, b row) int {
		if c := cmp.Compare(b.band.Level, a.band.Level); c != 0 {
			return c
		}
		return cmp.Compare(a.rec.County, b.rec.County)
	})

	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "- %s: %s", r.rec.County, r.band.Label)
		if r.rec.RiskScore.Valid {
			fmt.Fprintf(&b, ", score %.1f", r.rec.RiskScore.Float64)
		}
		if r.rec.TemperatureF.Valid {
			fmt.Fprintf(&b, ", %.0f°F", r.rec.TemperatureF.Float64)
		}
		if r.rec.RelativeHumidity.Valid {
			fmt.Fprintf(&b, ", %.0f%% humidity", r.rec.RelativeHumidity.Float64)
		}
		if r.rec.WindSpeed != "" {
			fmt.Fprintf(&b, ", wind %s", strings.TrimSpace(r.rec.WindSpeed+" "+r.rec.WindDirection))
		}
		if r.rec.DroughtLevel != "" {
			fmt.Fprintf(&b, ", drought %s", r.rec.DroughtLevel)
		}
		if r.rec.ActiveFiresNearby.Valid {
			fmt.Fprintf(&b, ", %d active fires nearby", r.rec.ActiveFiresNearby.Int64)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
