package estimate

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/owoblo/quote2move/internal/category"
	"github.com/owoblo/quote2move/internal/llm"
	"github.com/owoblo/quote2move/internal/model"
)

const judgmentSystemPrompt = `You are an experienced residential move coordinator. You review an inventory and the access conditions at both ends of a move and give your professional judgment. You do not price the move and you do not compute hours; the company does that. Respond with a valid JSON object only:
{
  "recommendedCrew": <integer 2-6>,
  "elevatorWaitsExpected": <true|false>,
  "hoistingFloors": <integer, floors an item must be hoisted outside the building, usually 0>,
  "specialtyNotes": [{"label": "<inventory label>", "note": "<e.g. grand piano, upright piano, safe over 300 lb>"}],
  "rationale": "<two or three sentences for the customer>",
  "upsells": [{"id": "<kebab-case id>", "name": "...", "description": "...", "price": <USD>, "required": <true|false>}]
}`

// Judgment is the model's soft input to an estimate. Nothing here is
// trusted as a price or a duration.
type Judgment struct {
	RecommendedCrew       int
	ElevatorWaitsExpected bool
	HoistingFloors        int
	SpecialtyNotes        map[string]string
	Rationale             string
	Upsells               []model.DetectedUpsell
}

type judgmentReply struct {
	RecommendedCrew       *float64 `json:"recommendedCrew"`
	ElevatorWaitsExpected *bool    `json:"elevatorWaitsExpected"`
	HoistingFloors        *float64 `json:"hoistingFloors"`
	SpecialtyNotes        []struct {
		Label string `json:"label"`
		Note  string `json:"note"`
	} `json:"specialtyNotes"`
	Rationale string `json:"rationale"`
	Upsells   []struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Price       *float64 `json:"price"`
		Required    bool     `json:"required"`
	} `json:"upsells"`
}

const maxHoistingFloors = 10

// requestJudgment asks the model for its judgment. The reply is sanitized:
// crew outside 2..6 is replaced by the volume-derived crew, and non-finite or
// negative numbers are dropped.
func requestJudgment(ctx context.Context, client llm.Client, opts callOptions, totals model.VolumeTotals, trip model.Trip) (Judgment, model.TokenUsage, error) {
	resp, err := client.Complete(ctx, llm.Request{
		Stage:       model.StageEstimate,
		System:      judgmentSystemPrompt,
		Prompt:      judgmentPrompt(totals, trip),
		MaxTokens:   opts.maxTokens,
		Temperature: llm.Temperature(opts.temperature),
	})
	if err != nil {
		return Judgment{}, model.TokenUsage{}, model.NewModelCallError(model.StageEstimate, err)
	}
	usage := model.TokenUsage{
		InputTokens:  resp.Usage.Input + resp.Usage.CacheRead + resp.Usage.CacheWrite,
		OutputTokens: resp.Usage.Output,
		CostUSD:      resp.CostUSD,
	}

	var reply judgmentReply
	if err := llm.DecodeJSON(resp.Text, &reply); err != nil {
		return Judgment{}, usage, model.NewModelCallError(model.StageEstimate, err)
	}
	return sanitizeJudgment(reply, totals), usage, nil
}

func sanitizeJudgment(r judgmentReply, totals model.VolumeTotals) Judgment {
	j := Judgment{
		RecommendedCrew:       CrewForVolume(totals.TotalCubicFeet),
		ElevatorWaitsExpected: true,
		SpecialtyNotes:        make(map[string]string),
		Rationale:             strings.TrimSpace(r.Rationale),
	}
	if c := r.RecommendedCrew; c != nil && finiteNonNeg(*c) && *c == math.Trunc(*c) && *c >= MinCrew && *c <= MaxCrew {
		j.RecommendedCrew = int(*c)
	}
	if r.ElevatorWaitsExpected != nil {
		j.ElevatorWaitsExpected = *r.ElevatorWaitsExpected
	}
	if h := r.HoistingFloors; h != nil && finiteNonNeg(*h) {
		j.HoistingFloors = int(math.Min(math.Round(*h), maxHoistingFloors))
	}
	for _, n := range r.SpecialtyNotes {
		label := strings.ToLower(strings.TrimSpace(n.Label))
		if label != "" && strings.TrimSpace(n.Note) != "" {
			j.SpecialtyNotes[label] = strings.ToLower(strings.TrimSpace(n.Note))
		}
	}
	for _, u := range r.Upsells {
		id := slugID(u.ID)
		if id == "" {
			id = slugID(u.Name)
		}
		if id == "" {
			continue
		}
		price := 0.0
		if u.Price != nil && finiteNonNeg(*u.Price) {
			price = round2(*u.Price)
		}
		j.Upsells = append(j.Upsells, model.DetectedUpsell{
			ID:          id,
			Name:        strings.TrimSpace(u.Name),
			Description: strings.TrimSpace(u.Description),
			Price:       price,
			Required:    u.Required,
		})
	}
	return j
}

// CrewForVolume derives a crew size from total cubic feet.
func CrewForVolume(cuft float64) int {
	switch {
	case cuft <= 400:
		return 2
	case cuft <= 900:
		return 3
	case cuft <= 1500:
		return 4
	case cuft <= 2500:
		return 5
	default:
		return 6
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugID(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func judgmentPrompt(totals model.VolumeTotals, trip model.Trip) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Inventory: %d items, %.0f cu ft, %.0f lb total.\n", totals.ItemCount, totals.TotalCubicFeet, totals.TotalWeight)
	for _, d := range totals.Detections {
		fmt.Fprintf(&b, "- %s x%d", d.Label, d.Qty)
		if d.Room != "" {
			fmt.Fprintf(&b, " [%s]", d.Room)
		}
		if c := category.Of(d); c != category.None {
			fmt.Fprintf(&b, " (%s)", c)
		}
		if d.ResolvedWeight > 0 {
			fmt.Fprintf(&b, " ~%.0f lb each", d.ResolvedWeight)
		}
		if d.Notes != "" {
			fmt.Fprintf(&b, " notes: %s", d.Notes)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Trip: %.1f miles, %.0f minutes one way.\n", trip.DistanceMiles, trip.TravelMinutes)
	fmt.Fprintf(&b, "Origin: %s\n", describeEndpoint(trip.Origin))
	fmt.Fprintf(&b, "Destination: %s\n", describeEndpoint(trip.Destination))
	return b.String()
}

func describeEndpoint(e model.Endpoint) string {
	building := string(e.Building)
	if building == "" {
		building = "unknown building"
	}
	parts := []string{building, fmt.Sprintf("floor %d", e.FloorNumber())}
	if e.Stairs {
		parts = append(parts, "stairs")
	}
	if e.Elevator {
		parts = append(parts, "elevator")
	}
	if e.Parking != "" {
		parts = append(parts, "parking "+string(e.Parking))
	}
	return strings.Join(parts, ", ")
}
