package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/owoblo/quote2move/internal/config"
	"github.com/owoblo/quote2move/internal/llm"
	"github.com/owoblo/quote2move/internal/model"
)

const classifySystemPrompt = `You sort photos of a home into rooms for a moving company. Every photo belongs to exactly one room. Use short, conventional room names such as "Living Room", "Kitchen", "Primary Bedroom", "Bedroom 2", "Garage", "Basement", "Office". Photos showing the same space must share one room. Respond with a valid JSON object only: {"rooms": [{"name": "<room name>", "photos": [<photo index>, ...]}]}`

const classifyUserPrompt = `Property: %s
%d photos are attached in order, indexed from 0 to %d.
Group every photo index into a room.`

// RoomClassifier groups photo references into named rooms with one vision call.
type RoomClassifier struct {
	client      llm.Client
	maxTokens   int
	temperature float64
}

// NewRoomClassifier creates a RoomClassifier backed by client.
func NewRoomClassifier(client llm.Client, cfg config.VisionConfig) *RoomClassifier {
	return &RoomClassifier{client: client, maxTokens: cfg.MaxTokens, temperature: cfg.Temperature}
}

type classifyReply struct {
	Rooms []struct {
		Name   string `json:"name"`
		Photos []int  `json:"photos"`
	} `json:"rooms"`
}

// Classify returns the ordered room → photos mapping. Every input photo
// appears exactly once in the result. Any model failure is returned as a
// ModelCallError and no partial mapping is produced.
func (c *RoomClassifier) Classify(ctx context.Context, photos []string, pc model.PropertyContext) (model.RoomClassification, model.TokenUsage, error) {
	if len(photos) == 0 {
		return nil, model.TokenUsage{}, model.NewValidationError("photoUrls", "is required")
	}

	resp, err := c.client.Complete(ctx, llm.Request{
		Stage:       model.StageClassify,
		System:      classifySystemPrompt,
		Prompt:      fmt.Sprintf(classifyUserPrompt, describeProperty(pc), len(photos), len(photos)-1),
		ImageURLs:   photos,
		MaxTokens:   c.maxTokens,
		Temperature: llm.Temperature(c.temperature),
	})
	if err != nil {
		return nil, model.TokenUsage{}, model.NewModelCallError(model.StageClassify, err)
	}
	usage := usageOf(resp)

	var reply classifyReply
	if err := llm.DecodeJSON(resp.Text, &reply); err != nil {
		return nil, usage, model.NewModelCallError(model.StageClassify, err)
	}
	if len(reply.Rooms) == 0 {
		return nil, usage, model.NewModelCallError(model.StageClassify,
			eris.Wrap(model.ErrMalformedOutput, "reply has no rooms"))
	}

	groups := make([]roomGroup, len(reply.Rooms))
	for i, r := range reply.Rooms {
		groups[i] = roomGroup{name: r.Name, photos: r.Photos}
	}
	rc := reconcileRooms(photos, groups)

	zap.L().Debug("pipeline: rooms classified",
		zap.Int("photos", len(photos)),
		zap.Int("rooms", len(rc)),
	)
	return rc, usage, nil
}

type roomGroup struct {
	name   string
	photos []int
}

// normalizeRoomName collapses whitespace and title-cases name.
func normalizeRoomName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return cases.Title(language.English).String(name)
}

// reconcileRooms turns raw model groups into a RoomClassification where
// each photo appears once. Out-of-range indices are ignored, a photo keeps
// the first room it was assigned to, rooms with the same normalized name
// merge, empty rooms are dropped and leftovers go to Unclassified.
func reconcileRooms(photos []string, groups []roomGroup) model.RoomClassification {
	assigned := make([]bool, len(photos))
	index := make(map[string]int)
	var rooms model.RoomClassification

	for _, g := range groups {
		name := normalizeRoomName(g.name)
		if name == "" || strings.EqualFold(name, model.UnclassifiedRoom) {
			name = model.UnclassifiedRoom
		}

		var picked []string
		for _, idx := range g.photos {
			if idx < 0 || idx >= len(photos) || assigned[idx] {
				continue
			}
			assigned[idx] = true
			picked = append(picked, photos[idx])
		}
		if len(picked) == 0 {
			continue
		}

		if pos, ok := index[name]; ok {
			rooms[pos].Photos = append(rooms[pos].Photos, picked...)
			continue
		}
		index[name] = len(rooms)
		rooms = append(rooms, model.Room{Name: name, Photos: picked})
	}

	var leftover []string
	for i, ok := range assigned {
		if !ok {
			leftover = append(leftover, photos[i])
		}
	}

	// Unclassified always sorts last.
	if pos, ok := index[model.UnclassifiedRoom]; ok {
		u := rooms[pos]
		rooms = append(rooms[:pos], rooms[pos+1:]...)
		u.Photos = append(u.Photos, leftover...)
		rooms = append(rooms, u)
	} else if len(leftover) > 0 {
		rooms = append(rooms, model.Room{Name: model.UnclassifiedRoom, Photos: leftover})
	}
	return rooms
}

func describeProperty(pc model.PropertyContext) string {
	var parts []string
	if pc.PropertyType != "" {
		parts = append(parts, string(pc.PropertyType))
	}
	if b := pc.BedroomCount(); b > 0 {
		parts = append(parts, fmt.Sprintf("%d bedrooms", b))
	}
	if b := pc.BathroomCount(); b > 0 {
		parts = append(parts, fmt.Sprintf("%g bathrooms", b))
	}
	if sq := pc.SquareFeet(); sq > 0 {
		parts = append(parts, fmt.Sprintf("%d sq ft", sq))
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, ", ")
}

func usageOf(resp *llm.Response) model.TokenUsage {
	if resp == nil {
		return model.TokenUsage{}
	}
	return model.TokenUsage{
		InputTokens:  resp.Usage.Input + resp.Usage.CacheRead + resp.Usage.CacheWrite,
		OutputTokens: resp.Usage.Output,
		CostUSD:      resp.CostUSD,
	}
}
