package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/owoblo/quote2move/internal/category"
	"github.com/owoblo/quote2move/internal/config"
	"github.com/owoblo/quote2move/internal/llm"
	"github.com/owoblo/quote2move/internal/model"
)

const detectSystemPrompt = `You build furniture and household inventories for a moving company from photos of one room. List every movable item a crew would carry: furniture, appliances, electronics, boxes, decor, exercise equipment. Count identical items with qty instead of repeating them. Estimate cubic feet and weight in pounds for one unit when you can; omit a number rather than guess wildly. Mention in notes anything that affects handling: wall-mounted, glass, antique, heavy, disassembly needed, upright or grand for pianos, screen size for TVs. Respond with a valid JSON object only: {"items": [{"label": "...", "qty": 1, "cubicFeet": 0, "weight": 0, "size": "small|medium|large", "notes": "..."}]}`

const detectUserPrompt = `Room: %s
Property: %s
%d photos of this room are attached. List the items.`

const defaultDetectConcurrency = 4

// RoomDetector infers the inventory of each classified room with one vision
// call per room.
type RoomDetector struct {
	client      llm.Client
	maxTokens   int
	temperature float64
	concurrency int
}

// NewRoomDetector creates a RoomDetector backed by client.
func NewRoomDetector(client llm.Client, cfg config.VisionConfig) *RoomDetector {
	n := cfg.DetectConcurrency
	if n <= 0 {
		n = defaultDetectConcurrency
	}
	return &RoomDetector{
		client:      client,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		concurrency: n,
	}
}

type detectReply struct {
	Items []struct {
		Label     string   `json:"label"`
		Qty       *float64 `json:"qty"`
		CubicFeet *float64 `json:"cubicFeet"`
		Weight    *float64 `json:"weight"`
		Size      string   `json:"size"`
		Notes     string   `json:"notes"`
	} `json:"items"`
}

// DetectRoom runs detection for a single room.
func (d *RoomDetector) DetectRoom(ctx context.Context, room model.Room, pc model.PropertyContext) ([]model.Detection, model.TokenUsage, error) {
	if len(room.Photos) == 0 {
		return []model.Detection{}, model.TokenUsage{}, nil
	}

	resp, err := d.client.Complete(ctx, llm.Request{
		Stage:       model.StageDetect,
		System:      detectSystemPrompt,
		Prompt:      fmt.Sprintf(detectUserPrompt, room.Name, describeProperty(pc), len(room.Photos)),
		ImageURLs:   room.Photos,
		MaxTokens:   d.maxTokens,
		Temperature: llm.Temperature(d.temperature),
	})
	if err != nil {
		return nil, model.TokenUsage{}, model.NewModelCallError(model.StageDetect,
			eris.Wrapf(err, "room %q", room.Name))
	}
	usage := usageOf(resp)

	var reply detectReply
	if err := llm.DecodeJSON(resp.Text, &reply); err != nil {
		return nil, usage, model.NewModelCallError(model.StageDetect,
			eris.Wrapf(err, "room %q", room.Name))
	}

	out := make([]model.Detection, 0, len(reply.Items))
	for _, it := range reply.Items {
		label := strings.TrimSpace(it.Label)
		if label == "" {
			continue
		}
		det := model.Detection{
			Label:     label,
			Qty:       sanitizeQty(it.Qty),
			CubicFeet: sanitizeMeasure(it.CubicFeet),
			Weight:    sanitizeMeasure(it.Weight),
			Size:      strings.TrimSpace(it.Size),
			Room:      room.Name,
			Notes:     strings.TrimSpace(it.Notes),
		}
		det.Category = string(category.Of(det))
		out = append(out, det)
	}
	return out, usage, nil
}

// DetectAll detects every room concurrently and concatenates the results in
// classification order. The first room failure aborts the whole phase.
func (d *RoomDetector) DetectAll(ctx context.Context, rooms model.RoomClassification, pc model.PropertyContext) ([]model.Detection, model.TokenUsage, error) {
	perRoom := make([][]model.Detection, len(rooms))

	var (
		mu    sync.Mutex
		usage model.TokenUsage
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, room := range rooms {
		g.Go(func() error {
			dets, u, err := d.DetectRoom(gCtx, room, pc)
			mu.Lock()
			usage.Add(u)
			mu.Unlock()
			if err != nil {
				return err
			}
			perRoom[i] = dets
			zap.L().Debug("pipeline: room detected",
				zap.String("room", room.Name),
				zap.Int("photos", len(room.Photos)),
				zap.Int("items", len(dets)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, usage, err
	}

	all := make([]model.Detection, 0)
	for _, dets := range perRoom {
		all = append(all, dets...)
	}
	return all, usage, nil
}

// maxItemQty caps a single detection's quantity.
const maxItemQty = 10000

// sanitizeQty rounds the reported quantity. Missing means one item,
// negative counts clamp to zero and huge counts clamp to maxItemQty.
func sanitizeQty(q *float64) int {
	if q == nil {
		return 1
	}
	v := *q
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	if v > maxItemQty {
		return maxItemQty
	}
	return int(math.Round(v))
}

// sanitizeMeasure drops non-finite or negative numbers to absent.
func sanitizeMeasure(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil
	}
	return model.Float(f)
}
