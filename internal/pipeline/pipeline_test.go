package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owoblo/quote2move/internal/config"
	"github.com/owoblo/quote2move/internal/llm"
	"github.com/owoblo/quote2move/internal/metrics"
	"github.com/owoblo/quote2move/internal/model"
	"github.com/owoblo/quote2move/internal/store"
)

func newMemoryStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewMemory()
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

// stagedClient answers classify and detect calls with canned replies.
func stagedClient(classify string, rooms map[string]string) llm.ClientFunc {
	return func(_ context.Context, req llm.Request) (*llm.Response, error) {
		switch req.Stage {
		case model.StageClassify:
			return &llm.Response{Text: classify, CostUSD: 0.01}, nil
		case model.StageDetect:
			for room, reply := range rooms {
				if strings.Contains(req.Prompt, "Room: "+room+"\n") {
					return &llm.Response{Text: reply, CostUSD: 0.02}, nil
				}
			}
		}
		return nil, errors.New("unexpected request")
	}
}

func TestPipeline_Run(t *testing.T) {
	st := newMemoryStore(t)
	client := stagedClient(
		`{"rooms":[{"name":"Living Room","photos":[0,1]},{"name":"Bedroom","photos":[2]}]}`,
		map[string]string{
			"Living Room": `{"items":[{"label":"Sofa","qty":1,"cubicFeet":35},{"label":"Coffee Table","qty":1}]}`,
			"Bedroom":     `{"items":[{"label":"Queen Bed","qty":1},{"label":"Dresser","qty":1}]}`,
		},
	)
	p := New(config.VisionConfig{DetectConcurrency: 2}, client, st, metrics.New())

	res, err := p.Run(context.Background(), DetectionRequest{
		PhotoURLs:       []string{"https://img/1.jpg", "https://img/2.jpg", "https://img/3.jpg"},
		PropertyContext: model.PropertyContext{Bedrooms: intp(1), PropertyType: model.PropertyApartment},
	})
	require.NoError(t, err)

	require.Len(t, res.Detections, 4)
	assert.Equal(t, "Sofa", res.Detections[0].Label)
	assert.Equal(t, "Living Room", res.Detections[0].Room)
	assert.Equal(t, "Queen Bed", res.Detections[2].Label)
	assert.Empty(t, res.Validation.Anomalies)

	assert.Equal(t, 2, res.Metadata.TotalRooms)
	assert.Equal(t, 3, res.Metadata.TotalPhotos)
	assert.Equal(t, model.PropertyApartment, res.Metadata.PropertyContext.PropertyType)

	require.Len(t, res.Phases, 3)
	assert.Equal(t, PhaseClassify, res.Phases[0].Name)
	assert.Equal(t, PhaseDetect, res.Phases[1].Name)
	assert.Equal(t, PhaseValidate, res.Phases[2].Name)
	assert.InDelta(t, 0.05, res.Usage.CostUSD, 1e-9)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, model.RunKindDetection, run.Kind)
	assert.Contains(t, string(run.Result), "Queen Bed")
}

func TestPipeline_Run_Anomalies(t *testing.T) {
	client := stagedClient(
		`{"rooms":[{"name":"Living Room","photos":[0]}]}`,
		map[string]string{"Living Room": `{"items":[{"label":"Sofa","qty":1}]}`},
	)
	p := New(config.VisionConfig{}, client, nil, nil)

	res, err := p.Run(context.Background(), DetectionRequest{
		PhotoURLs:       []string{"a"},
		PropertyContext: model.PropertyContext{Bedrooms: intp(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"No beds detected for a 2-bedroom property"}, res.Validation.Anomalies)
	assert.Empty(t, res.RunID)
}

func TestPipeline_Run_ValidationError(t *testing.T) {
	p := New(config.VisionConfig{}, stagedClient("", nil), nil, nil)

	_, err := p.Run(context.Background(), DetectionRequest{})
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "photoUrls is required", ve.Error())

	_, err = p.Run(context.Background(), DetectionRequest{
		PhotoURLs:       []string{"a"},
		PropertyContext: model.PropertyContext{PropertyType: "castle"},
	})
	require.True(t, errors.As(err, &ve))
}

func TestPipeline_Run_DetectFailureFailsRun(t *testing.T) {
	st := newMemoryStore(t)
	client := stagedClient(
		`{"rooms":[{"name":"Kitchen","photos":[0]},{"name":"Garage","photos":[1]}]}`,
		map[string]string{"Kitchen": `{"items":[]}`},
	)
	p := New(config.VisionConfig{}, client, st, nil)

	res, err := p.Run(context.Background(), DetectionRequest{PhotoURLs: []string{"a", "b"}})
	require.Error(t, err)
	assert.Nil(t, res)

	var mce *model.ModelCallError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, model.StageDetect, mce.Stage)
	assert.Contains(t, err.Error(), "Garage")

	runs, err := st.ListRuns(context.Background(), store.RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "Garage")
}

func TestPipeline_Run_ClassifyFailure(t *testing.T) {
	p := New(config.VisionConfig{}, stagedClient("no json here", nil), nil, nil)

	_, err := p.Run(context.Background(), DetectionRequest{PhotoURLs: []string{"a"}})
	var mce *model.ModelCallError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, model.StageClassify, mce.Stage)
}
