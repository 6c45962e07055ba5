package bot

import (
	"fmt"
	"sync"

	gonnx "github.com/advancedclimatesystems/gonnx"
	"github.com/rs/zerolog/log"
	"gorgonia.org/tensor"

	"github.com/freeeve/divine-conquest/api/pkg/conquest"
)

// GonnxModelPath points at a directory containing value.onnx. Set at startup
// from the GONNX_MODEL_PATH env var; empty disables the neural blend and the
// AI runs on the heuristic alone.
var GonnxModelPath string

// Board encoding dimensions. Maps larger than MaxRegions or games with more
// than MaxSlots players fall back to the heuristic.
const (
	MaxRegions  = 64
	MaxSlots    = 4
	NumFeatures = MaxSlots + 7 // owner one-hot, soldiers, temple, upgrade one-hot, level
)

// neuralWeight blends the value head against the heuristic score.
const neuralWeight = 0.5

// ValueModel wraps a gonnx value network scoring positions for a slot.
type ValueModel struct {
	model *gonnx.Model
	mu    sync.Mutex
}

var (
	valueModel     *ValueModel
	valueModelOnce sync.Once
)

// loadedValueModel lazily loads the configured value model, once.
func loadedValueModel() *ValueModel {
	valueModelOnce.Do(func() {
		if GonnxModelPath == "" {
			return
		}
		m, err := NewValueModel(GonnxModelPath + "/value.onnx")
		if err != nil {
			log.Warn().Err(err).Str("path", GonnxModelPath).
				Msg("Value model load failed, AI runs heuristic-only")
			return
		}
		log.Info().Str("path", GonnxModelPath).Msg("Value model loaded")
		valueModel = m
	})
	return valueModel
}

// NewValueModel loads a value network from an ONNX file.
func NewValueModel(path string) (*ValueModel, error) {
	m, err := gonnx.NewModelFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load value model: %w", err)
	}
	return &ValueModel{model: m}, nil
}

// Evaluate runs the value head for a slot, returning a score in [0, 1].
func (vm *ValueModel) Evaluate(gs *conquest.GameState, slot int) (float64, error) {
	board, err := EncodeBoard(gs)
	if err != nil {
		return 0, err
	}

	boardTensor := tensor.New(
		tensor.WithShape(1, MaxRegions, NumFeatures),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(board),
	)
	slotTensor := tensor.New(
		tensor.WithShape(1),
		tensor.Of(tensor.Int64),
		tensor.WithBacking([]int64{int64(slot)}),
	)

	inputs := gonnx.Tensors{
		"board":      boardTensor,
		"slot_index": slotTensor,
	}

	vm.mu.Lock()
	outputs, err := vm.model.Run(inputs)
	vm.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("value model run: %w", err)
	}

	out, ok := outputs["value"]
	if !ok {
		return 0, fmt.Errorf("value model output 'value' not found")
	}
	switch d := out.Data().(type) {
	case []float32:
		if len(d) == 0 {
			return 0, fmt.Errorf("value model returned empty output")
		}
		return float64(d[0]), nil
	case float32:
		return float64(d), nil
	default:
		return 0, fmt.Errorf("unexpected value output type %T", d)
	}
}

// EncodeBoard flattens a state into the fixed (MaxRegions, NumFeatures)
// feature layout the value network was trained on.
func EncodeBoard(gs *conquest.GameState) ([]float32, error) {
	if len(gs.Regions) > MaxRegions || len(gs.Players) > MaxSlots {
		return nil, fmt.Errorf("board too large to encode: %d regions, %d players",
			len(gs.Regions), len(gs.Players))
	}
	board := make([]float32, MaxRegions*NumFeatures)
	for i := range gs.Regions {
		idx := gs.Regions[i].Index
		row := board[i*NumFeatures : (i+1)*NumFeatures]
		if owner, ok := gs.Owner(idx); ok && owner < MaxSlots {
			row[owner] = 1
		}
		row[MaxSlots] = float32(gs.SoldierCountAt(idx)) / 16.0
		if t, ok := gs.TemplesByRegion[idx]; ok {
			row[MaxSlots+1] = 1
			if t.Upgrade >= conquest.UpgradeEarth && t.Upgrade <= conquest.UpgradeAir {
				row[MaxSlots+2+int(t.Upgrade-conquest.UpgradeEarth)] = 1
			}
			row[MaxSlots+6] = float32(t.Level+1) / 3.0
		}
	}
	return board, nil
}

// evaluatePosition is the search's leaf evaluation: the heuristic, blended
// with the value network when a model is loaded.
func evaluatePosition(gs *conquest.GameState, slot int, level Level) float64 {
	h := HeuristicForPlayer(gs, slot, level)
	vm := loadedValueModel()
	if vm == nil {
		return h
	}
	v, err := vm.Evaluate(gs, slot)
	if err != nil {
		return h
	}
	// The value head speaks win probability; scale it into heuristic range.
	return (1-neuralWeight)*h + neuralWeight*v*float64(20*len(gs.Regions))
}
